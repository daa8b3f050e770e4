package provider

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/progress"
)

// ImageAdapter generates images through an OpenAI-compatible
// /images/generations endpoint. The same adapter serves DALL-E style
// models and FLUX models on Together-style hosts.
type ImageAdapter struct {
	name         string
	client       *HTTPClient
	defaultModel string
}

func NewImageAdapter(name string, client *HTTPClient, defaultModel string) *ImageAdapter {
	return &ImageAdapter{name: name, client: client, defaultModel: defaultModel}
}

func (a *ImageAdapter) Name() string { return a.name }

type imageRequest struct {
	Model          string  `json:"model"`
	Prompt         string  `json:"prompt"`
	N              int     `json:"n"`
	Size           string  `json:"size,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	Guidance       float64 `json:"guidance,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (a *ImageAdapter) Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome {
	prompt := strings.TrimSpace(req.Args.Get(entity.ArgPrompt))
	if prompt == "" {
		return invalidInput("describe the image you want")
	}
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	sink.Report(progress.Token{Text: "Rendering image"})

	url, b64, err := a.GenerateImage(ctx, model, prompt, req.Args.Get(entity.ArgSize),
		req.Args.Int(entity.ArgSteps, 0), req.Args.Float(entity.ArgGuidance, 0))
	if err != nil {
		return Failed(err)
	}
	art := &Artifact{Kind: ArtifactURL, URL: url, MIME: "image/png", Meta: map[string]string{"model": model}}
	if url == "" {
		path := filepath.Join(req.ScratchDir, "image.png")
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return Failed(&Error{Class: ClassPermanent, Detail: "the image could not be decoded", Err: err})
		}
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return Failed(&Error{Class: ClassPermanent, Detail: "cannot store the image", Err: err})
		}
		art.Kind, art.Path = ArtifactFile, path
	}
	return Completed(art)
}

// GenerateImage returns either a URL or base64 image data.
func (a *ImageAdapter) GenerateImage(ctx context.Context, model, prompt, size string, steps int, guidance float64) (string, string, error) {
	body := imageRequest{Model: model, Prompt: prompt, N: 1, Size: size, Steps: steps, Guidance: guidance}
	if w, h, ok := parseSize(size); ok && strings.Contains(strings.ToLower(model), "flux") {
		body.Size, body.Width, body.Height = "", w, h
	}
	var resp imageResponse
	if err := a.client.JSON(ctx, "POST", "/images/generations", body, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Data) == 0 || (resp.Data[0].URL == "" && resp.Data[0].B64JSON == "") {
		return "", "", &Error{Class: ClassTransient, Detail: "no image was returned"}
	}
	return resp.Data[0].URL, resp.Data[0].B64JSON, nil
}

func parseSize(size string) (int, int, bool) {
	parts := strings.SplitN(strings.ToLower(size), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	return w, h, errW == nil && errH == nil && w > 0 && h > 0
}
