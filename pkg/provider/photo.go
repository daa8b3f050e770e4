package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/progress"
)

const (
	OpUnzoom = "unzoom"
	OpNoBg   = "nobg"
)

type Model struct {
	ID   string
	Name string
}

// PhotoAdapter speaks to a Leonardo-style API: text-to-image generations
// and transforms (background removal, unzoom) of an uploaded photo.
type PhotoAdapter struct {
	client       *HTTPClient
	upload       *HTTPClient
	interval     time.Duration
	defaultModel string
}

func NewPhotoAdapter(client *HTTPClient, defaultModel string) *PhotoAdapter {
	return &PhotoAdapter{
		client:       client,
		upload:       NewHTTPClient("leonardo-upload", ""),
		interval:     3 * time.Second,
		defaultModel: defaultModel,
	}
}

// WithPollInterval is used by tests.
func (a *PhotoAdapter) WithPollInterval(d time.Duration) *PhotoAdapter {
	a.interval = d
	return a
}

func (a *PhotoAdapter) Name() string { return "leonardo" }

func (a *PhotoAdapter) Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome {
	switch req.Kind {
	case entity.KindBgRemove:
		return a.transform(ctx, OpNoBg, req, sink)
	case entity.KindImageUnzoom:
		return a.transform(ctx, OpUnzoom, req, sink)
	case entity.KindImageGen:
		return a.generate(ctx, req, sink)
	default:
		return invalidInput("leonardo cannot produce %s", req.Kind)
	}
}

func (a *PhotoAdapter) generate(ctx context.Context, req Request, sink progress.Sink) Outcome {
	prompt := strings.TrimSpace(req.Args.Get(entity.ArgPrompt))
	if prompt == "" {
		return invalidInput("describe the image you want")
	}
	model := firstNonEmpty(req.Model, a.defaultModel)

	var created struct {
		Job struct {
			GenerationID string `json:"generationId"`
		} `json:"sdGenerationJob"`
	}
	err := a.client.JSON(ctx, http.MethodPost, "/generations", map[string]interface{}{
		"prompt":     prompt,
		"modelId":    model,
		"width":      1024,
		"height":     1024,
		"num_images": 1,
	}, &created)
	if err != nil {
		return Failed(err)
	}
	if created.Job.GenerationID == "" {
		return Failed(&Error{Class: ClassTransient, Detail: "no generation id returned"})
	}

	url, err := a.pollGeneration(ctx, created.Job.GenerationID, sink)
	if err != nil {
		return Failed(err)
	}
	return Completed(&Artifact{Kind: ArtifactURL, URL: url, MIME: "image/jpeg", Meta: map[string]string{"model": model}})
}

func (a *PhotoAdapter) pollGeneration(ctx context.Context, id string, sink progress.Sink) (string, error) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		var st struct {
			Generation struct {
				Status string `json:"status"`
				Images []struct {
					URL string `json:"url"`
				} `json:"generated_images"`
			} `json:"generations_by_pk"`
		}
		err := a.client.JSON(ctx, http.MethodGet, "/generations/"+id, nil, &st)
		if err != nil && ClassOf(err) != ClassTransient {
			return "", err
		}
		if err == nil {
			switch st.Generation.Status {
			case "COMPLETE":
				if len(st.Generation.Images) > 0 {
					return st.Generation.Images[0].URL, nil
				}
				return "", &Error{Class: ClassPermanent, Detail: "generation finished without images"}
			case "FAILED":
				return "", &Error{Class: ClassPermanent, Detail: "the generation failed"}
			default:
				sink.Report(progress.Token{Text: "Rendering", Stage: strings.ToLower(st.Generation.Status)})
			}
		}
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// Transform is Transform(operation, image) -> new image URL.
func (a *PhotoAdapter) transform(ctx context.Context, op string, req Request, sink progress.Sink) Outcome {
	imageID := req.Args.Get(entity.ArgFileID)
	if req.InputPath != "" {
		sink.Report(progress.Token{Text: "Uploading photo"})
		id, err := a.uploadInitImage(ctx, req.InputPath)
		if err != nil {
			return Failed(err)
		}
		imageID = id
	}
	if imageID == "" {
		return invalidInput("send a photo first")
	}

	var created map[string]struct {
		ID string `json:"id"`
	}
	err := a.client.JSON(ctx, http.MethodPost, "/variations/"+op, map[string]interface{}{
		"id":          imageID,
		"isVariation": false,
	}, &created)
	if err != nil {
		return Failed(err)
	}
	var variationID string
	for _, job := range created {
		variationID = job.ID
	}
	if variationID == "" {
		return Failed(&Error{Class: ClassTransient, Detail: "no variation id returned"})
	}

	url, err := a.pollVariation(ctx, variationID, sink)
	if err != nil {
		return Failed(err)
	}
	return Completed(&Artifact{Kind: ArtifactURL, URL: url, MIME: "image/png", Meta: map[string]string{"operation": op}})
}

func (a *PhotoAdapter) pollVariation(ctx context.Context, id string, sink progress.Sink) (string, error) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		var st struct {
			Variations []struct {
				Status string `json:"status"`
				URL    string `json:"url"`
			} `json:"generated_image_variation_generic"`
		}
		err := a.client.JSON(ctx, http.MethodGet, "/variations/"+id, nil, &st)
		if err != nil && ClassOf(err) != ClassTransient {
			return "", err
		}
		if err == nil && len(st.Variations) > 0 {
			v := st.Variations[0]
			switch v.Status {
			case "COMPLETE":
				return v.URL, nil
			case "FAILED":
				return "", &Error{Class: ClassPermanent, Detail: "the transform failed"}
			}
		}
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// uploadInitImage registers an upload and posts the photo to the presigned
// form the API hands back.
func (a *PhotoAdapter) uploadInitImage(ctx context.Context, path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		ext = "jpg"
	}
	var resp struct {
		Upload struct {
			ID     string `json:"id"`
			URL    string `json:"url"`
			Fields string `json:"fields"`
		} `json:"uploadInitImage"`
	}
	if err := a.client.JSON(ctx, http.MethodPost, "/init-image", map[string]string{"extension": ext}, &resp); err != nil {
		return "", err
	}
	fields := map[string]string{}
	if resp.Upload.Fields != "" {
		if err := json.Unmarshal([]byte(resp.Upload.Fields), &fields); err != nil {
			return "", &Error{Class: ClassPermanent, Detail: "unreadable upload form", Err: err}
		}
	}
	if err := a.upload.Multipart(ctx, resp.Upload.URL, fields, "file", path, nil); err != nil {
		return "", err
	}
	return resp.Upload.ID, nil
}

// ListModels returns the platform models, for /list_leonardo_models.
func (a *PhotoAdapter) ListModels(ctx context.Context) ([]Model, error) {
	var resp struct {
		Models []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"custom_models"`
	}
	if err := a.client.JSON(ctx, http.MethodGet, "/platformModels", nil, &resp); err != nil {
		return nil, err
	}
	models := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, Model{ID: m.ID, Name: m.Name})
	}
	return models, nil
}
