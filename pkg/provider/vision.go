package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"strings"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/llm"
	"ai-genbot-gateway/pkg/progress"
)

const defaultAnalyzePrompt = "Describe this image in detail."

// VisionAdapter answers image-analyze through a vision-capable chat model.
// The photo is inlined as a data URL so no chat-platform file URL leaves
// the gateway.
type VisionAdapter struct {
	text  *TextAdapter
	model string
}

func NewVisionAdapter(text *TextAdapter, model string) *VisionAdapter {
	return &VisionAdapter{text: text, model: model}
}

func (a *VisionAdapter) Name() string { return "vision" }

func (a *VisionAdapter) Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome {
	prompt := req.Args.Get(entity.ArgPrompt)
	sink.Report(progress.Token{Text: "Looking at the photo"})

	var (
		text string
		err  error
	)
	switch {
	case req.InputPath != "":
		raw, readErr := os.ReadFile(req.InputPath)
		if readErr != nil {
			return Failed(&Error{Class: ClassPermanent, Detail: "cannot read the photo", Err: readErr})
		}
		text, err = a.AnalyzeImage(ctx, raw, prompt)
	case req.Args.Get(entity.ArgImageURL) != "":
		text, err = a.analyze(ctx, req.Args.Get(entity.ArgImageURL), prompt)
	default:
		return invalidInput("send a photo to analyze")
	}
	if err != nil {
		return Failed(err)
	}
	return Completed(&Artifact{Kind: ArtifactText, Text: text})
}

// AnalyzeImage is AnalyzeImage(bytes) -> text.
func (a *VisionAdapter) AnalyzeImage(ctx context.Context, raw []byte, prompt string) (string, error) {
	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", &Error{Class: ClassInvalidInput, Detail: "the attachment is not an image"}
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
	return a.analyze(ctx, dataURL, prompt)
}

func (a *VisionAdapter) analyze(ctx context.Context, imageURL, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultAnalyzePrompt
	}
	return a.text.Complete(ctx, a.model, "", []llm.Message{
		{Role: "user", Content: prompt, ImageURLs: []string{imageURL}},
	})
}
