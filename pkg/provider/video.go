package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/progress"
)

// VideoAdapter drives a submit-and-poll video API and downloads the result
// into the job's scratch directory.
type VideoAdapter struct {
	name      string
	client    *HTTPClient
	download  *http.Client
	interval  time.Duration
	cdnWindow Policy
}

func NewVideoAdapter(name string, client *HTTPClient) *VideoAdapter {
	return &VideoAdapter{
		name:      name,
		client:    client,
		download:  &http.Client{Timeout: 10 * time.Minute},
		interval:  3 * time.Second,
		cdnWindow: cdnPolicy,
	}
}

// WithTiming is used by tests to shorten polling and CDN waits.
func (a *VideoAdapter) WithTiming(poll time.Duration, cdn Policy) *VideoAdapter {
	a.interval, a.cdnWindow = poll, cdn
	return a
}

func (a *VideoAdapter) Name() string { return a.name }

type videoRequest struct {
	Prompt   string  `json:"prompt"`
	Frames   int     `json:"frames,omitempty"`
	Steps    int     `json:"steps,omitempty"`
	Guidance float64 `json:"guidance,omitempty"`
	FPS      int     `json:"fps,omitempty"`
	Size     string  `json:"size,omitempty"`
	Image    string  `json:"image,omitempty"`
	Model    string  `json:"model,omitempty"`
}

type videoStatus struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"` // queued|running|succeeded|failed
	Progress float64 `json:"progress"`
	VideoURL string  `json:"video_url"`
	Error    string  `json:"error"`
}

func (a *VideoAdapter) Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome {
	args := req.Args
	body := videoRequest{
		Prompt:   strings.TrimSpace(args.Get(entity.ArgPrompt)),
		Frames:   args.Int(entity.ArgFrames, 0),
		Steps:    args.Int(entity.ArgSteps, 0),
		Guidance: args.Float(entity.ArgGuidance, 0),
		FPS:      args.Int(entity.ArgFPS, 0),
		Size:     args.Get(entity.ArgSize),
		Model:    req.Model,
	}
	if req.Kind == entity.KindImageToVideo {
		if req.InputPath == "" {
			return invalidInput("send a photo to animate")
		}
		raw, err := os.ReadFile(req.InputPath)
		if err != nil {
			return Failed(&Error{Class: ClassPermanent, Detail: "cannot read the photo", Err: err})
		}
		body.Image = "data:" + http.DetectContentType(raw) + ";base64," + base64.StdEncoding.EncodeToString(raw)
	} else if body.Prompt == "" {
		return invalidInput("describe the video you want")
	}

	id := ""
	if req.Checkpoint != nil {
		id, _ = req.Checkpoint.Load(ctx)
	}
	if id == "" {
		sink.Report(progress.Token{Text: "Submitting video"})
		var created videoStatus
		if err := a.client.JSON(ctx, http.MethodPost, "/generations", body, &created); err != nil {
			return Failed(err)
		}
		if created.ID == "" {
			return Failed(&Error{Class: ClassTransient, Detail: "the video service returned no job id"})
		}
		id = created.ID
		if req.Checkpoint != nil {
			_ = req.Checkpoint.Save(ctx, id)
		}
	}

	videoURL, err := a.GenerateVideo(ctx, id, sink)
	if err != nil {
		return Failed(err)
	}

	sink.Report(progress.Token{Text: "Downloading video"})
	path := filepath.Join(req.ScratchDir, "video.mp4")
	if _, err := download(ctx, a.download, videoURL, path, a.cdnWindow); err != nil {
		return Failed(err)
	}
	return Completed(&Artifact{Kind: ArtifactFile, Path: path, URL: videoURL, MIME: "video/mp4", Text: body.Prompt})
}

// GenerateVideo polls generation id until it has a video URL, streaming
// the fractional progress.
func (a *VideoAdapter) GenerateVideo(ctx context.Context, id string, sink progress.Sink) (string, error) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		var st videoStatus
		err := a.client.JSON(ctx, http.MethodGet, "/generations/"+id, nil, &st)
		switch {
		case err != nil && ClassOf(err) != ClassTransient:
			return "", err
		case err == nil && st.Status == "failed":
			return "", &Error{Class: ClassPermanent, Detail: firstNonEmpty(st.Error, "the video generation failed")}
		case err == nil && st.Status == "succeeded" && st.VideoURL != "":
			sink.Report(progress.Token{Text: "Rendering video", Fraction: 1})
			return st.VideoURL, nil
		case err == nil:
			sink.Report(progress.Token{Text: "Rendering video", Stage: st.Status, Fraction: st.Progress})
		}
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)
		case <-ticker.C:
		}
	}
}
