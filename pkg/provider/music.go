package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/progress"
)

const (
	MusicGenerate = "generate"
	MusicCustom   = "custom"
	MusicExtend   = "extend"
	MusicConcat   = "concat"
	MusicLyrics   = "lyrics"
	MusicInfo     = "info"
)

// Clip is one generation as reported by the music service.
type Clip struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	AudioURL string `json:"audio_url,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Title    string `json:"title,omitempty"`
	Tags     string `json:"tags,omitempty"`
	Lyric    string `json:"lyric,omitempty"`
	ErrorMsg string `json:"error_message,omitempty"`
}

func (c Clip) done() bool   { return c.Status == "complete" }
func (c Clip) failed() bool { return c.Status == "error" }

// MusicAdapter drives a Suno-style API: submit, then poll the clips and
// pass their status through as progress.
type MusicAdapter struct {
	client   *HTTPClient
	interval time.Duration
}

func NewMusicAdapter(client *HTTPClient) *MusicAdapter {
	return &MusicAdapter{client: client, interval: 5 * time.Second}
}

// WithPollInterval is used by tests.
func (a *MusicAdapter) WithPollInterval(d time.Duration) *MusicAdapter {
	a.interval = d
	return a
}

func (a *MusicAdapter) Name() string { return "suno" }

func (a *MusicAdapter) Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome {
	switch op := req.Args.Get(entity.ArgOperation); op {
	case MusicLyrics:
		title, text, err := a.GenerateLyrics(ctx, req.Args.Get(entity.ArgPrompt))
		if err != nil {
			return Failed(err)
		}
		return Completed(&Artifact{Kind: ArtifactText, Title: title, Text: text})
	case MusicInfo:
		clips, err := a.GetGeneration(ctx, splitIDs(req.Args.Get(entity.ArgClipID)))
		if err != nil {
			return Failed(err)
		}
		return Completed(&Artifact{Kind: ArtifactText, Text: describeClips(clips)})
	case "", MusicGenerate, MusicCustom, MusicExtend, MusicConcat:
		return a.generate(ctx, req, sink)
	default:
		return invalidInput("unknown music operation %q", op)
	}
}

func (a *MusicAdapter) generate(ctx context.Context, req Request, sink progress.Sink) Outcome {
	var ids []string
	if req.Checkpoint != nil {
		if saved, err := req.Checkpoint.Load(ctx); err == nil && saved != "" {
			ids = splitIDs(saved)
		}
	}

	if len(ids) == 0 {
		sink.Report(progress.Token{Text: "Submitting", Stage: "submitted"})
		clips, err := a.submit(ctx, req.Args)
		if err != nil {
			return Failed(err)
		}
		for _, c := range clips {
			ids = append(ids, c.ID)
		}
		if len(ids) == 0 {
			return Failed(&Error{Class: ClassTransient, Detail: "the music service accepted nothing"})
		}
		if req.Checkpoint != nil {
			_ = req.Checkpoint.Save(ctx, strings.Join(ids, ","))
		}
	}

	clips, err := a.poll(ctx, ids, sink)
	if err != nil {
		return Failed(err)
	}
	art := &Artifact{Kind: ArtifactURL}
	for _, c := range clips {
		art.Items = append(art.Items, Artifact{
			Kind:  ArtifactURL,
			URL:   c.AudioURL,
			MIME:  "audio/mpeg",
			Title: c.Title,
			Meta:  map[string]string{"clip_id": c.ID, "tags": c.Tags, "video_url": c.VideoURL},
		})
	}
	return Completed(art)
}

// submit starts a generation and returns the new clips.
func (a *MusicAdapter) submit(ctx context.Context, args entity.JobArgs) ([]Clip, error) {
	var (
		path string
		body map[string]interface{}
	)
	switch args.Get(entity.ArgOperation) {
	case MusicCustom:
		path = "/custom_generate"
		body = map[string]interface{}{
			"prompt":            args.Get(entity.ArgLyrics),
			"tags":              args.Get(entity.ArgTags),
			"title":             args.Get(entity.ArgTitle),
			"make_instrumental": args.Bool(entity.ArgInstrumental),
			"wait_audio":        false,
		}
	case MusicExtend:
		path = "/extend_audio"
		body = map[string]interface{}{
			"audio_id":    args.Get(entity.ArgClipID),
			"prompt":      args.Get(entity.ArgLyrics),
			"continue_at": args.Int(entity.ArgContinueAt, 0),
			"title":       args.Get(entity.ArgTitle),
			"tags":        args.Get(entity.ArgTags),
		}
	case MusicConcat:
		path = "/concat"
		body = map[string]interface{}{"clip_id": args.Get(entity.ArgClipID)}
	default:
		path = "/generate"
		body = map[string]interface{}{
			"prompt":            args.Get(entity.ArgPrompt),
			"make_instrumental": args.Bool(entity.ArgInstrumental),
			"wait_audio":        false,
		}
	}

	if args.Get(entity.ArgOperation) == MusicConcat {
		var clip Clip
		if err := a.client.JSON(ctx, http.MethodPost, path, body, &clip); err != nil {
			return nil, err
		}
		return []Clip{clip}, nil
	}
	var clips []Clip
	if err := a.client.JSON(ctx, http.MethodPost, path, body, &clips); err != nil {
		return nil, err
	}
	return clips, nil
}

func (a *MusicAdapter) poll(ctx context.Context, ids []string, sink progress.Sink) ([]Clip, error) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		clips, err := a.GetGeneration(ctx, ids)
		if err != nil && ClassOf(err) != ClassTransient {
			return nil, err
		}
		if err == nil && len(clips) > 0 {
			status, done := summarize(clips)
			sink.Report(progress.Token{Stage: status, Text: "Music: " + status})
			for _, c := range clips {
				if c.failed() {
					return nil, &Error{Class: ClassPermanent, Detail: firstNonEmpty(c.ErrorMsg, "the music generation failed")}
				}
			}
			if done {
				return clips, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// summarize reports the least advanced status and whether every clip is
// complete with audio.
func summarize(clips []Clip) (string, bool) {
	rank := map[string]int{"submitted": 0, "queued": 1, "streaming": 2, "complete": 3}
	status, low := "complete", 3
	done := true
	for _, c := range clips {
		r, ok := rank[c.Status]
		if !ok {
			r = 0
		}
		if r < low {
			low, status = r, c.Status
		}
		if !c.done() || c.AudioURL == "" {
			done = false
		}
	}
	return status, done
}

// GetGeneration is GetGeneration(ids) -> [clip].
func (a *MusicAdapter) GetGeneration(ctx context.Context, ids []string) ([]Clip, error) {
	if len(ids) == 0 {
		return nil, &Error{Class: ClassInvalidInput, Detail: "no clip id given"}
	}
	var clips []Clip
	path := "/get?ids=" + url.QueryEscape(strings.Join(ids, ","))
	if err := a.client.JSON(ctx, http.MethodGet, path, nil, &clips); err != nil {
		return nil, err
	}
	return clips, nil
}

func (a *MusicAdapter) GenerateLyrics(ctx context.Context, prompt string) (string, string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", "", &Error{Class: ClassInvalidInput, Detail: "describe the song first"}
	}
	var resp struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := a.client.JSON(ctx, http.MethodPost, "/generate_lyrics", map[string]string{"prompt": prompt}, &resp); err != nil {
		return "", "", err
	}
	return resp.Title, resp.Text, nil
}

func describeClips(clips []Clip) string {
	var b strings.Builder
	for i, c := range clips {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s (%s)\nstatus: %s", firstNonEmpty(c.Title, "untitled"), c.ID, c.Status)
		if c.Tags != "" {
			fmt.Fprintf(&b, "\ntags: %s", c.Tags)
		}
		if c.AudioURL != "" {
			fmt.Fprintf(&b, "\naudio: %s", c.AudioURL)
		}
		if c.VideoURL != "" {
			fmt.Fprintf(&b, "\nvideo: %s", c.VideoURL)
		}
	}
	if b.Len() == 0 {
		return "No such clip."
	}
	return b.String()
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
