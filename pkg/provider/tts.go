package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/progress"
)

const defaultTTSModel = "eleven_multilingual_v2"

type Voice struct {
	ID   string
	Name string
}

// TTSAdapter speaks to an ElevenLabs-style speech API.
type TTSAdapter struct {
	client *HTTPClient
	model  string
}

func NewTTSAdapter(client *HTTPClient) *TTSAdapter {
	return &TTSAdapter{client: client, model: defaultTTSModel}
}

func (a *TTSAdapter) Name() string { return "elevenlabs" }

func (a *TTSAdapter) Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome {
	text := strings.TrimSpace(req.Args.Get(entity.ArgPrompt))
	voiceID := req.Args.Get(entity.ArgVoiceID)
	if text == "" {
		return invalidInput("nothing to say")
	}
	if voiceID == "" {
		return invalidInput("no voice selected")
	}
	sink.Report(progress.Token{Text: "Recording voice"})

	path, err := a.SynthesizeToFile(ctx, voiceID, text, req.ScratchDir)
	if err != nil {
		return Failed(err)
	}
	return Completed(&Artifact{Kind: ArtifactFile, Path: path, MIME: "audio/mpeg", Text: text})
}

// Synthesize is Synthesize(voice_id, text) -> audio bytes.
func (a *TTSAdapter) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	audio, contentType, err := a.client.Bytes(ctx, http.MethodPost, "/text-to-speech/"+voiceID, map[string]interface{}{
		"text":     text,
		"model_id": a.model,
	})
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(contentType, "application/json") || len(audio) == 0 {
		return nil, &Error{Class: ClassPermanent, Detail: "speech service returned no audio"}
	}
	return audio, nil
}

func (a *TTSAdapter) SynthesizeToFile(ctx context.Context, voiceID, text, dir string) (string, error) {
	audio, err := a.Synthesize(ctx, voiceID, text)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "speech.mp3")
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		return "", &Error{Class: ClassPermanent, Detail: "cannot store audio", Err: err}
	}
	return path, nil
}

// ListVoices is ListVoices() -> [(id, name)], sorted by name.
func (a *TTSAdapter) ListVoices(ctx context.Context) ([]Voice, error) {
	var resp struct {
		Voices []struct {
			VoiceID string `json:"voice_id"`
			Name    string `json:"name"`
		} `json:"voices"`
	}
	if err := a.client.JSON(ctx, http.MethodGet, "/voices", nil, &resp); err != nil {
		return nil, err
	}
	voices := make([]Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		voices = append(voices, Voice{ID: v.VoiceID, Name: v.Name})
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
	return voices, nil
}

// RegisterVoice clones a voice from a sample and returns its id.
func (a *TTSAdapter) RegisterVoice(ctx context.Context, name, samplePath string, labels map[string]string) (string, error) {
	fields := map[string]string{"name": name}
	if len(labels) > 0 {
		raw, _ := json.Marshal(labels)
		fields["labels"] = string(raw)
	}
	var resp struct {
		VoiceID string `json:"voice_id"`
	}
	if err := a.client.Multipart(ctx, "/voices/add", fields, "files", samplePath, &resp); err != nil {
		return "", err
	}
	if resp.VoiceID == "" {
		return "", &Error{Class: ClassPermanent, Detail: "voice was not created"}
	}
	return resp.VoiceID, nil
}

func (a *TTSAdapter) DeleteVoice(ctx context.Context, voiceID string) error {
	return a.client.JSON(ctx, http.MethodDelete, "/voices/"+voiceID, nil, nil)
}
