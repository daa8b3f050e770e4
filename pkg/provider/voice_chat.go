package provider

import (
	"context"
	"strings"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/pkg/llm"
	"ai-genbot-gateway/pkg/progress"
)

// VoiceChatAdapter transcribes a voice note, answers it with the text model
// and speaks the answer back when a voice is selected.
type VoiceChatAdapter struct {
	transcriber llm.Transcriber
	text        *TextAdapter
	tts         *TTSAdapter
	policy      Policy
}

func NewVoiceChatAdapter(transcriber llm.Transcriber, text *TextAdapter, tts *TTSAdapter) *VoiceChatAdapter {
	return &VoiceChatAdapter{transcriber: transcriber, text: text, tts: tts, policy: DefaultPolicy}
}

func (a *VoiceChatAdapter) Name() string { return "voice-chat" }

func (a *VoiceChatAdapter) Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome {
	if req.InputPath == "" {
		return invalidInput("no voice message attached")
	}
	sink.Report(progress.Token{Text: "Listening"})
	transcript, err := Retry(ctx, a.policy, func(ctx context.Context) (string, error) {
		return a.transcriber.Transcribe(ctx, req.InputPath)
	})
	if err != nil {
		return Failed(err)
	}
	if strings.TrimSpace(transcript) == "" {
		return invalidInput("I could not understand the voice message")
	}

	sink.Report(progress.Token{Text: "Thinking"})
	messages := append(append([]llm.Message(nil), req.Messages...), llm.Message{Role: "user", Content: transcript})
	reply, err := a.text.Complete(ctx, req.Model, req.System, messages)
	if err != nil {
		return Failed(err)
	}

	art := &Artifact{Kind: ArtifactText, Text: reply, Meta: map[string]string{"transcript": transcript}}
	voiceID := req.Args.Get(entity.ArgVoiceID)
	if a.tts == nil || voiceID == "" {
		return Completed(art)
	}

	sink.Report(progress.Token{Text: "Recording reply"})
	path, err := a.tts.SynthesizeToFile(ctx, voiceID, reply, req.ScratchDir)
	if err != nil {
		// The text answer is still worth delivering.
		return Completed(art)
	}
	art.Kind, art.Path, art.MIME = ArtifactFile, path, "audio/mpeg"
	return Completed(art)
}
