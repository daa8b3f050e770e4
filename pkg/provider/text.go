package provider

import (
	"context"
	"strings"

	"ai-genbot-gateway/pkg/llm"
	"ai-genbot-gateway/pkg/progress"
)

// TextAdapter serves text-chat through any llm backend.
type TextAdapter struct {
	name      string
	llm       llm.LLMProvider
	maxTokens int
	policy    Policy
}

func NewTextAdapter(name string, backend llm.LLMProvider, maxTokens int) *TextAdapter {
	return &TextAdapter{name: name, llm: backend, maxTokens: maxTokens, policy: DefaultPolicy}
}

func (a *TextAdapter) Name() string { return a.name }

func (a *TextAdapter) Invoke(ctx context.Context, req Request, sink progress.Sink) Outcome {
	if len(req.Messages) == 0 {
		return invalidInput("nothing to answer")
	}
	reply, err := a.Complete(ctx, req.Model, req.System, req.Messages)
	if err != nil {
		return Failed(err)
	}
	return Completed(&Artifact{Kind: ArtifactText, Text: reply})
}

// Complete is Complete(model, system, messages, max_tokens) -> text.
func (a *TextAdapter) Complete(ctx context.Context, model, system string, messages []llm.Message) (string, error) {
	history := make([]llm.Message, 0, len(messages)+1)
	if strings.TrimSpace(system) != "" {
		history = append(history, llm.Message{Role: "system", Content: system})
	}
	history = append(history, messages...)

	opts := []llm.Option{llm.WithMaxTokens(a.maxTokens)}
	if model != "" {
		opts = append(opts, llm.WithModel(model))
	}
	reply, err := Retry(ctx, a.policy, func(ctx context.Context) (string, error) {
		return a.llm.Chat(ctx, history, opts...)
	})
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &Error{Class: ClassTransient, Detail: "the model returned an empty answer"}
	}
	return reply, nil
}

func (a *TextAdapter) ListModels(ctx context.Context) ([]string, error) {
	return Retry(ctx, a.policy, a.llm.ListModels)
}
