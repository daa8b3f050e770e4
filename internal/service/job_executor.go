package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/pkg/llm"
	"ai-genbot-gateway/pkg/progress"
	"ai-genbot-gateway/pkg/provider"
	"ai-genbot-gateway/pkg/scratch"
	"ai-genbot-gateway/pkg/taskqueue"
	"ai-genbot-gateway/pkg/utils"
	"ai-genbot-gateway/pkg/telegram"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxMessageRunes = 4096
	maxCaptionRunes = 1024
	maxInputBytes   = 20 * 1024 * 1024

	bookkeepingTimeout = 10 * time.Second
	checkpointTTL      = 6 * time.Hour

	restartText = "⚠️ The bot restarted before this finished. Please send the command again."
)

type ExecutorConfig struct {
	EditInterval time.Duration
	SystemPrompt string
}

// JobExecutor runs jobs for both queues: it resolves the adapter, feeds its
// progress to the chat, delivers the artifact and does the bookkeeping that
// follows a delivery.
type JobExecutor struct {
	registry   *provider.Registry
	messenger  Messenger
	sessions   ISessionService
	gate       IQuotaGate
	notifier   INotifier
	uowFactory unitofwork.RepositoryFactory
	scratch    *scratch.Manager
	cfg        ExecutorConfig
	logger     logger.ILogger
	tracer     trace.Tracer

	mu        sync.Mutex
	reporters map[string]*progress.Reporter
}

var _ taskqueue.Runner = (*JobExecutor)(nil)

func NewJobExecutor(
	registry *provider.Registry,
	messenger Messenger,
	sessions ISessionService,
	gate IQuotaGate,
	notifier INotifier,
	uowFactory unitofwork.RepositoryFactory,
	scratchDirs *scratch.Manager,
	cfg ExecutorConfig,
	log logger.ILogger,
) *JobExecutor {
	return &JobExecutor{
		registry:   registry,
		messenger:  messenger,
		sessions:   sessions,
		gate:       gate,
		notifier:   notifier,
		uowFactory: uowFactory,
		scratch:    scratchDirs,
		cfg:        cfg,
		logger:     log,
		tracer:     otel.Tracer("genbot/executor"),
		reporters:  make(map[string]*progress.Reporter),
	}
}

func (e *JobExecutor) Run(ctx context.Context, job *entity.Job) (err error) {
	ctx, span := e.tracer.Start(ctx, "job.run", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.String("job.class", string(job.Class)),
		attribute.Int("job.attempt", job.Attempt),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	dir, err := e.scratch.Acquire(job.ID)
	if err != nil {
		return &entity.JobError{Kind: entity.ErrorInternal, Detail: "no scratch space", Err: err}
	}
	defer e.scratch.Release(job.ID)

	reporterCtx, stopReporter := context.WithCancel(ctx)
	defer stopReporter()
	sink := e.attach(reporterCtx, job)

	req := provider.Request{
		JobID:      job.ID,
		UserID:     job.UserID,
		Kind:       job.Kind,
		Model:      job.Model,
		Args:       job.Args,
		ScratchDir: dir,
	}
	if fileID := job.Args.Get(entity.ArgFileID); fileID != "" {
		path, err := e.fetchInput(ctx, job, fileID, dir)
		if err != nil {
			return err
		}
		req.InputPath = path
	}
	if job.Kind.IsConversation() {
		sess := e.sessions.Load(ctx, job.UserID)
		req.System = e.systemPrompt(ctx, sess)
		req.Messages = historyMessages(sess.History)
		if job.Kind == entity.KindTextChat {
			req.Messages = append(req.Messages, llm.Message{Role: "user", Content: job.Args.Get(entity.ArgPrompt)})
		}
	}
	if job.Class == entity.ClassDurable {
		req.Checkpoint = e.sessions.Checkpoint(job.UserID, job.ID, checkpointTTL)
	}

	p, err := e.registry.Resolve(job.Kind, job.Provider)
	if err != nil {
		return &entity.JobError{Kind: entity.ErrorInternal, Detail: "no provider configured for this command", Err: err}
	}
	span.SetAttributes(attribute.String("job.provider", p.Name()))

	out := p.Invoke(ctx, req, sink)
	if !out.OK() {
		return failureError(out.Failure)
	}

	delivered, err := e.deliver(ctx, job, out.Artifact)
	if err != nil {
		return err
	}

	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	e.afterDelivery(bctx, job, out.Artifact, delivered)
	return nil
}

func (e *JobExecutor) Finalize(ctx context.Context, job *entity.Job, state entity.JobState, err error) {
	rep := e.detach(job.ID)

	switch state {
	case entity.JobCompleted:
		e.clearProgress(ctx, job, rep)
	case entity.JobCancelled:
		if errors.Is(err, entity.ErrShutdown) {
			e.rewriteProgress(ctx, job, rep, restartText)
		} else {
			e.clearProgress(ctx, job, rep)
		}
	default:
		if rep != nil {
			rep.Release(ctx)
		}
		opts := []NotifyOption{ReplyTo(job.OriginMessageID), ForUser(job.UserID)}
		if job.ProgressMessageID != 0 {
			opts = append(opts, InPlaceOf(job.ProgressMessageID))
		}
		detail := entity.ErrorDetail(err)
		if detail == "" && err != nil && entity.ErrorKindOf(err) == entity.ErrorInternal {
			detail = fmt.Sprintf("job %s (%s): %v", job.ID, job.Kind, err)
		}
		e.notifier.NotifyError(ctx, job.ChatID, entity.ErrorKindOf(err), detail, opts...)
	}

	if !job.NoRecord {
		e.gate.Release(job.UserID, job.Kind)
	}
	if job.Class == entity.ClassDurable {
		_ = e.sessions.ClearCheckpoint(ctx, job.UserID, job.ID)
	}
	if _, mErr := e.sessions.Mutate(ctx, job.UserID, func(s *entity.Session) error {
		s.RemoveInFlight(job.ID)
		return nil
	}); mErr != nil {
		e.logger.Warn("EXECUTOR", "Failed to clear in-flight job", map[string]interface{}{"jobId": job.ID, "error": mErr.Error()})
	}
}

// attach creates the progress reporter for this attempt.
func (e *JobExecutor) attach(ctx context.Context, job *entity.Job) progress.Sink {
	if job.ProgressMessageID == 0 {
		return progress.Discard
	}
	rep := progress.NewReporter(e.messenger, e.logger, job.ChatID, job.ProgressMessageID, e.cfg.EditInterval,
		progress.WithPulse(pulseFor(job.Kind)))
	rep.Start(ctx)

	e.mu.Lock()
	e.reporters[job.ID] = rep
	e.mu.Unlock()
	return rep
}

func (e *JobExecutor) detach(jobID string) *progress.Reporter {
	e.mu.Lock()
	defer e.mu.Unlock()
	rep := e.reporters[jobID]
	delete(e.reporters, jobID)
	return rep
}

func (e *JobExecutor) clearProgress(ctx context.Context, job *entity.Job, rep *progress.Reporter) {
	if rep != nil {
		rep.Done(ctx)
		return
	}
	if job.ProgressMessageID != 0 {
		_ = e.messenger.DeleteMessage(ctx, job.ChatID, job.ProgressMessageID)
	}
}

func (e *JobExecutor) rewriteProgress(ctx context.Context, job *entity.Job, rep *progress.Reporter, text string) {
	if rep != nil {
		rep.Fail(ctx, text)
		return
	}
	if job.ProgressMessageID != 0 {
		_ = e.messenger.EditMessageText(ctx, job.ChatID, job.ProgressMessageID, text)
	}
}

func (e *JobExecutor) fetchInput(ctx context.Context, job *entity.Job, fileID, dir string) (string, error) {
	path := filepath.Join(dir, "input"+inputExt(job.Kind))
	if _, err := e.messenger.DownloadFile(ctx, fileID, path, maxInputBytes); err != nil {
		var reqErr *telegram.RequestError
		if errors.As(err, &reqErr) && !reqErr.Retryable() {
			return "", &entity.JobError{Kind: entity.ErrorInput, Detail: "I couldn't download that file. It may be too large.", Err: err}
		}
		if errors.Is(err, telegram.ErrFileTooLarge) {
			return "", &entity.JobError{Kind: entity.ErrorInput, Detail: "That file is too large (20 MB max).", Err: err}
		}
		return "", &entity.JobError{Kind: entity.ErrorTransient, Detail: "I couldn't fetch your file. Please try again.", Err: err}
	}
	return path, nil
}

func (e *JobExecutor) systemPrompt(ctx context.Context, sess *entity.Session) string {
	if strings.TrimSpace(sess.SystemPrompt) != "" {
		return sess.SystemPrompt
	}
	if global, err := loadGlobalSystemPrompt(ctx, e.uowFactory); err == nil && global != "" {
		return global
	}
	return e.cfg.SystemPrompt
}

// deliver sends the artifact to the chat and returns the delivered reply
// text and audio reference for the conversation history.
func (e *JobExecutor) deliver(ctx context.Context, job *entity.Job, art *provider.Artifact) (delivery, error) {
	var d delivery
	if art == nil {
		return d, &entity.JobError{Kind: entity.ErrorInternal, Detail: "the provider returned nothing"}
	}

	if art.Kind == provider.ArtifactText {
		text := art.Text
		if art.Title != "" {
			text = art.Title + "\n\n" + text
		}
		if err := e.sendText(ctx, job, text); err != nil {
			return d, deliveryError(err)
		}
		d.reply = art.Text
		return d, nil
	}

	for i, part := range art.Parts() {
		caption := captionFor(job, &part, i)
		msg, err := e.sendMedia(ctx, job, &part, caption)
		if err != nil {
			return d, deliveryError(err)
		}
		if msg != nil && msg.Voice != nil {
			d.audioID = msg.Voice.FileID
		}
	}
	d.reply = art.Text
	if job.Kind == entity.KindVoiceChat && art.Text != "" {
		if err := e.sendText(ctx, job, art.Text); err != nil {
			return d, deliveryError(err)
		}
	}
	return d, nil
}

type delivery struct {
	reply   string
	audioID string
}

func (e *JobExecutor) sendText(ctx context.Context, job *entity.Job, text string) error {
	for i, chunk := range utils.SplitMessage(text, maxMessageRunes) {
		opts := telegram.SendOptions{}
		if i == 0 {
			opts.ReplyTo = job.OriginMessageID
		}
		if _, err := e.messenger.SendMessage(ctx, job.ChatID, chunk, opts); err != nil {
			return err
		}
	}
	return nil
}

func (e *JobExecutor) sendMedia(ctx context.Context, job *entity.Job, part *provider.Artifact, caption string) (*telegram.Message, error) {
	file := telegram.InputFile{URL: part.URL, Path: part.Path, Name: filepath.Base(part.Path)}
	if part.Path != "" {
		file.URL = ""
	}
	mime := part.MIME
	switch {
	case strings.HasPrefix(mime, "image/"):
		return e.messenger.SendPhoto(ctx, job.ChatID, file, caption)
	case strings.HasPrefix(mime, "video/"):
		return e.messenger.SendVideo(ctx, job.ChatID, file, caption)
	case strings.HasPrefix(mime, "audio/"):
		if job.Kind == entity.KindTTS || job.Kind == entity.KindVoiceChat {
			return e.messenger.SendVoice(ctx, job.ChatID, file, caption)
		}
		return e.messenger.SendAudio(ctx, job.ChatID, file, caption)
	default:
		return e.messenger.SendDocument(ctx, job.ChatID, file, caption)
	}
}

// afterDelivery records the generation and extends the conversation. Its
// failures are logged only: the user already has the artifact.
func (e *JobExecutor) afterDelivery(ctx context.Context, job *entity.Job, art *provider.Artifact, d delivery) {
	if !job.NoRecord {
		if _, err := e.gate.Record(ctx, job); err != nil {
			e.logger.Error("EXECUTOR", "Failed to record generation", map[string]interface{}{
				"jobId": job.ID,
				"kind":  string(job.Kind),
				"error": err.Error(),
			})
		}
	}
	if !job.Kind.IsConversation() {
		return
	}

	userText := job.Args.Get(entity.ArgPrompt)
	if t := art.Meta["transcript"]; t != "" {
		userText = t
	}
	now := time.Now()
	if _, err := e.sessions.Mutate(ctx, job.UserID, func(s *entity.Session) error {
		s.AppendExchange(userText, d.reply, d.audioID, now)
		return nil
	}); err != nil {
		e.logger.Warn("EXECUTOR", "Failed to update session history", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
	}
	err := e.uowFactory.NewUnitOfWork(ctx).ConversationRepository().Append(ctx, &entity.Conversation{
		UserID:     job.UserID,
		UserText:   userText,
		BotText:    d.reply,
		ModelClass: job.Kind.ModelClass(),
		AudioID:    d.audioID,
		Timestamp:  now,
	})
	if err != nil {
		e.logger.Warn("EXECUTOR", "Failed to persist conversation", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
	}
}

func failureError(f *provider.Error) error {
	kind := f.Kind()
	detail := f.Detail
	if kind == entity.ErrorTransient {
		detail = ""
	}
	return &entity.JobError{Kind: kind, Detail: detail, Err: f}
}

func deliveryError(err error) error {
	var reqErr *telegram.RequestError
	if errors.As(err, &reqErr) && !reqErr.Retryable() {
		return &entity.JobError{Kind: entity.ErrorPermanent, Detail: "the result could not be sent to this chat", Err: err}
	}
	return &entity.JobError{Kind: entity.ErrorTransient, Detail: "I couldn't send the result. Please try again.", Err: err}
}

func historyMessages(history []entity.ConversationTurn) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		out = append(out, llm.Message{Role: string(t.Role), Content: t.Text})
	}
	return out
}

func captionFor(job *entity.Job, part *provider.Artifact, index int) string {
	caption := part.Title
	if caption == "" && index == 0 {
		caption = part.Text
	}
	if caption == "" && index == 0 {
		caption = job.Args.Get(entity.ArgPrompt)
	}
	if job.Kind == entity.KindVoiceChat {
		caption = ""
	}
	return progress.Truncate(caption, maxCaptionRunes)
}

func inputExt(kind entity.GenerationKind) string {
	switch kind {
	case entity.KindVoiceChat:
		return ".ogg"
	default:
		return ".jpg"
	}
}

func pulseFor(kind entity.GenerationKind) *progress.PulseRenderer {
	switch kind {
	case entity.KindTextChat:
		return progress.NewPulseRenderer("Thinking")
	case entity.KindVoiceChat:
		return progress.NewPulseRenderer("Listening", "Thinking", "Recording reply")
	case entity.KindImageAnalyze:
		return progress.NewPulseRenderer("Looking at the image")
	case entity.KindTTS:
		return progress.NewPulseRenderer("Recording voice")
	case entity.KindMusicGen:
		return progress.NewPulseRenderer("Composing", "Mixing")
	case entity.KindVideoGen, entity.KindImageToVideo:
		return progress.NewPulseRenderer("Rendering video")
	default:
		return progress.NewPulseRenderer("Generating", "Rendering")
	}
}

func loadGlobalSystemPrompt(ctx context.Context, uowFactory unitofwork.RepositoryFactory) (string, error) {
	raw, err := uowFactory.NewUnitOfWork(ctx).UserDataRepository().Get(ctx, entity.GlobalUserID, entity.UserDataGlobalSystem)
	if err != nil || raw == nil {
		return "", err
	}
	var prompt string
	if err := json.Unmarshal(raw, &prompt); err != nil {
		return "", err
	}
	return prompt, nil
}
