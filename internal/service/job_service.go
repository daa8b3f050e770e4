package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/jobqueue"
	"ai-genbot-gateway/pkg/taskqueue"
	"ai-genbot-gateway/pkg/telegram"

	"github.com/oklog/ulid/v2"
)

const placeholderText = "⏳ Queued…"

// InProcessQueue is the part of *taskqueue.Queue the job service uses.
type InProcessQueue interface {
	Submit(job *entity.Job) (int, error)
	CancelUser(userID int64, match func(*entity.Job) bool) int
	Stats() map[entity.PriorityClass]taskqueue.ClassStats
}

// DurableQueue is the part of *jobqueue.Queue the job service uses.
type DurableQueue interface {
	Submit(ctx context.Context, job *entity.Job) error
	Cancel(jobID string)
	Stats(ctx context.Context) jobqueue.Stats
}

// JobRequest is what a command handler asks for.
type JobRequest struct {
	UserID          int64
	ChatID          int64
	OriginMessageID int64
	Kind            entity.GenerationKind
	Provider        string
	Model           string
	Command         string
	Args            entity.JobArgs
	NoRecord        bool
}

type IJobService interface {
	// Submit admits the request, posts the progress placeholder and hands
	// the job to its queue. A rejection comes back as *entity.UserError.
	Submit(ctx context.Context, req JobRequest) (*entity.Job, error)
	CancelConversation(ctx context.Context, userID int64) int
	QueueStatus(ctx context.Context) string
}

type jobService struct {
	messenger Messenger
	gate      IQuotaGate
	sessions  ISessionService
	local     InProcessQueue
	durable   DurableQueue
	deadlines config.DeadlineConfig
	logger    logger.ILogger
}

// NewJobService accepts a nil durable queue; durable kinds then run on the
// long_run class of the in-process queue.
func NewJobService(
	messenger Messenger,
	gate IQuotaGate,
	sessions ISessionService,
	local InProcessQueue,
	durable DurableQueue,
	deadlines config.DeadlineConfig,
	log logger.ILogger,
) IJobService {
	return &jobService{
		messenger: messenger,
		gate:      gate,
		sessions:  sessions,
		local:     local,
		durable:   durable,
		deadlines: deadlines,
		logger:    log,
	}
}

func NewJobID() string {
	return ulid.Make().String()
}

func (s *jobService) Submit(ctx context.Context, req JobRequest) (*entity.Job, error) {
	if !req.NoRecord {
		if d := s.gate.Admit(ctx, req.UserID, req.Kind); !d.Allow {
			return nil, &entity.UserError{Kind: entity.ErrorQuota, Message: d.Message()}
		}
	}

	job := &entity.Job{
		ID:              NewJobID(),
		UserID:          req.UserID,
		ChatID:          req.ChatID,
		OriginMessageID: req.OriginMessageID,
		Class:           req.Kind.DefaultClass(),
		Kind:            req.Kind,
		Provider:        req.Provider,
		Model:           req.Model,
		Command:         req.Command,
		Args:            req.Args,
		Timeout:         s.timeoutFor(req.Kind, req.Provider),
		NoRecord:        req.NoRecord,
	}
	if job.Class == entity.ClassDurable && s.durable == nil {
		job.Class = entity.ClassLongRun
	}

	msg, err := s.messenger.SendMessage(ctx, job.ChatID, placeholderText, telegram.SendOptions{ReplyTo: job.OriginMessageID})
	if err != nil {
		if !job.NoRecord {
			s.gate.Release(job.UserID, job.Kind)
		}
		return nil, &entity.UserError{Kind: entity.ErrorTransient, Message: "I couldn't start that right now. Please try again.", Err: err}
	}
	job.ProgressMessageID = msg.MessageID

	if _, err := s.sessions.Mutate(ctx, job.UserID, func(sess *entity.Session) error {
		sess.AddInFlight(job.Ref())
		return nil
	}); err != nil {
		s.logger.Warn("DISPATCH", "Failed to track in-flight job", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
	}

	position, err := s.enqueue(ctx, job)
	if err != nil {
		s.rollback(ctx, job)
		s.logger.Error("DISPATCH", "Failed to submit job", map[string]interface{}{
			"jobId": job.ID,
			"kind":  string(job.Kind),
			"class": string(job.Class),
			"error": err.Error(),
		})
		if errors.Is(err, jobqueue.ErrDeadlineTooLong) {
			return nil, &entity.UserError{Kind: entity.ErrorInternal, Message: "This generation is misconfigured.", Err: err, MessageID: job.ProgressMessageID}
		}
		return nil, &entity.UserError{Kind: entity.ErrorTransient, Message: "The job queue is unavailable. Please try again shortly.", Err: err, MessageID: job.ProgressMessageID}
	}

	s.logger.Info("DISPATCH", "Job submitted", map[string]interface{}{
		"jobId":    job.ID,
		"userId":   job.UserID,
		"kind":     string(job.Kind),
		"class":    string(job.Class),
		"position": position,
	})
	if position > 1 {
		text := fmt.Sprintf("⏳ Queued (position %d)…", position)
		if err := s.messenger.EditMessageText(ctx, job.ChatID, job.ProgressMessageID, text); err != nil && !errors.Is(err, telegram.ErrMessageNotModified) {
			s.logger.Debug("DISPATCH", "Failed to show queue position", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
		}
	}
	return job, nil
}

// enqueue returns the job's position in its class; durable jobs report 0.
func (s *jobService) enqueue(ctx context.Context, job *entity.Job) (int, error) {
	if job.Class == entity.ClassDurable {
		return 0, s.durable.Submit(ctx, job)
	}
	return s.local.Submit(job)
}

// rollback forgets the job; its placeholder stays and is rewritten with the
// error by whoever reports the returned error.
func (s *jobService) rollback(ctx context.Context, job *entity.Job) {
	if !job.NoRecord {
		s.gate.Release(job.UserID, job.Kind)
	}
	_, _ = s.sessions.Mutate(ctx, job.UserID, func(sess *entity.Session) error {
		sess.RemoveInFlight(job.ID)
		return nil
	})
}

func (s *jobService) timeoutFor(kind entity.GenerationKind, providerName string) time.Duration {
	if kind == entity.KindVideoGen || kind == entity.KindImageToVideo {
		if d, ok := s.deadlines.VideoByProv[providerName]; ok && d > 0 {
			return d
		}
		if s.deadlines.Video > 0 {
			return s.deadlines.Video
		}
	}
	return kind.DefaultDeadline()
}

func (s *jobService) CancelConversation(ctx context.Context, userID int64) int {
	n := s.local.CancelUser(userID, func(job *entity.Job) bool {
		return job.Kind.IsConversation()
	})
	if n > 0 {
		s.logger.Info("DISPATCH", "Cancelled conversation jobs", map[string]interface{}{"userId": userID, "count": n})
	}
	return n
}

func (s *jobService) QueueStatus(ctx context.Context) string {
	stats := s.local.Stats()
	classes := make([]string, 0, len(stats))
	for c := range stats {
		classes = append(classes, string(c))
	}
	sort.Strings(classes)

	var b strings.Builder
	b.WriteString("📊 Queue status\n")
	for _, c := range classes {
		st := stats[entity.PriorityClass(c)]
		fmt.Fprintf(&b, "%s: %d running / %d workers, %d waiting\n", c, st.Running, st.Workers, st.Queued)
	}
	if s.durable != nil {
		st := s.durable.Stats(ctx)
		fmt.Fprintf(&b, "durable: %d running / %d workers, %d pending\n", st.Running, st.Workers, st.Pending)
	}
	return strings.TrimRight(b.String(), "\n")
}
