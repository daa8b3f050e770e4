package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/contract"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/pkg/provider"
)

const (
	SessionTTL = time.Hour
	PartialTTL = 5 * time.Minute

	sessionKey       = "session"
	partialKey       = "partial"
	checkpointPrefix = "checkpoint:"
)

type ISessionService interface {
	// Load never fails: when the store is unreachable the returned session is
	// ephemeral and nothing done to it is saved.
	Load(ctx context.Context, userID int64) *entity.Session
	Mutate(ctx context.Context, userID int64, fn func(s *entity.Session) error) (*entity.Session, error)
	// Reset clears the conversation history, hot and cold, and any flow.
	Reset(ctx context.Context, userID int64) error
	StagePartial(ctx context.Context, userID int64, value string) error
	TakePartial(ctx context.Context, userID int64) (string, error)
	Checkpoint(userID int64, jobID string, ttl time.Duration) provider.Checkpoint
	ClearCheckpoint(ctx context.Context, userID int64, jobID string) error
}

type sessionService struct {
	store      contract.KVStore
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
}

func NewSessionService(store contract.KVStore, uowFactory unitofwork.RepositoryFactory, log logger.ILogger) ISessionService {
	return &sessionService{
		store:      store,
		uowFactory: uowFactory,
		logger:     log,
	}
}

func (s *sessionService) Load(ctx context.Context, userID int64) *entity.Session {
	raw, err := s.store.Get(ctx, userID, sessionKey, SessionTTL)
	if err != nil {
		s.logger.Warn("SESSION", "Session store unavailable, using request-scoped session", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return s.ephemeral(ctx, userID)
	}
	if raw != nil {
		if sess, err := decodeSession(raw); err == nil {
			return sess
		}
		s.logger.Warn("SESSION", "Dropping unreadable session", map[string]interface{}{"userId": userID})
	}

	sess := s.restore(ctx, userID)
	if encoded, err := encodeSession(sess); err == nil {
		if err := s.store.Put(ctx, userID, sessionKey, encoded, SessionTTL); err != nil {
			s.logger.Warn("SESSION", "Failed to save restored session", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}
	return sess
}

// fnError marks an error returned by the caller's mutation, as opposed to
// one from the store.
type fnError struct{ err error }

func (e fnError) Error() string { return e.err.Error() }

func (s *sessionService) Mutate(ctx context.Context, userID int64, fn func(sess *entity.Session) error) (*entity.Session, error) {
	var (
		result    *entity.Session
		prefsPrev entity.Preferences
	)
	err := s.store.Update(ctx, userID, sessionKey, SessionTTL, func(current []byte) ([]byte, error) {
		var sess *entity.Session
		if current != nil {
			if decoded, err := decodeSession(current); err == nil {
				sess = decoded
			}
		}
		if sess == nil {
			sess = s.restore(ctx, userID)
		}
		prefsPrev = sess.Preferences
		if err := fn(sess); err != nil {
			return nil, fnError{err}
		}
		sess.UpdatedAt = time.Now()
		encoded, err := encodeSession(sess)
		if err != nil {
			return nil, err
		}
		result = sess
		return encoded, nil
	})

	var callerErr fnError
	switch {
	case errors.As(err, &callerErr):
		return nil, callerErr.err
	case errors.Is(err, contract.ErrValueTooLarge):
		s.logger.Error("SESSION", "Session does not fit the store even without history", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("save session: %w", err)
	case err != nil:
		s.logger.Warn("SESSION", "Session update failed, continuing request-scoped", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
		sess := s.ephemeral(ctx, userID)
		prefsPrev = sess.Preferences
		if err := fn(sess); err != nil {
			return nil, err
		}
		result = sess
	}

	if result.Preferences != prefsPrev {
		s.savePreferences(ctx, userID, result.Preferences)
	}
	return result, nil
}

func (s *sessionService) Reset(ctx context.Context, userID int64) error {
	if _, err := s.Mutate(ctx, userID, func(sess *entity.Session) error {
		sess.ClearHistory()
		sess.Flow = nil
		return nil
	}); err != nil {
		return err
	}
	if err := s.uowFactory.NewUnitOfWork(ctx).ConversationRepository().DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("delete conversation history: %w", err)
	}
	return nil
}

func (s *sessionService) StagePartial(ctx context.Context, userID int64, value string) error {
	return s.store.Put(ctx, userID, partialKey, []byte(value), PartialTTL)
}

// TakePartial returns and clears the staged value; "" when none is staged.
func (s *sessionService) TakePartial(ctx context.Context, userID int64) (string, error) {
	var out string
	err := s.store.Update(ctx, userID, partialKey, PartialTTL, func(current []byte) ([]byte, error) {
		out = string(current)
		return nil, nil
	})
	return out, err
}

func (s *sessionService) Checkpoint(userID int64, jobID string, ttl time.Duration) provider.Checkpoint {
	return &kvCheckpoint{store: s.store, userID: userID, key: checkpointPrefix + jobID, ttl: ttl}
}

func (s *sessionService) ClearCheckpoint(ctx context.Context, userID int64, jobID string) error {
	return s.store.Delete(ctx, userID, checkpointPrefix+jobID)
}

// restore rebuilds a session from the relational store after the hot copy
// expired: persisted preferences plus the newest conversation rows.
func (s *sessionService) restore(ctx context.Context, userID int64) *entity.Session {
	sess := entity.NewSession(userID)
	uow := s.uowFactory.NewUnitOfWork(ctx)

	raw, err := uow.UserDataRepository().Get(ctx, userID, entity.UserDataPreferences)
	if err != nil {
		s.logger.Warn("SESSION", "Failed to load preferences", map[string]interface{}{"userId": userID, "error": err.Error()})
	} else if raw != nil {
		if err := json.Unmarshal(raw, &sess.Preferences); err != nil {
			s.logger.Warn("SESSION", "Ignoring unreadable preferences", map[string]interface{}{"userId": userID})
		}
	}

	rows, err := uow.ConversationRepository().LastN(ctx, userID, entity.MaxHistoryTurns/2)
	if err != nil {
		s.logger.Warn("SESSION", "Failed to load conversation history", map[string]interface{}{"userId": userID, "error": err.Error()})
		return sess
	}
	for _, row := range rows {
		turns := row.Turns()
		sess.AppendExchange(turns[0].Text, turns[1].Text, turns[1].AudioID, row.Timestamp)
	}
	return sess
}

// encodeSession marshals sess, evicting the oldest exchanges until the value
// fits the store's cap.
func encodeSession(sess *entity.Session) ([]byte, error) {
	for {
		encoded, err := json.Marshal(sess)
		if err != nil {
			return nil, err
		}
		if len(encoded) <= contract.MaxKVValueSize {
			return encoded, nil
		}
		if !sess.DropOldestExchange() {
			return nil, contract.ErrValueTooLarge
		}
	}
}

func (s *sessionService) ephemeral(ctx context.Context, userID int64) *entity.Session {
	sess := s.restore(ctx, userID)
	sess.Ephemeral = true
	return sess
}

func (s *sessionService) savePreferences(ctx context.Context, userID int64, prefs entity.Preferences) {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return
	}
	if err := s.uowFactory.NewUnitOfWork(ctx).UserDataRepository().Put(ctx, userID, entity.UserDataPreferences, raw); err != nil {
		s.logger.Warn("SESSION", "Failed to persist preferences", map[string]interface{}{"userId": userID, "error": err.Error()})
	}
}

func decodeSession(raw []byte) (*entity.Session, error) {
	var sess entity.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// kvCheckpoint keeps an adapter's upstream job id next to the session so a
// redelivered durable job resumes polling instead of paying twice.
type kvCheckpoint struct {
	store  contract.KVStore
	userID int64
	key    string
	ttl    time.Duration
}

func (c *kvCheckpoint) Load(ctx context.Context) (string, error) {
	raw, err := c.store.Get(ctx, c.userID, c.key, c.ttl)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *kvCheckpoint) Save(ctx context.Context, value string) error {
	return c.store.Put(ctx, c.userID, c.key, []byte(value), c.ttl)
}
