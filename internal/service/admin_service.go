package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/specification"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/pkg/catalog"
	"ai-genbot-gateway/pkg/metrics"
	"ai-genbot-gateway/pkg/progress"
	"ai-genbot-gateway/pkg/telegram"

	"golang.org/x/time/rate"
)

// The platform allows about 30 messages per second across chats.
const broadcastRate = 25

// LogReader is implemented by *logger.ZapLogger.
type LogReader interface {
	GetLogs(level string, limit, offset int) ([]logger.LogEntry, error)
}

type BroadcastResult struct {
	Sent   int
	Failed int
}

type IAdminService interface {
	Broadcast(ctx context.Context, text string) (BroadcastResult, error)
	UserStats(ctx context.Context) (*entity.UserStats, error)
	Ban(ctx context.Context, userID int64) error
	Unban(ctx context.Context, userID int64) error
	SetGlobalSystemPrompt(ctx context.Context, prompt string) error
	Logs(level string, limit int) (string, error)
	Restart(ctx context.Context)
	UpdateModels(ctx context.Context) (string, error)
	Performance(ctx context.Context) (string, error)
}

type adminService struct {
	uowFactory unitofwork.RepositoryFactory
	messenger  Messenger
	catalogs   *catalog.Service
	collector  *metrics.Collector
	logs       LogReader
	restart    func()
	logger     logger.ILogger
}

// NewAdminService takes restart as the function that begins a graceful
// shutdown; the host supervisor brings the process back.
func NewAdminService(
	uowFactory unitofwork.RepositoryFactory,
	messenger Messenger,
	catalogs *catalog.Service,
	collector *metrics.Collector,
	logs LogReader,
	restart func(),
	log logger.ILogger,
) IAdminService {
	return &adminService{
		uowFactory: uowFactory,
		messenger:  messenger,
		catalogs:   catalogs,
		collector:  collector,
		logs:       logs,
		restart:    restart,
		logger:     log,
	}
}

func (s *adminService) Broadcast(ctx context.Context, text string) (BroadcastResult, error) {
	var res BroadcastResult
	text = strings.TrimSpace(text)
	if text == "" {
		return res, entity.NewInputError("Usage: /admin_broadcast <message>")
	}
	ids, err := s.uowFactory.NewUnitOfWork(ctx).UserRepository().ListIDs(ctx, specification.NotBanned{})
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(broadcastRate), 1)
	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			return res, err
		}
		if _, err := s.messenger.SendMessage(ctx, id, "📢 "+text, telegram.SendOptions{}); err != nil {
			res.Failed++
			continue
		}
		res.Sent++
	}
	s.logger.Info("ADMIN", "Broadcast finished", map[string]interface{}{"sent": res.Sent, "failed": res.Failed})
	return res, nil
}

func (s *adminService) UserStats(ctx context.Context) (*entity.UserStats, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	users := uow.UserRepository()

	total, err := users.Count(ctx)
	if err != nil {
		return nil, err
	}
	banned, err := users.Count(ctx, specification.BannedUsers{})
	if err != nil {
		return nil, err
	}
	dayAgo := time.Now().UTC().Add(-24 * time.Hour)
	active, err := users.Count(ctx, specification.SeenSince{Since: dayAgo})
	if err != nil {
		return nil, err
	}
	messages, err := users.SumMessages(ctx)
	if err != nil {
		return nil, err
	}
	byKind, err := uow.GenerationRepository().CountByKind(ctx, specification.CreatedSince{Since: dayAgo})
	if err != nil {
		return nil, err
	}
	return &entity.UserStats{
		TotalUsers:       total,
		BannedUsers:      banned,
		ActiveLast24h:    active,
		TotalMessages:    messages,
		GenerationsToday: byKind,
	}, nil
}

// RenderUserStats formats stats for the admin chat.
func RenderUserStats(st *entity.UserStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Users: %d (active 24h: %d, banned: %d)\n", st.TotalUsers, st.ActiveLast24h, st.BannedUsers)
	fmt.Fprintf(&b, "💬 Messages: %d\n", st.TotalMessages)
	if len(st.GenerationsToday) > 0 {
		kinds := make([]string, 0, len(st.GenerationsToday))
		for k := range st.GenerationsToday {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		b.WriteString("🎨 Generations (24h):\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "  %s: %d\n", k, st.GenerationsToday[entity.GenerationKind(k)])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *adminService) Ban(ctx context.Context, userID int64) error {
	return s.setBanned(ctx, userID, true)
}

func (s *adminService) Unban(ctx context.Context, userID int64) error {
	return s.setBanned(ctx, userID, false)
}

func (s *adminService) setBanned(ctx context.Context, userID int64, banned bool) error {
	if userID == 0 {
		return entity.NewInputError("Give a numeric user id.")
	}
	err := s.uowFactory.Transaction(ctx, func(uow unitofwork.UnitOfWork) error {
		var err error
		if banned {
			err = uow.BanRepository().Ban(ctx, userID, time.Now())
		} else {
			err = uow.BanRepository().Unban(ctx, userID)
		}
		if err != nil {
			return err
		}
		return uow.UserRepository().SetBanned(ctx, userID, banned)
	})
	if err != nil {
		return err
	}
	s.logger.Info("ADMIN", "Ban status changed", map[string]interface{}{"userId": userID, "banned": banned})
	return nil
}

func (s *adminService) SetGlobalSystemPrompt(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return entity.NewInputError("Usage: /admin_set_global_system <text>")
	}
	raw, err := json.Marshal(prompt)
	if err != nil {
		return err
	}
	return s.uowFactory.NewUnitOfWork(ctx).UserDataRepository().Put(ctx, entity.GlobalUserID, entity.UserDataGlobalSystem, raw)
}

func (s *adminService) Logs(level string, limit int) (string, error) {
	if s.logs == nil {
		return "", errors.New("log reader not configured")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	entries, err := s.logs.GetLogs(strings.ToLower(strings.TrimSpace(level)), limit, 0)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "No log entries.", nil
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s [%s] %s\n", e.Timestamp, strings.ToUpper(e.Level), e.Module, e.Message)
	}
	return progress.Truncate(strings.TrimRight(b.String(), "\n"), maxMessageRunes), nil
}

func (s *adminService) Restart(ctx context.Context) {
	s.logger.Warn("ADMIN", "Restart requested by admin", nil)
	if s.restart != nil {
		s.restart()
	}
}

func (s *adminService) UpdateModels(ctx context.Context) (string, error) {
	err := s.catalogs.Refresh(ctx)
	var b strings.Builder
	for _, name := range s.catalogs.Names() {
		fmt.Fprintf(&b, "%s: %d\n", name, len(s.catalogs.Snapshot(name)))
	}
	summary := strings.TrimRight(b.String(), "\n")
	if err != nil {
		return summary, fmt.Errorf("some catalogs kept their previous version: %w", err)
	}
	return summary, nil
}

func (s *adminService) Performance(ctx context.Context) (string, error) {
	totals, err := s.collector.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return metrics.Render(totals), nil
}
