package controller_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/controller"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/kv"
	"ai-genbot-gateway/internal/repository/repotest"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/internal/service"
	"ai-genbot-gateway/pkg/catalog"
	"ai-genbot-gateway/pkg/events"
	"ai-genbot-gateway/pkg/metrics"
	"ai-genbot-gateway/pkg/progress"
	"ai-genbot-gateway/pkg/provider"
	"ai-genbot-gateway/pkg/scratch"
	"ai-genbot-gateway/pkg/taskqueue"
	"ai-genbot-gateway/pkg/telegram"

	"github.com/stretchr/testify/require"
)

const (
	adminID       = 1
	settleTimeout = 3 * time.Second
)

type sent struct {
	chatID int64
	id     int64
	text   string
	markup *telegram.InlineKeyboardMarkup
}

type media struct {
	method  string
	chatID  int64
	file    telegram.InputFile
	caption string
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int64
	texts   []sent
	edits   map[int64][]string
	deleted map[int64]bool
	media   []media
	answers []string
	files   map[string]string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		nextID:  1000,
		edits:   make(map[int64][]string),
		deleted: make(map[int64]bool),
		files:   make(map[string]string),
	}
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, opts telegram.SendOptions) (*telegram.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.texts = append(m.texts, sent{chatID: chatID, id: m.nextID, text: text, markup: opts.Markup})
	return &telegram.Message{MessageID: m.nextID, Chat: &telegram.Chat{ID: chatID}, Text: text}, nil
}

func (m *fakeMessenger) EditMessageText(_ context.Context, _ int64, messageID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits[messageID] = append(m.edits[messageID], text)
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[messageID] = true
	return nil
}

func (m *fakeMessenger) SendChatAction(context.Context, int64, string) error { return nil }

func (m *fakeMessenger) AnswerCallbackQuery(_ context.Context, queryID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, queryID)
	return nil
}

func (m *fakeMessenger) send(method string, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.media = append(m.media, media{method: method, chatID: chatID, file: file, caption: caption})
	msg := &telegram.Message{MessageID: m.nextID, Chat: &telegram.Chat{ID: chatID}, Caption: caption}
	if method == "voice" {
		msg.Voice = &telegram.Voice{FileID: fmt.Sprintf("voice-%d", m.nextID)}
	}
	return msg, nil
}

func (m *fakeMessenger) SendPhoto(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.send("photo", chatID, file, caption)
}

func (m *fakeMessenger) SendAudio(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.send("audio", chatID, file, caption)
}

func (m *fakeMessenger) SendVoice(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.send("voice", chatID, file, caption)
}

func (m *fakeMessenger) SendVideo(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.send("video", chatID, file, caption)
}

func (m *fakeMessenger) SendDocument(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.send("document", chatID, file, caption)
}

func (m *fakeMessenger) DownloadFile(_ context.Context, fileID, dstPath string, _ int64) (int64, error) {
	m.mu.Lock()
	content, ok := m.files[fileID]
	m.mu.Unlock()
	if !ok {
		content = "fake-bytes"
	}
	if err := os.WriteFile(dstPath, []byte(content), 0o600); err != nil {
		return 0, err
	}
	return int64(len(content)), nil
}

func (m *fakeMessenger) textsTo(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.texts {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

func (m *fakeMessenger) lastTo(chatID int64) sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.texts) - 1; i >= 0; i-- {
		if m.texts[i].chatID == chatID {
			return m.texts[i]
		}
	}
	return sent{}
}

// placeholderTo returns the id of the newest queued placeholder in chatID.
func (m *fakeMessenger) placeholderTo(chatID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.texts) - 1; i >= 0; i-- {
		if m.texts[i].chatID == chatID && m.texts[i].text == "⏳ Queued…" {
			return m.texts[i].id
		}
	}
	return 0
}

func (m *fakeMessenger) mediaOf(method string) []media {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []media
	for _, s := range m.media {
		if s.method == method {
			out = append(out, s)
		}
	}
	return out
}

func (m *fakeMessenger) editsOf(messageID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.edits[messageID]...)
}

func (m *fakeMessenger) wasDeleted(messageID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted[messageID]
}

func (m *fakeMessenger) answerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.answers)
}

type stubProvider struct {
	name  string
	calls atomic.Int32
	mu    sync.Mutex
	reqs  []provider.Request
	fn    func(ctx context.Context, req provider.Request, sink progress.Sink) provider.Outcome
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Invoke(ctx context.Context, req provider.Request, sink progress.Sink) provider.Outcome {
	p.calls.Add(1)
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	return p.fn(ctx, req, sink)
}

func (p *stubProvider) lastRequest() provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reqs) == 0 {
		return provider.Request{}
	}
	return p.reqs[len(p.reqs)-1]
}

func (p *stubProvider) requests() []provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.Request(nil), p.reqs...)
}

func returning(name string, art *provider.Artifact) *stubProvider {
	return &stubProvider{name: name, fn: func(context.Context, provider.Request, progress.Sink) provider.Outcome {
		return provider.Completed(art)
	}}
}

type env struct {
	uow       unitofwork.RepositoryFactory
	msgr      *fakeMessenger
	registry  *provider.Registry
	sessions  service.ISessionService
	users     service.IUserService
	jobs      service.IJobService
	queue     *taskqueue.Queue
	collector *metrics.Collector
	router    *controller.Router
	restarted chan struct{}
	nextMsg   atomic.Int64
}

type envOption func(*config.AccessConfig, config.Quotas)

func withAccess(allow, deny []int64) envOption {
	return func(a *config.AccessConfig, _ config.Quotas) {
		a.AllowIDs, a.DenyIDs = allow, deny
	}
}

func withQuota(kind entity.GenerationKind, limit int) envOption {
	return func(_ *config.AccessConfig, q config.Quotas) { q[kind] = limit }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	log := logger.NewNopLogger()
	access := config.AccessConfig{AdminIDs: []int64{adminID}}
	quotas := config.Quotas{}
	for _, opt := range opts {
		opt(&access, quotas)
	}

	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	msgr := newFakeMessenger()
	registry := provider.NewRegistry()
	scratchDirs, err := scratch.NewManager(t.TempDir(), log)
	require.NoError(t, err)

	catalogs := catalog.NewService(log, nil)
	catalogs.Register(catalog.TextModels, nil, catalog.Entry{ID: "gpt-4o-mini"}, catalog.Entry{ID: "gpt-4o"})
	catalogs.Register(catalog.FluxModels, nil, catalog.Entry{ID: "flux-schnell"}, catalog.Entry{ID: "flux-dev"})
	catalogs.Register(catalog.LeonardoModels, nil, catalog.Entry{ID: "leo-1", Name: "Phoenix"})
	catalogs.Register(catalog.Voices, nil, catalog.Entry{ID: "v-adam", Name: "Adam"}, catalog.Entry{ID: "v-rachel", Name: "Rachel"})

	sessions := service.NewSessionService(kv.NewMemoryStore(), uow, log)
	gate := service.NewQuotaGate(uow, quotas, access.AdminIDs, log)
	notifier := service.NewNotifier(msgr, access.AdminIDs, log)
	exec := service.NewJobExecutor(registry, msgr, sessions, gate, notifier, uow, scratchDirs,
		service.ExecutorConfig{EditInterval: 10 * time.Millisecond, SystemPrompt: "You are a helpful assistant."}, log)

	collector := metrics.NewCollector(service.NewUsageSink(uow), log)
	bus := events.NewBus(log)
	busCtx, stopBus := context.WithCancel(context.Background())
	require.NoError(t, collector.Subscribe(busCtx, bus))

	queue := taskqueue.New(taskqueue.Config{QuickWorkers: 2, LongRunWorkers: 2}, exec, bus, log)
	queue.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = queue.Shutdown(ctx)
		stopBus()
		_ = bus.Close()
	})
	jobs := service.NewJobService(msgr, gate, sessions, queue, nil, config.DeadlineConfig{}, log)
	users := service.NewUserService(uow, sessions, catalogs, nil, msgr, scratchDirs, "You are a helpful assistant.", log)
	restarted := make(chan struct{}, 1)
	admin := service.NewAdminService(uow, msgr, catalogs, collector, nil, func() { restarted <- struct{}{} }, log)

	router := controller.NewRouter(msgr, sessions, notifier, "genbot", log)
	router.Use(
		controller.AccessMiddleware(access, log),
		controller.TouchMiddleware(users, log),
		controller.MetricsMiddleware(collector),
	)
	controller.NewUserController(users, sessions, jobs, gate).RegisterRoutes(router)
	controller.NewVoiceController(users, sessions, jobs).RegisterRoutes(router)
	controller.NewImageController(users, sessions, jobs).RegisterRoutes(router)
	controller.NewMusicController(sessions, jobs).RegisterRoutes(router)
	controller.NewAdminController(admin, gate, log).RegisterRoutes(router)

	e := &env{
		uow:       uow,
		msgr:      msgr,
		registry:  registry,
		sessions:  sessions,
		users:     users,
		jobs:      jobs,
		queue:     queue,
		collector: collector,
		router:    router,
		restarted: restarted,
	}
	e.nextMsg.Store(1)
	return e
}

func (e *env) message(userID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: e.nextMsg.Add(1),
		Chat:      &telegram.Chat{ID: userID, Type: "private"},
		From:      &telegram.User{ID: userID, FirstName: "Test"},
		Text:      text,
	}
}

func (e *env) send(userID int64, text string) {
	e.router.Dispatch(context.Background(), telegram.Update{Message: e.message(userID, text)})
}

func (e *env) sendMessage(msg *telegram.Message) {
	e.router.Dispatch(context.Background(), telegram.Update{Message: msg})
}

func (e *env) press(userID int64, data string) {
	e.router.Dispatch(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      fmt.Sprintf("cb-%d", e.nextMsg.Add(1)),
		From:    &telegram.User{ID: userID},
		Message: &telegram.Message{MessageID: 900, Chat: &telegram.Chat{ID: userID, Type: "private"}},
		Data:    data,
	}})
}

func (e *env) waitIdle(t *testing.T, userID int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(e.sessions.Load(context.Background(), userID).InFlight) == 0
	}, settleTimeout, 5*time.Millisecond)
}
