package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/contract"
	"ai-genbot-gateway/internal/repository/kv"
	"ai-genbot-gateway/internal/repository/repotest"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/internal/service"
	"ai-genbot-gateway/pkg/progress"
	"ai-genbot-gateway/pkg/provider"
	"ai-genbot-gateway/pkg/scratch"
	"ai-genbot-gateway/pkg/taskqueue"
	"ai-genbot-gateway/pkg/telegram"
)

type sentText struct {
	chatID  int64
	id      int64
	text    string
	replyTo int64
}

type sentMedia struct {
	method  string
	chatID  int64
	file    telegram.InputFile
	caption string
}

type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int64
	texts     []sentText
	edits     map[int64][]string
	deleted   map[int64]bool
	media     []sentMedia
	answers   []string
	files     map[string]string
	failSends bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		nextID:  100,
		edits:   make(map[int64][]string),
		deleted: make(map[int64]bool),
		files:   make(map[string]string),
	}
}

func (m *fakeMessenger) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, opts telegram.SendOptions) (*telegram.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSends {
		return nil, &telegram.RequestError{Method: "sendMessage", StatusCode: 502}
	}
	id := m.id()
	m.texts = append(m.texts, sentText{chatID: chatID, id: id, text: text, replyTo: opts.ReplyTo})
	return &telegram.Message{MessageID: id, Chat: &telegram.Chat{ID: chatID}, Text: text}, nil
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

func (m *fakeMessenger) AnswerCallbackQuery(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, text)
	return nil
}

func (m *fakeMessenger) sendMedia(method string, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media = append(m.media, sentMedia{method: method, chatID: chatID, file: file, caption: caption})
	msg := &telegram.Message{MessageID: m.id(), Chat: &telegram.Chat{ID: chatID}, Caption: caption}
	if method == "voice" {
		msg.Voice = &telegram.Voice{FileID: fmt.Sprintf("voice-%d", msg.MessageID)}
	}
	return msg, nil
}

func (m *fakeMessenger) SendPhoto(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.sendMedia("photo", chatID, file, caption)
}

func (m *fakeMessenger) SendAudio(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.sendMedia("audio", chatID, file, caption)
}

func (m *fakeMessenger) SendVoice(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.sendMedia("voice", chatID, file, caption)
}

func (m *fakeMessenger) SendVideo(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.sendMedia("video", chatID, file, caption)
}

func (m *fakeMessenger) SendDocument(_ context.Context, chatID int64, file telegram.InputFile, caption string) (*telegram.Message, error) {
	return m.sendMedia("document", chatID, file, caption)
}

func (m *fakeMessenger) DownloadFile(_ context.Context, fileID, dstPath string, _ int64) (int64, error) {
	m.mu.Lock()
	content, ok := m.files[fileID]
	m.mu.Unlock()
	if !ok {
		return 0, &telegram.RequestError{Method: "getFile", StatusCode: 400, Description: "Bad Request: invalid file_id"}
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
	for _, t := range m.texts {
		if t.chatID == chatID {
			out = append(out, t.text)
		}
	}
	return out
}

func (m *fakeMessenger) mediaOf(method string) []sentMedia {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMedia
	for _, s := range m.media {
		if s.method == method {
			out = append(out, s)
		}
	}
	return out
}

func (m *fakeMessenger) wasDeleted(messageID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted[messageID]
}

func (m *fakeMessenger) lastEdit(messageID int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	edits := m.edits[messageID]
	if len(edits) == 0 {
		return ""
	}
	return edits[len(edits)-1]
}

// stubProvider answers every invocation with fn.
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

func (p *stubProvider) requests() []provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.Request(nil), p.reqs...)
}

// brokenStore fails every call, like an unreachable Redis.
type brokenStore struct{}

var errStoreDown = errors.New("dial tcp: connection refused")

func (brokenStore) Get(context.Context, int64, string, time.Duration) ([]byte, error) {
	return nil, errStoreDown
}

func (brokenStore) Put(context.Context, int64, string, []byte, time.Duration) error {
	return errStoreDown
}

func (brokenStore) Update(context.Context, int64, string, time.Duration, func([]byte) ([]byte, error)) error {
	return errStoreDown
}

func (brokenStore) Delete(context.Context, int64, string) error { return errStoreDown }

type testEnv struct {
	uow      unitofwork.RepositoryFactory
	store    contract.KVStore
	msgr     *fakeMessenger
	registry *provider.Registry
	sessions service.ISessionService
	gate     service.IQuotaGate
	exec     *service.JobExecutor
	queue    *taskqueue.Queue
	jobs     service.IJobService
}

func newTestEnv(t *testing.T, quotas config.Quotas, admins ...int64) *testEnv {
	t.Helper()
	log := logger.NewNopLogger()
	uow := unitofwork.NewRepositoryFactory(repotest.OpenSQLite(t))
	store := kv.NewMemoryStore()
	msgr := newFakeMessenger()
	registry := provider.NewRegistry()

	scratchDirs, err := scratch.NewManager(t.TempDir(), log)
	if err != nil {
		t.Fatalf("scratch: %v", err)
	}
	if quotas == nil {
		quotas = config.Quotas{}
	}

	sessions := service.NewSessionService(store, uow, log)
	gate := service.NewQuotaGate(uow, quotas, admins, log)
	notifier := service.NewNotifier(msgr, admins, log)
	exec := service.NewJobExecutor(registry, msgr, sessions, gate, notifier, uow, scratchDirs,
		service.ExecutorConfig{EditInterval: 10 * time.Millisecond, SystemPrompt: "You are a helpful assistant."}, log)

	queue := taskqueue.New(taskqueue.Config{QuickWorkers: 2, LongRunWorkers: 2}, exec, nil, log)
	queue.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = queue.Shutdown(ctx)
	})

	jobs := service.NewJobService(msgr, gate, sessions, queue, nil, config.DeadlineConfig{}, log)
	return &testEnv{
		uow:      uow,
		store:    store,
		msgr:     msgr,
		registry: registry,
		sessions: sessions,
		gate:     gate,
		exec:     exec,
		queue:    queue,
		jobs:     jobs,
	}
}
