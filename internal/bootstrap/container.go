package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/constant"
	"ai-genbot-gateway/internal/controller"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/handler"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/repository/contract"
	"ai-genbot-gateway/internal/repository/kv"
	"ai-genbot-gateway/internal/repository/unitofwork"
	"ai-genbot-gateway/internal/service"
	"ai-genbot-gateway/internal/websocket"
	"ai-genbot-gateway/pkg/catalog"
	"ai-genbot-gateway/pkg/database"
	"ai-genbot-gateway/pkg/events"
	"ai-genbot-gateway/pkg/jobqueue"
	"ai-genbot-gateway/pkg/llm/factory"
	"ai-genbot-gateway/pkg/llm/openai"
	"ai-genbot-gateway/pkg/metrics"
	"ai-genbot-gateway/pkg/provider"
	"ai-genbot-gateway/pkg/scratch"
	"ai-genbot-gateway/pkg/taskqueue"
	"ai-genbot-gateway/pkg/telegram"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Runner is a long-lived background loop owned by the container.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

type Container struct {
	Logger *logger.ZapLogger

	Telegram   *telegram.Client
	Router     *controller.Router
	JobService service.IJobService
	Collector  *metrics.Collector

	WebhookHandler *handler.WebhookHandler
	ConsoleHandler *handler.ConsoleHandler
	WebSocketHub   *websocket.Hub

	runners []Runner
	closers []func() error

	restartOnce sync.Once
	restart     chan struct{}
}

// NewContainer wires every component. ctx is the process context; work
// dispatched from webhook requests runs on it.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	c := &Container{restart: make(chan struct{})}

	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	c.Logger = sysLogger

	quotas, err := config.LoadQuotas(cfg.Quota.File)
	if err != nil {
		return nil, err
	}

	scratchDirs, err := scratch.NewManager(cfg.App.ScratchDir, sysLogger)
	if err != nil {
		return nil, err
	}

	tg := telegram.NewClient(&http.Client{Timeout: 90 * time.Second}, cfg.Telegram.BaseURL, cfg.Telegram.Token)
	c.Telegram = tg
	if cfg.Telegram.BotUsername == "" {
		me, err := tg.GetMe(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve bot username: %w", err)
		}
		cfg.Telegram.BotUsername = me.Username
	}

	// 2. Event Bus
	bus := events.NewBus(sysLogger)
	c.closers = append(c.closers, bus.Close)

	// 3. Session store: Redis when configured, process memory otherwise
	var rdb *redis.Client
	var store contract.KVStore
	if cfg.Redis.URL != "" {
		rdb, err = database.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, rdb.Close)
		store = kv.NewRedisStore(rdb, "genbot:")
		sysLogger.Info("BOOT", "Session store: redis", nil)
	} else {
		store = kv.NewMemoryStore()
		sysLogger.Warn("BOOT", "Session store: memory (sessions are lost on restart)", nil)
	}

	// 4. Provider adapters
	registry, tts, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	sysLogger.Info("BOOT", "Providers registered", map[string]interface{}{"providers": registry.Names()})

	// 5. Metrics and catalogs
	collector := metrics.NewCollector(service.NewUsageSink(uowFactory), sysLogger)
	c.Collector = collector
	if err := collector.Subscribe(ctx, bus); err != nil {
		return nil, fmt.Errorf("failed to subscribe collector: %w", err)
	}

	catalogs := newCatalogs(cfg, registry, tts, collector, sysLogger)

	// 6. Services
	sessions := service.NewSessionService(store, uowFactory, sysLogger)
	gate := service.NewQuotaGate(uowFactory, quotas, cfg.Access.AdminIDs, sysLogger)
	notifier := service.NewNotifier(tg, cfg.Access.AdminIDs, sysLogger)
	executor := service.NewJobExecutor(registry, tg, sessions, gate, notifier, uowFactory, scratchDirs,
		service.ExecutorConfig{EditInterval: cfg.Progress.EditInterval, SystemPrompt: cfg.Ai.SystemPrompt}, sysLogger)

	local := taskqueue.New(taskqueue.Config{
		QuickWorkers:       cfg.Queue.QuickWorkers,
		LongRunWorkers:     cfg.Queue.LongRunWorkers,
		QuickMaxAttempts:   cfg.Queue.QuickAttempts,
		LongRunMaxAttempts: cfg.Queue.LongAttempts,
	}, executor, bus, sysLogger)
	c.runners = append(c.runners, Runner{Name: "taskqueue", Run: local.Run})

	var durable service.DurableQueue
	broker, err := newBroker(ctx, cfg, sysLogger)
	if err != nil {
		return nil, err
	}
	if broker != nil {
		c.closers = append(c.closers, broker.Close)
		q := jobqueue.New(jobqueue.Config{
			Workers:     cfg.Broker.ConsumerWorkers,
			Visibility:  visibility(cfg),
			MaxAttempts: cfg.Broker.MaxAttempts,
		}, broker, executor, service.NewDeliveryGuard(uowFactory), bus, sysLogger)
		c.runners = append(c.runners, Runner{Name: "jobqueue", Run: q.Run})
		durable = q
	} else {
		sysLogger.Warn("BOOT", "No durable broker; video jobs run on the long_run class", nil)
	}

	jobs := service.NewJobService(tg, gate, sessions, local, durable, cfg.Deadlines, sysLogger)
	c.JobService = jobs

	users := service.NewUserService(uowFactory, sessions, catalogs, tts, tg, scratchDirs, cfg.Ai.SystemPrompt, sysLogger)
	admin := service.NewAdminService(uowFactory, tg, catalogs, collector, sysLogger, c.requestRestart, sysLogger)

	// 7. Command dispatch
	router := controller.NewRouter(tg, sessions, notifier, cfg.Telegram.BotUsername, sysLogger)
	router.Use(
		controller.AccessMiddleware(cfg.Access, sysLogger),
		controller.TouchMiddleware(users, sysLogger),
		controller.MetricsMiddleware(collector),
	)
	controller.NewUserController(users, sessions, jobs, gate).RegisterRoutes(router)
	controller.NewVoiceController(users, sessions, jobs).RegisterRoutes(router)
	controller.NewImageController(users, sessions, jobs).RegisterRoutes(router)
	controller.NewMusicController(sessions, jobs).RegisterRoutes(router)
	controller.NewAdminController(admin, gate, sysLogger).RegisterRoutes(router)
	c.Router = router

	// 8. Admin console and HTTP handlers
	hub := websocket.NewHub(rdb, sysLogger)
	if err := bus.SubscribeJobs(ctx, hub.HandleJobEvent); err != nil {
		return nil, fmt.Errorf("failed to subscribe console hub: %w", err)
	}
	c.WebSocketHub = hub
	c.WebhookHandler = handler.NewWebhookHandler(ctx, router.Dispatch, cfg.Telegram.WebhookSecret, sysLogger)
	c.ConsoleHandler = handler.NewConsoleHandler(admin, jobs, collector, hub, cfg.Access, sysLogger)

	// 9. Background loops
	c.runners = append(c.runners,
		Runner{Name: "hub", Run: hub.Run},
		Runner{Name: "catalogs", Run: catalog.NewRefresher(catalogs, cfg.App.CatalogEvery, catalogs.Names()...).Run},
		Runner{Name: "metrics", Run: func(ctx context.Context) error { return collector.Run(ctx, cfg.App.MetricsFlush) }},
		Runner{Name: "scratch", Run: func(ctx context.Context) error { return scratchDirs.Run(ctx, time.Hour, 6*time.Hour) }},
	)

	return c, nil
}

// Runners lists the background loops main must run until shutdown.
func (c *Container) Runners() []Runner {
	return c.runners
}

// RestartRequested is closed when an admin asks for a restart.
func (c *Container) RestartRequested() <-chan struct{} {
	return c.restart
}

func (c *Container) requestRestart() {
	c.restartOnce.Do(func() { close(c.restart) })
}

// Close releases connections after the runners have stopped.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("BOOT", "Close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	_ = c.Logger.Sync()
}

func newRegistry(cfg *config.Config) (*provider.Registry, *provider.TTSAdapter, error) {
	registry := provider.NewRegistry()

	apiKey := cfg.Keys.OpenAI
	baseURL := cfg.Keys.OpenAIBaseURL
	if cfg.Ai.LLMProvider == "ollama" {
		baseURL = cfg.Ai.OllamaBaseURL
	}
	backend, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, baseURL, apiKey)
	if err != nil {
		return nil, nil, err
	}
	text := provider.NewTextAdapter(constant.ProviderText, backend, cfg.Ai.MaxTokens)
	registry.Register(text, entity.KindTextChat)
	registry.Register(provider.NewVisionAdapter(text, cfg.Ai.VisionModel), entity.KindImageAnalyze)

	registry.Register(provider.NewImageAdapter(constant.ProviderImage,
		provider.NewHTTPClient(constant.ProviderImage, cfg.Keys.OpenAIBaseURL, provider.WithBearer(cfg.Keys.OpenAI)),
		cfg.Ai.ImageModel), entity.KindImageGen)
	registry.Register(provider.NewImageAdapter(constant.ProviderFlux,
		provider.NewHTTPClient(constant.ProviderFlux, cfg.Keys.FluxBaseURL, provider.WithBearer(cfg.Keys.Flux), provider.WithRate(1, 2)),
		firstOr(cfg.Ai.FluxModels, "")))
	registry.Register(provider.NewPhotoAdapter(
		provider.NewHTTPClient(constant.ProviderLeonardo, cfg.Keys.LeonardoURL, provider.WithBearer(cfg.Keys.Leonardo)),
		""), entity.KindBgRemove, entity.KindImageUnzoom)

	tts := provider.NewTTSAdapter(
		provider.NewHTTPClient(constant.ProviderTTS, cfg.Keys.ElevenBaseURL, provider.WithHeader("xi-api-key", cfg.Keys.ElevenLabs)))
	registry.Register(tts, entity.KindTTS)

	// Speech recognition always goes to the OpenAI-compatible endpoint.
	whisper := openai.NewProvider(cfg.Keys.OpenAI, cfg.Keys.OpenAIBaseURL, "whisper-1")
	registry.Register(provider.NewVoiceChatAdapter(whisper, text, tts), entity.KindVoiceChat)

	registry.Register(provider.NewMusicAdapter(
		provider.NewHTTPClient(constant.ProviderMusic, cfg.Keys.SunoBaseURL, provider.WithBearer(cfg.Keys.Suno))), entity.KindMusicGen)
	registry.Register(provider.NewVideoAdapter(constant.ProviderVideo,
		provider.NewHTTPClient(constant.ProviderVideo, cfg.Keys.VideoBaseURL, provider.WithBearer(cfg.Keys.Video))),
		entity.KindVideoGen, entity.KindImageToVideo)

	return registry, tts, nil
}

func newCatalogs(cfg *config.Config, registry *provider.Registry, tts *provider.TTSAdapter, errs catalog.ErrorCounter, log logger.ILogger) *catalog.Service {
	catalogs := catalog.NewService(log, errs)

	textSeed := catalog.Entry{ID: cfg.Ai.LLMModel}
	if p, err := registry.Resolve(entity.KindTextChat, constant.ProviderText); err == nil {
		if text, ok := p.(*provider.TextAdapter); ok {
			catalogs.Register(catalog.TextModels, func(ctx context.Context) ([]catalog.Entry, error) {
				ids, err := text.ListModels(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]catalog.Entry, 0, len(ids))
				for _, id := range ids {
					out = append(out, catalog.Entry{ID: id})
				}
				return out, nil
			}, textSeed)
		}
	}

	flux := make([]catalog.Entry, 0, len(cfg.Ai.FluxModels))
	for _, id := range cfg.Ai.FluxModels {
		flux = append(flux, catalog.Entry{ID: id})
	}
	catalogs.Register(catalog.FluxModels, nil, flux...)

	if p, err := registry.Resolve(entity.KindBgRemove, constant.ProviderLeonardo); err == nil {
		if photo, ok := p.(*provider.PhotoAdapter); ok {
			catalogs.Register(catalog.LeonardoModels, func(ctx context.Context) ([]catalog.Entry, error) {
				models, err := photo.ListModels(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]catalog.Entry, 0, len(models))
				for _, m := range models {
					out = append(out, catalog.Entry{ID: m.ID, Name: m.Name})
				}
				return out, nil
			})
		}
	}

	catalogs.Register(catalog.Voices, func(ctx context.Context) ([]catalog.Entry, error) {
		voices, err := tts.ListVoices(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]catalog.Entry, 0, len(voices))
		for _, v := range voices {
			out = append(out, catalog.Entry{ID: v.ID, Name: v.Name})
		}
		return out, nil
	})

	return catalogs
}

// newBroker returns nil when durable delivery is switched off.
func newBroker(ctx context.Context, cfg *config.Config, log logger.ILogger) (jobqueue.Broker, error) {
	vis := visibility(cfg)
	switch cfg.Broker.Kind {
	case "nats":
		return jobqueue.NewJetStreamBroker(ctx, jobqueue.JetStreamConfig{
			URL:           cfg.Broker.NatsURL,
			Visibility:    vis,
			MaxDeliver:    cfg.Broker.MaxAttempts + 1,
			MaxAckPending: cfg.Broker.ConsumerWorkers,
		}, log)
	case "rabbitmq":
		return jobqueue.NewRabbitBroker(jobqueue.RabbitConfig{
			URL:        cfg.Broker.RabbitURL,
			Queue:      cfg.Broker.Queue,
			Visibility: vis,
			Prefetch:   cfg.Broker.ConsumerWorkers,
		}, log)
	case "memory":
		return jobqueue.NewMemoryBroker(vis), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown durable broker %q", cfg.Broker.Kind)
	}
}

// visibility outlasts the longest configured video deadline by the margin.
func visibility(cfg *config.Config) time.Duration {
	longest := cfg.Deadlines.Video
	if longest <= 0 {
		longest = entity.KindVideoGen.DefaultDeadline()
	}
	for _, d := range cfg.Deadlines.VideoByProv {
		if d > longest {
			longest = d
		}
	}
	return longest + cfg.Broker.VisibilityMargin
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
