package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"ai-genbot-gateway/internal/bootstrap"
	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/server"
	"ai-genbot-gateway/internal/tracer"
	"ai-genbot-gateway/pkg/database"
	"ai-genbot-gateway/pkg/telegram"

	"golang.org/x/sync/errgroup"
)

// restartExitCode tells the supervisor the exit was an admin /restart.
const restartExitCode = 3

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()
	if cfg.Telegram.Token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is not set")
	}

	shutdownTracer, err := tracer.Setup(ctx, cfg)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	} else if cfg.Tracing.Enabled {
		log.Printf("✅ OpenTelemetry tracer initialized (endpoint: %s)", cfg.Tracing.Endpoint)
	}
	defer shutdownTracer(context.Background())

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, !cfg.IsProduction())
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	container, err := bootstrap.NewContainer(runCtx, gormDB, cfg)
	if err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}
	sysLog := container.Logger

	var restarting atomic.Bool
	go func() {
		select {
		case <-container.RestartRequested():
			sysLog.Warn("MAIN", "Restart requested, shutting down", nil)
			restarting.Store(true)
			cancel()
		case <-runCtx.Done():
		}
	}()

	// 4. Start Background Services
	g, gctx := errgroup.WithContext(runCtx)
	for _, r := range container.Runners() {
		r := r
		g.Go(func() error {
			if err := r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				sysLog.Error("MAIN", "Background loop failed", map[string]interface{}{"runner": r.Name, "error": err.Error()})
				return err
			}
			return nil
		})
	}

	// 5. Updates: long polling or webhook
	switch cfg.Telegram.Mode {
	case "webhook":
		if err := container.Telegram.SetWebhook(gctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			sysLog.Error("MAIN", "setWebhook failed", map[string]interface{}{"error": err.Error()})
			g.Go(func() error { return err })
		}
		sysLog.Info("MAIN", "Receiving updates by webhook", map[string]interface{}{"url": cfg.Telegram.WebhookURL})
	default:
		if err := container.Telegram.DeleteWebhook(gctx); err != nil {
			sysLog.Warn("MAIN", "deleteWebhook failed", map[string]interface{}{"error": err.Error()})
		}
		poller := telegram.NewPoller(container.Telegram, sysLog, container.Router.Dispatch)
		g.Go(func() error { return poller.Run(gctx) })
		sysLog.Info("MAIN", "Receiving updates by long polling", nil)
	}

	// 6. HTTP server: webhook, health, metrics and the admin console
	srv := server.New(cfg, container)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	code := 0
	if err := g.Wait(); err != nil {
		sysLog.Error("MAIN", "Stopped with error", map[string]interface{}{"error": err.Error()})
		code = 1
	}
	container.Close()

	if restarting.Load() {
		return restartExitCode
	}
	return code
}
