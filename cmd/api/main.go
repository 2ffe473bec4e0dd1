package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
	"github.com/RoyPeng126/ai-companion-sub000/internal/compose"
	"github.com/RoyPeng126/ai-companion-sub000/internal/config"
	"github.com/RoyPeng126/ai-companion-sub000/internal/datetime"
	"github.com/RoyPeng126/ai-companion-sub000/internal/db"
	"github.com/RoyPeng126/ai-companion-sub000/internal/server"
	"github.com/RoyPeng126/ai-companion-sub000/internal/speech"
	"github.com/RoyPeng126/ai-companion-sub000/internal/store"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

const sessionPurgeInterval = 10 * time.Minute

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{ApplicationName: "ai-companion-api"})
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, pool); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
	}
	if err := store.ValidateSchema(ctx, pool); err != nil {
		log.Fatalf("database schema mismatch: %v", err)
	}

	clk := clock.New()
	loc := cfg.Location()
	resolver := datetime.NewResolver(clk, loc)
	care := store.New(pool, clk, loc)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := server.MustNewMetrics(registry)

	var sessions wizard.Store
	switch cfg.WizardSessionBackend {
	case config.SessionBackendPostgres:
		pgSessions := store.NewSessionStore(pool, clk, cfg.WizardSessionTTL())
		sessions = pgSessions
		go purgeSessions(pgSessions)
	default:
		sessions = wizard.NewMemoryStore(cfg.WizardSessionCacheSize, cfg.WizardSessionTTL())
	}
	wiz := wizard.New(sessions, care, resolver, wizard.WithObserver(metrics))

	var ai server.AIClient = server.MockAIClient{Model: "mock"}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		ai = server.NewOpenAIResponsesClient(cfg)
	} else {
		log.Printf("OPENAI_API_KEY not set, chat uses the local mock model")
	}
	classifier := server.NewLLMReminderClassifier(ai, func() string {
		return resolver.Today().Format("2006-01-02")
	})
	router := assistant.NewRouter(care, wiz, resolver,
		assistant.WithReminderClassifier(classifier),
		assistant.WithObserver(metrics),
	)

	speechTimeout := time.Duration(cfg.SpeechTimeout) * time.Second
	var transcriber speech.Transcriber
	switch {
	case strings.TrimSpace(cfg.STTWebSocketURL) != "":
		transcriber = speech.NewStreamingTranscriber(speech.StreamingTranscriberConfig{
			URL:     cfg.STTWebSocketURL,
			APIKey:  cfg.STTAPIKey,
			Timeout: speechTimeout,
		})
	case cfg.AppEnv == "local":
		transcriber = speech.MockTranscriber{}
	}
	var synthesizer speech.Synthesizer
	if strings.TrimSpace(cfg.TTSURL) != "" {
		synthesizer = speech.NewHTTPSynthesizer(speech.HTTPSynthesizerConfig{
			URL:          cfg.TTSURL,
			APIKey:       cfg.TTSAPIKey,
			DefaultVoice: cfg.TTSVoice,
			Timeout:      speechTimeout,
		})
	}

	app := server.New(cfg, server.Deps{
		DB:          pool,
		Users:       care,
		Repo:        care,
		Router:      router,
		Wizard:      wiz,
		Composer:    compose.NewComposer(care, synthesizer, clk),
		Transcriber: transcriber,
		AI:          ai,
		Resolver:    resolver,
		Metrics:     metrics,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("ai companion api listening on http://localhost:%s", cfg.AppPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func purgeSessions(sessions *store.SessionStore) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		removed, err := sessions.PurgeExpired(ctx)
		cancel()
		if err != nil {
			log.Printf("purge wizard sessions failed err=%v", err)
			continue
		}
		if removed > 0 {
			log.Printf("purged expired wizard sessions count=%d", removed)
		}
	}
}
