package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/vizai/internal/analyze"
	"github.com/shehryarbajwa/vizai/internal/api"
	"github.com/shehryarbajwa/vizai/internal/config"
	"github.com/shehryarbajwa/vizai/internal/dataset"
	"github.com/shehryarbajwa/vizai/internal/events"
	"github.com/shehryarbajwa/vizai/internal/llm"
	"github.com/shehryarbajwa/vizai/internal/logger"
	"github.com/shehryarbajwa/vizai/internal/ratelimit"
	"github.com/shehryarbajwa/vizai/internal/sandbox"
	"github.com/shehryarbajwa/vizai/internal/session"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load(os.Getenv("VIZAI_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	log.Printf("Starting VizAI (%s mode)...", cfg.Execution.Mode)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Model catalog and LLM adapter
	catalog := llm.DefaultCatalog()
	if cfg.LLM.ModelsFile != "" {
		catalog, err = llm.LoadCatalog(cfg.LLM.ModelsFile)
		if err != nil {
			log.Fatalf("Failed to load model catalog: %v", err)
		}
	}
	adapter := llm.NewAdapter(catalog, cfg.LLM)
	log.Printf("✓ LLM adapter initialized (%d models)", len(catalog.Options()))

	// Code executor
	var executor sandbox.Executor
	if cfg.SandboxEnabled() {
		executor = sandbox.NewDockerExecutor(cfg.Sandbox)
		log.Printf("✓ Sandbox executor initialized (image %s)", cfg.Sandbox.Image)
	} else {
		executor = sandbox.NewDisplayExecutor()
		log.Println("✓ Display mode: generated code is shown, not executed")
	}

	// Session store
	var store session.Store
	switch cfg.Session.Store {
	case "redis":
		rs, err := session.NewRedisStore(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rs.Close()
		store = rs
		log.Println("✓ Redis session store connected")
	default:
		store = session.NewMemoryStore()
		log.Println("✓ In-memory session store initialized")
	}

	datasets, err := dataset.NewStore(cfg.Data.Dir, cfg.Data.MaxUploadMB<<20)
	if err != nil {
		log.Fatalf("Failed to create dataset store: %v", err)
	}
	log.Println("✓ Dataset store initialized")

	hub := events.NewHub()
	limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Burst)
	log.Printf("✓ Rate limiter initialized (%d analyses/hour per session)", cfg.RateLimit.RequestsPerHour)

	// Session manager; closing a session drops everything keyed by it
	sessionMgr := session.NewManager(store, cfg.Session.TTL)
	sessionMgr.OnClose(func(id string) {
		if err := datasets.Remove(id); err != nil {
			log.Printf("Failed to remove dataset for session %s: %v", id, err)
		}
		limiter.Forget(id)
		hub.Close(id)
	})
	go sessionMgr.Run(ctx, time.Minute)
	log.Printf("✓ Session manager initialized (idle TTL %s)", cfg.Session.TTL)

	analyzer := analyze.NewService(adapter, executor, cfg.Sandbox.RequireKey, hub)

	handler := api.NewHandler(api.Options{
		Sessions:    sessionMgr,
		Datasets:    datasets,
		Analyzer:    analyzer,
		Catalog:     catalog,
		Hub:         hub,
		Limiter:     limiter,
		PreviewRows: cfg.Data.PreviewRows,
		MaxUpload:   cfg.Data.MaxUploadMB << 20,
	})
	router := handler.SetupRoutes()
	log.Println("✓ HTTP routes configured")

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in background
	go func() {
		log.Printf("🚀 Server starting on %s", cfg.Server.Addr)
		log.Println("📍 API endpoints available under /v1")
		log.Println("📊 Upload a CSV, ask a question, get code and charts back")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("⏳ Shutting down server gracefully...")
	stop()

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
