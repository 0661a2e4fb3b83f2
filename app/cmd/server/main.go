package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"appgen/app/config"
	"appgen/app/usecase"
	"appgen/internal/domain/repository"
	"appgen/internal/infrastructure/eventbus"
	"appgen/internal/infrastructure/llm"
	"appgen/internal/infrastructure/metrics"
	"appgen/internal/infrastructure/ratelimit"
	"appgen/internal/infrastructure/store/filesystem"
	"appgen/internal/infrastructure/store/memory"
	mongorepo "appgen/internal/infrastructure/store/mongodb"
	"appgen/internal/infrastructure/transport"
	"appgen/internal/infrastructure/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	var historyRepo repository.HistoryRepository = memory.NewHistoryRepo()
	fileRepo, err := filesystem.NewFileRepository(cfg.FileRepo.OutputDir)
	if err != nil {
		log.Fatalf("init file repo: %v", err)
	}
	var fileWriter repository.FileWriter = fileRepo
	fileReaders := []repository.FileReader{fileRepo}

	var mongoClient *mongo.Client
	if cfg.Mongo.URI != "" {
		mongoCtx, mongoCancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
		mongoClient, err = mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			mongoCancel()
			log.Fatalf("mongo connect: %v", err)
		}
		if err := mongoClient.Ping(mongoCtx, nil); err != nil {
			mongoCancel()
			log.Fatalf("mongo ping: %v", err)
		}
		db := mongoClient.Database(cfg.Mongo.Database)

		mongoHistory := mongorepo.NewHistoryRepo(db)
		fileMirror := mongorepo.NewFileMirror(db)
		if err := mongoHistory.EnsureIndexes(mongoCtx); err != nil {
			logger.Error("ensure history indexes failed", "err", err)
		}
		if err := fileMirror.EnsureIndexes(mongoCtx); err != nil {
			logger.Error("ensure file indexes failed", "err", err)
		}
		mongoCancel()

		historyRepo = mongoHistory
		fileWriter = usecase.NewMirroredWriter(logger, fileRepo, fileMirror)
		fileReaders = append(fileReaders, fileMirror)
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
	}

	// Generator
	var gen repository.Generator
	switch cfg.Generation.Generator {
	case config.GeneratorTemplate:
		gen = llm.NewTemplateGenerator()
	default:
		gen = llm.NewChatGenerator(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	}
	logger.Info("generator selected", "generator", cfg.Generation.Generator)

	// Reuse cache
	cache := usecase.NewReuseCache(historyRepo, cfg.Reuse.Threshold, nil)
	if err := cache.Load(ctx, cfg.Reuse.LoadLimit); err != nil {
		logger.Error("load generation history failed", "err", err)
	}

	// Notifications
	var pipelineOpts []usecase.PipelineOption
	if cfg.NATS.URL != "" {
		nc, err := eventbus.Connect(cfg.NATS.URL, "appgen")
		if err != nil {
			logger.Error("nats unavailable, job notifications disabled", "err", err)
		} else {
			defer nc.Drain()
			pipelineOpts = append(pipelineOpts, usecase.WithNotifier(eventbus.NewNotifier(nc, cfg.NATS.SubjectPrefix)))
			logger.Info("connected to nats", "url", cfg.NATS.URL)
		}
	}

	pipeline := usecase.NewPipeline(
		gen,
		validator.NewStaticAnalyzer(),
		fileWriter,
		cache,
		logger,
		usecase.PipelineConfig{
			GeneratorTimeout:  cfg.Generation.GeneratorTimeout,
			JobTimeout:        cfg.Generation.JobTimeout,
			DefaultMaxRetries: cfg.Generation.DefaultMaxRetries,
			MaxRetriesCap:     cfg.Generation.MaxRetriesCap,
		},
		pipelineOpts...,
	)

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests, nil)
	go func() {
		ticker := time.NewTicker(cfg.RateLimit.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(); n > 0 {
					logger.Debug("pruned rate limit records", "count", n)
				}
			}
		}
	}()

	// Transport (HTTP handlers)
	handler := transport.NewGenerateHandler(
		pipeline,
		limiter,
		cache,
		usecase.NewFilesService(fileReaders...),
		logger,
		transport.HandlerConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			RecentHistory:  cfg.Reuse.RecentShown,
		},
	)

	// Server
	// WriteTimeout bounds plain responses; the stream writer lifts it per request.
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      transport.NewRouter(handler, cfg.CORS.AllowedOrigins, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting metrics server", "addr", cfg.Metrics.Addr)
		if err := metrics.StartMetricsServer(cfg.Metrics.Addr); err != nil {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			cancel()
		}
	}()

	// OS signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	// Shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}

	logger.Info("waiting for running jobs")
	if err := handler.Wait(shutdownCtx); err != nil {
		logger.Error("jobs still running at shutdown", "err", err)
	}

	if mongoClient != nil {
		logger.Info("disconnecting mongo")
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			logger.Error("mongo disconnect error", "err", err)
		}
	}

	logger.Info("service stopped")
}
