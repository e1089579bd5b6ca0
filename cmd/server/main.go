package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codereader/codereader/internal/api"
	"github.com/codereader/codereader/internal/embeddings"
	"github.com/codereader/codereader/internal/indexer"
	"github.com/codereader/codereader/internal/jobs"
	"github.com/codereader/codereader/internal/processor"
	"github.com/codereader/codereader/internal/queue"
	"github.com/codereader/codereader/internal/search"
	"github.com/codereader/codereader/internal/store"
	"github.com/codereader/codereader/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	st, err := store.Connect(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			logger.Warn("store close error", "error", err)
		}
	}()

	chunker, err := indexer.NewChunker()
	if err != nil {
		logger.Error("failed to initialize chunker", "error", err)
		os.Exit(1)
	}

	embedder := embeddings.NewClient(cfg.Embeddings, logger)
	jobService := jobs.NewService(st, cfg.Job, logger)

	jobQueue := queue.New(ctx, logger)
	defer jobQueue.Close()

	proc := processor.New(st, jobService, embedder, jobQueue, chunker, logger)
	searcher := search.NewSearcher(st, jobService, embedder, logger)

	handlers := api.NewHandlers(jobService, proc, searcher, st, logger)
	server := api.NewServer(cfg.Server, handlers, logger)

	if err := server.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
