package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/agent"
	"github.com/fyrsmithlabs/supportd/internal/chunker"
	"github.com/fyrsmithlabs/supportd/internal/collections"
	"github.com/fyrsmithlabs/supportd/internal/config"
	"github.com/fyrsmithlabs/supportd/internal/gemini"
	"github.com/fyrsmithlabs/supportd/internal/logging"
	"github.com/fyrsmithlabs/supportd/internal/server"
	"github.com/fyrsmithlabs/supportd/internal/session"
	"github.com/fyrsmithlabs/supportd/internal/telemetry"
	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supportd HTTP server",
	Long: `Start the supportd HTTP server.

On startup the server indexes the configured document directory into the
default collection, sweeps per-session collections left over from previous
runs, then serves the chat API until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting supportd",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("chat_model", cfg.Gemini.ChatModel),
	)

	tel, err := telemetry.New(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down telemetry", zap.Error(err))
		}
	}()

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:         cfg.Gemini.APIKey,
		ChatModel:      cfg.Gemini.ChatModel,
		EmbeddingModel: cfg.Gemini.EmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("initializing gemini client: %w", err)
	}

	index, err := vectorstore.NewIndex(cfg.VectorStore, client, logger)
	if err != nil {
		return fmt.Errorf("initializing vector index: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			logger.Warn("closing vector index", zap.Error(err))
		}
	}()

	splitter, err := chunker.NewSplitter(chunker.Config{
		Size:    cfg.Chunking.Size,
		Overlap: cfg.Chunking.Overlap,
	})
	if err != nil {
		return fmt.Errorf("initializing splitter: %w", err)
	}

	store, err := collections.NewStore(collections.Config{
		DefaultCollection: cfg.Collections.Default,
		UserPrefix:        cfg.Collections.UserPrefix,
		TopK:              cfg.Retrieval.TopK,
	}, index, splitter, logger)
	if err != nil {
		return fmt.Errorf("initializing collection store: %w", err)
	}

	swept, err := store.SweepStale(ctx)
	if err != nil {
		return fmt.Errorf("sweeping stale collections: %w", err)
	}
	logger.Info("swept stale session collections", zap.Int("deleted", swept))

	chunks, err := store.BootstrapDefault(ctx, cfg.Documents.Dir)
	if err != nil {
		return fmt.Errorf("indexing default documents: %w", err)
	}
	logger.Info("default collection indexed",
		zap.String("collection", store.DefaultCollection()),
		zap.String("dir", cfg.Documents.Dir),
		zap.Int("chunks", chunks),
	)

	manager, err := session.NewManager(agent.Config{
		Temperature: cfg.Gemini.Temperature,
	}, store, client.Model(), logger)
	if err != nil {
		return fmt.Errorf("initializing session manager: %w", err)
	}

	srv, err := server.NewServer(manager, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		return err
	}

	return nil
}
