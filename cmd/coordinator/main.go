package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"pagepilot/internal/audit"
	"pagepilot/internal/coordinator"
	"pagepilot/internal/domain"
	"pagepilot/internal/integrations/openai"
	"pagepilot/internal/store"
	"pagepilot/internal/tabs"
	"pagepilot/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	socketPath := envOrDefault("PAGEPILOT_SOCKET", defaultSocketPath())
	dbPath := envOrDefault("PAGEPILOT_DB", defaultDBPath())
	baseURL := os.Getenv("OPENAI_BASE_URL")
	model := os.Getenv("PAGEPILOT_MODEL")
	auditTimeout := envInt("AUDIT_TIMEOUT_SECONDS", 15)
	snapshotTimeout := envInt("SNAPSHOT_TIMEOUT_SECONDS", 8)

	// ---- Storage ----
	kv, err := store.Open(dbPath)
	if err != nil {
		slog.Error("failed to open settings store", "err", err, "path", dbPath)
		os.Exit(1)
	}
	defer kv.Close()

	// ---- Upstream client ----
	var llmOpts []openai.Option
	if baseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(baseURL))
	}
	if model != "" {
		llmOpts = append(llmOpts, openai.WithModel(model))
	}
	llm := openai.NewClient(llmOpts...)

	// ---- Tab tracking and extraction ----
	registry := tabs.NewRegistry()
	console := tabs.NewConsoleCapture()
	extractor := tabs.NewHTTPExtractor(&http.Client{Timeout: time.Duration(snapshotTimeout) * time.Second})

	// ---- Audit ----
	inspector := audit.NewHTTPInspector(nil, time.Duration(auditTimeout)*time.Second)
	var coord *coordinator.Coordinator
	runner := audit.NewRunner(inspector, func() (string, error) {
		return coord.ResolveCurrentURL()
	}, logger)

	// ---- Transport ----
	// the server dispatches into the coordinator, and the coordinator
	// broadcasts through the server, so the handler binds late
	srv, err := transport.NewServer(socketPath, transport.HandlerFunc(
		func(ctx context.Context, msg domain.Message) domain.Response {
			return coord.Handle(ctx, msg)
		}), logger)
	if err != nil {
		slog.Error("failed to create transport server", "err", err)
		os.Exit(1)
	}

	coord, err = coordinator.New(kv, llm, runner, registry, extractor, console, srv, logger,
		coordinator.WithSnapshotTimeout(time.Duration(snapshotTimeout)*time.Second))
	if err != nil {
		slog.Error("failed to create coordinator", "err", err)
		os.Exit(1)
	}

	if err := coord.Prime(ctx); err != nil {
		slog.Error("failed to load stored credential", "err", err)
		os.Exit(1)
	}

	slog.Info("coordinator listening", "socket", socketPath, "version", coordinator.Version)
	if err := srv.Serve(ctx); err != nil {
		slog.Error("transport server failed", "err", err)
		os.Exit(1)
	}
	slog.Info("coordinator stopped")
}

func defaultSocketPath() string {
	return filepath.Join(os.TempDir(), "pagepilot.sock")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pagepilot", "pagepilot.db")
	}
	return filepath.Join(home, ".pagepilot", "pagepilot.db")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
