package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corestack/agentcore/internal/config"
	"github.com/corestack/agentcore/internal/conversation"
	corelibrary "github.com/corestack/agentcore/internal/library"
	"github.com/corestack/agentcore/internal/library/embeddings/openai"
	"github.com/corestack/agentcore/internal/loop"
	"github.com/corestack/agentcore/internal/mcp"
	"github.com/corestack/agentcore/internal/metrics"
	"github.com/corestack/agentcore/internal/permission"
	"github.com/corestack/agentcore/internal/registry"
	"github.com/corestack/agentcore/internal/stacks"
	"github.com/corestack/agentcore/internal/stacks/backend"
	"github.com/corestack/agentcore/internal/stacks/backend/filestore"
	"github.com/corestack/agentcore/internal/stacks/backend/postgresstore"
	"github.com/corestack/agentcore/internal/stacks/backend/sqlitestore"
	libtools "github.com/corestack/agentcore/internal/tools/library"
	"github.com/corestack/agentcore/internal/tools/subagent"
	tasktools "github.com/corestack/agentcore/internal/tools/task"
	"github.com/corestack/agentcore/internal/tools/vfs"
	"github.com/corestack/agentcore/internal/transport/anthropic"
)

func openStacksBackend(ctx context.Context, cfg config.StacksConfig) (backend.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlitestore.New(sqlitestore.Config{Path: cfg.DSN})
	case "postgres":
		return postgresstore.New(ctx, postgresstore.Config{DSN: cfg.DSN})
	default:
		return filestore.New(cfg.Path), nil
	}
}

func runOnce(ctx context.Context, configPath, taskInput string) (string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}

	tr, err := anthropic.New(anthropic.Config{
		APIKey:     cfg.Anthropic.APIKey,
		BaseURL:    cfg.Anthropic.BaseURL,
		Model:      cfg.Anthropic.Model,
		MaxTokens:  cfg.Anthropic.MaxTokens,
		MaxRetries: cfg.Anthropic.MaxRetries,
	})
	if err != nil {
		return "", err
	}

	be, err := openStacksBackend(ctx, cfg.Stacks)
	if err != nil {
		return "", err
	}
	store := stacks.New(stacks.Config{Backend: be, AutoSave: true})
	if err := store.Load(ctx); err != nil {
		return "", err
	}

	embedder, err := openai.New(openai.Config{APIKey: cfg.Embeddings.APIKey, BaseURL: cfg.Embeddings.BaseURL, Model: cfg.Embeddings.Model})
	if err != nil {
		return "", err
	}
	lib := corelibrary.New(corelibrary.Config{Stacks: store, Embedder: embedder})

	m := metrics.NewMetrics(nil)

	mgr := mcp.NewManager(&cfg.MCP, nil)
	if err := mgr.Start(ctx); err != nil {
		return "", err
	}
	defer mgr.Stop()
	sources := mcp.DiscoverersFromManager(mgr)

	newRegistry := func() *registry.Registry {
		r := registry.New(registry.Config{Resolver: permission.NewResolver(), Policy: cfg.Permission.Policy(), Sources: sources})
		r.SetBuiltinRegistrar(func(r *registry.Registry) {
			vfs.Register(r, vfs.NewMemFS())
			tasktools.Register(r, tasktools.NewStore())
			libtools.Register(r, lib)
		})
		for _, discErr := range r.Discover(ctx) {
			slog.Warn("mcp tool discovery failed", "error", discErr)
		}
		return r
	}

	r := newRegistry()
	subagent.Register(r, subagent.Config{
		Transport:   tr,
		NewRegistry: newRegistry,
		MaxDepth:    cfg.Loop.MaxSubagentDepth,
		MaxTurns:    cfg.Loop.MaxTurns,
	})

	l := loop.New(loop.Config{
		Transport:         tr,
		Registry:          r,
		Conversation:      conversation.New(conversation.Config{}),
		MaxTurns:          cfg.Loop.MaxTurns,
		AgentManagesTools: cfg.Loop.AgentManagesTools,
	})

	result, err := l.Run(ctx, taskInput, m.Callbacks(loop.Callbacks{}), nil)
	if err != nil {
		return "", err
	}
	if result.Aborted {
		return "", fmt.Errorf("run was cancelled")
	}
	return result.FinalText, nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
