// Package app wires configuration into a running engine and API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"assemblyline/internal/assembly"
	"assemblyline/internal/config"
	"assemblyline/internal/lang/stacks"
	"assemblyline/internal/llm"
	"assemblyline/internal/runstore"
	"assemblyline/internal/server"
	"assemblyline/internal/storage"
	"assemblyline/internal/synth"
	"assemblyline/internal/trace"
	"assemblyline/internal/workspace"
)

const runCacheSize = 256

type App struct {
	Config *config.Config
	Engine *assembly.Engine
	Broker *trace.Broker
	Logs   *trace.Logger

	server  *server.Server
	closers []io.Closer
}

// New builds the engine and its dependencies. Backends that talk to the network
// (file storage, the model client) connect on first use.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	a := &App{Config: cfg, Broker: trace.NewBroker(), Logs: trace.NewLogger(cfg.TraceDir())}

	reg, err := stacks.NewRegistry(cfg.Engine.DefaultStack)
	if err != nil {
		return nil, fmt.Errorf("app: stacks: %w", err)
	}

	ws, err := workspace.New(cfg.WorkspaceDir())
	if err != nil {
		return nil, fmt.Errorf("app: workspace: %w", err)
	}

	storageCfg := cfg.Storage
	files := storage.Lazy(storageCfg.Resolve(), func(ctx context.Context) (storage.Store, error) {
		return storage.Open(ctx, storageCfg)
	})
	a.closers = append(a.closers, files)

	runs, err := runstore.Open(ctx, runstore.Config{
		Dir:         cfg.RunsDir(),
		DatabaseURL: cfg.DatabaseURL,
		CacheSize:   runCacheSize,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: run store: %w", err)
	}
	if c, ok := runs.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	llmCfg := cfg.LLM.ClientConfig()
	llmCfg.Logger = log.Default()
	client := llm.Lazy(llmCfg.Provider, func(ctx context.Context) (llm.LLMClient, error) {
		return llm.New(ctx, llmCfg)
	})
	a.closers = append(a.closers, client)

	s := synth.NewLLM(client, synth.Options{
		BatchSize:   cfg.Engine.SynthBatchSize,
		Concurrency: cfg.Engine.SynthConcurrency,
		Timeout:     cfg.Engine.SynthTimeout,
	})

	a.Engine, err = assembly.New(assembly.Config{
		Registry:            reg,
		Synth:               s,
		Files:               files,
		Runs:                runs,
		Workspace:           ws,
		Events:              trace.Recorder{Log: a.Logs, Broker: a.Broker},
		MaxValidationPasses: cfg.Engine.MaxValidationPasses,
		MaxFixAttempts:      cfg.Engine.MaxFixAttempts,
		MaxCompileAttempts:  cfg.Engine.MaxCompileAttempts,
		SynthTimeout:        cfg.Engine.SynthTimeout,
		ToolchainTimeout:    cfg.Engine.ToolchainTimeout,
		SkipToolchain:       cfg.Engine.SkipToolchain,
		PreviewTTL:          cfg.Engine.PreviewTTL,
		Logger:              log.Default(),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: engine: %w", err)
	}
	log.Printf("app: storage=%s llm=%s data=%s", storageCfg.Resolve(), llmCfg.Provider, cfg.Engine.DataDir)
	return a, nil
}

// Handler is the HTTP surface of the engine.
func (a *App) Handler() http.Handler {
	events := trace.Recorder{Log: a.Logs, Broker: a.Broker}
	return server.NewMux(
		server.NewAssemblyHandler(a.Engine),
		server.NewEventsHandler(a.Broker),
		server.NewTraceHandler(a.Logs, events),
		server.Options{CORSOrigins: a.Config.Server.CORSOrigins},
	)
}

// Start serves the API and blocks until Shutdown.
func (a *App) Start() error {
	if a.server == nil {
		a.server = server.New(a.Config.Server.Port, a.Handler())
	}
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	return errors.Join(err, a.Close())
}

// Close discards pending previews and releases the backends.
func (a *App) Close() error {
	var errs []error
	if a.Engine != nil {
		errs = append(errs, a.Engine.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
