// Package assembly drives a run from fragments to a consistent tree: scaffold,
// merge, gap closure, dedup, wiring, symbol repair and the compile gate, with a
// checkpoint at every state change.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"assemblyline/internal/artifact"
	"assemblyline/internal/lang"
	"assemblyline/internal/runstore"
	"assemblyline/internal/storage"
	"assemblyline/internal/synth"
	"assemblyline/internal/toolchain"
	"assemblyline/internal/trace"
	"assemblyline/internal/workspace"
)

var (
	ErrUnknownHandle = errors.New("assembly: unknown scratch handle")
	ErrNotReady      = errors.New("assembly: preview is not ready to confirm")
	ErrRunExists     = errors.New("assembly: run id already in use")
	ErrInvalidRunID  = errors.New("assembly: invalid run id")

	reRunID = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)
)

const (
	defaultPreviewTTL = time.Hour
	defaultPreviews   = 64
	traceSource       = "engine"
)

// Options tune one run. Zero values fall back to the engine defaults.
type Options struct {
	// RunID lets the caller pick the ID up front, to watch events before the run
	// returns. Empty gets a fresh UUID.
	RunID               string `json:"run_id,omitempty"`
	MaxValidationPasses int    `json:"max_validation_passes,omitempty"`
	MaxFixAttempts      int    `json:"max_fix_attempts,omitempty"`
	MaxCompileAttempts  int    `json:"max_compile_attempts,omitempty"`
	// DryRun runs every phase in memory: no durable writes and no toolchain.
	DryRun        bool   `json:"dry_run,omitempty"`
	SkipToolchain bool   `json:"skip_toolchain,omitempty"`
	ProjectID     string `json:"project_id,omitempty"`
	ProjectName   string `json:"project_name,omitempty"`
}

type Config struct {
	Registry  *lang.Registry
	Synth     synth.Synthesizer
	Files     storage.Store
	Runs      runstore.Store
	Workspace *workspace.Manager
	// ToolchainFor picks the toolchain of a stack. Nil uses the adapter's commands.
	ToolchainFor func(adapter lang.Adapter) toolchain.Toolchain
	Events       trace.Emitter

	// Budgets used when a run leaves its own at zero.
	MaxValidationPasses int
	MaxFixAttempts      int
	MaxCompileAttempts  int

	SynthTimeout     time.Duration
	ToolchainTimeout time.Duration
	SkipToolchain    bool
	PreviewTTL       time.Duration
	MaxPreviews      int
	Logger           *log.Logger
}

type Engine struct {
	cfg      Config
	previews *expirable.LRU[string, *preview]
}

func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("assembly: registry is required")
	}
	if cfg.Synth == nil {
		return nil, errors.New("assembly: synthesizer is required")
	}
	if cfg.Files == nil {
		cfg.Files = storage.NewMemoryStore()
	}
	if cfg.Runs == nil {
		cfg.Runs = runstore.NewMemoryStore()
	}
	if cfg.Events == nil {
		cfg.Events = trace.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.ToolchainFor == nil {
		timeout := cfg.ToolchainTimeout
		cfg.ToolchainFor = func(a lang.Adapter) toolchain.Toolchain { return toolchain.ForAdapter(a, timeout) }
	}
	if cfg.PreviewTTL <= 0 {
		cfg.PreviewTTL = defaultPreviewTTL
	}
	if cfg.MaxPreviews <= 0 {
		cfg.MaxPreviews = defaultPreviews
	}
	e := &Engine{cfg: cfg}
	e.previews = expirable.NewLRU[string, *preview](cfg.MaxPreviews, e.evictPreview, cfg.PreviewTTL)
	return e, nil
}

// Adapter looks up a stack by ID. An empty ID selects the registry default.
func (e *Engine) Adapter(stack string) (lang.Adapter, error) {
	if strings.TrimSpace(stack) == "" {
		return e.cfg.Registry.Default()
	}
	return e.cfg.Registry.Lookup(stack)
}

// Assemble runs a durable assembly. The caller's cancellation is ignored: once
// started, the run always ends completed or failed. Recoverable problems are
// recorded on the run; only fatal ones are returned.
func (e *Engine) Assemble(ctx context.Context, frags []artifact.Fragment, adapter lang.Adapter, opts Options) (*artifact.AssemblyRun, error) {
	ctx = context.WithoutCancel(ctx)
	id, err := e.newRunID(ctx, opts.RunID)
	if err != nil {
		return nil, err
	}
	run := artifact.NewRun(id, adapter.ID(), artifact.ModeDurable)
	run.ProjectID = opts.ProjectID
	run.DryRun = opts.DryRun

	p := e.newPipeline(run, adapter, opts)
	if !opts.DryRun && e.cfg.Workspace != nil {
		dir, err := e.cfg.Workspace.RunDir(run.ID)
		if err != nil {
			return p.fail(ctx, fmt.Errorf("prepare work dir: %w", err))
		}
		p.dir = dir
		run.WorkDir = dir.Path
	}
	if err := p.execute(ctx, frags); err != nil {
		return run, err
	}
	return run, nil
}

// Run assembles with default options.
func (e *Engine) Run(ctx context.Context, frags []artifact.Fragment, adapter lang.Adapter) (*artifact.AssemblyRun, error) {
	return e.Assemble(ctx, frags, adapter, Options{})
}

func (e *Engine) GetRun(ctx context.Context, id string) (*artifact.AssemblyRun, error) {
	return e.cfg.Runs.Load(ctx, id)
}

func (e *Engine) ListRuns(ctx context.Context, limit int) ([]runstore.Summary, error) {
	return e.cfg.Runs.List(ctx, limit)
}

// GetFiles returns the stored tree of a durable run.
func (e *Engine) GetFiles(ctx context.Context, runID string) ([]artifact.GeneratedFile, error) {
	if _, err := e.cfg.Runs.Load(ctx, runID); err != nil {
		return nil, err
	}
	return storage.GetFiles(ctx, e.cfg.Files, runID)
}

// newRunID validates a caller-chosen ID or makes a fresh one.
func (e *Engine) newRunID(ctx context.Context, want string) (string, error) {
	want = strings.TrimSpace(want)
	if want == "" {
		return uuid.NewString(), nil
	}
	if !reRunID.MatchString(want) || want == "." || want == ".." {
		return "", fmt.Errorf("%w %q", ErrInvalidRunID, want)
	}
	if _, err := e.cfg.Runs.Load(ctx, want); err == nil {
		return "", fmt.Errorf("%w: %s", ErrRunExists, want)
	} else if !errors.Is(err, runstore.ErrNotFound) {
		return "", err
	}
	return want, nil
}

func (e *Engine) emit(runID, stage string, fields map[string]any) {
	e.cfg.Events.Emit(trace.New(runID, traceSource, stage, fields))
}
