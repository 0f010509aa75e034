package assembly

import (
	"context"
	"fmt"
	"strings"

	"assemblyline/internal/artifact"
	"assemblyline/internal/compilegate"
	"assemblyline/internal/dedup"
	"assemblyline/internal/fileset"
	"assemblyline/internal/gap"
	"assemblyline/internal/lang"
	"assemblyline/internal/repair"
	"assemblyline/internal/storage"
	"assemblyline/internal/trace"
	"assemblyline/internal/workspace"
)

const (
	levelInfo  = "info"
	levelWarn  = "warn"
	levelError = "error"

	StageDiff = "diff"
)

// pipeline is one run's sequential walk through the phases. It is the only
// writer of the run record.
type pipeline struct {
	e       *Engine
	run     *artifact.AssemblyRun
	adapter lang.Adapter
	files   *fileset.FileSet
	dir     *workspace.Dir
	opts    Options
}

func (e *Engine) newPipeline(run *artifact.AssemblyRun, adapter lang.Adapter, opts Options) *pipeline {
	opts.MaxValidationPasses = firstPositive(opts.MaxValidationPasses, e.cfg.MaxValidationPasses, gap.DefaultMaxPasses)
	if run.Mode == artifact.ModePreview {
		// A preview never spends more than the preview budget unless asked to.
		opts.MaxFixAttempts = firstPositive(opts.MaxFixAttempts, min(positiveOr(e.cfg.MaxFixAttempts, repair.PreviewMaxAttempts), repair.PreviewMaxAttempts))
	} else {
		opts.MaxFixAttempts = firstPositive(opts.MaxFixAttempts, e.cfg.MaxFixAttempts, repair.DefaultMaxAttempts)
	}
	opts.MaxCompileAttempts = firstPositive(opts.MaxCompileAttempts, e.cfg.MaxCompileAttempts, compilegate.DefaultMaxAttempts)
	opts.SkipToolchain = opts.SkipToolchain || e.cfg.SkipToolchain
	return &pipeline{e: e, run: run, adapter: adapter, files: fileset.New(), opts: opts}
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (p *pipeline) durable() bool {
	return p.run.Mode == artifact.ModeDurable && !p.run.DryRun
}

func (p *pipeline) log(level, format string, args ...any) {
	entry := p.run.Logf(level, format, args...)
	p.e.cfg.Logger.Printf("[%s] %s", p.run.ID, entry.Message)
	p.e.emit(p.run.ID, trace.StageLog, map[string]any{
		"phase":   string(entry.Phase),
		"level":   level,
		"message": entry.Message,
	})
}

func (p *pipeline) logf(format string, args ...any) { p.log(levelInfo, format, args...) }

// checkpoint publishes the current state and, for durable runs, saves the record.
// A failed save is logged; the run itself goes on.
func (p *pipeline) checkpoint(ctx context.Context) {
	cp := p.run.Phases[len(p.run.Phases)-1]
	p.e.emit(p.run.ID, string(p.run.Status), map[string]any{
		"mode":         string(p.run.Mode),
		"phase_status": string(cp.Status),
		"files":        p.files.Len(),
	})
	if !p.durable() {
		return
	}
	if err := p.e.cfg.Runs.Save(ctx, p.run); err != nil {
		p.e.cfg.Logger.Printf("assembly: save run %s: %v", p.run.ID, err)
	}
}

func (p *pipeline) done(ctx context.Context) {
	p.checkpoint(ctx)
	p.e.emit(p.run.ID, trace.StageDone, map[string]any{
		"status":  string(p.run.Status),
		"success": p.run.Success,
		"error":   p.run.Error,
	})
}

func (p *pipeline) fail(ctx context.Context, err error) (*artifact.AssemblyRun, error) {
	p.log(levelError, "assembly: %s failed: %v", p.run.Status, err)
	p.run.Fail(err)
	p.done(ctx)
	return p.run, err
}

type step struct {
	status artifact.RunStatus
	fn     func(ctx context.Context) error
}

func (p *pipeline) execute(ctx context.Context, frags []artifact.Fragment) error {
	steps := []step{
		{artifact.StatusScaffolding, p.scaffold},
		{artifact.StatusMerging, func(context.Context) error { return p.merge(frags) }},
		{artifact.StatusGenerating, p.generate},
		{artifact.StatusWiring, p.wire},
		{artifact.StatusValidating, p.validate},
		{artifact.StatusTypescriptValidation, p.compile},
	}
	p.logf("assembly: %s run of %d fragments on %s", p.run.Mode, len(frags), p.adapter.ID())
	p.checkpoint(ctx)
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			_, err = p.fail(ctx, err)
			return err
		}
		if err := p.run.Transition(s.status); err != nil {
			_, err = p.fail(ctx, err)
			return err
		}
		p.checkpoint(ctx)
		if err := s.fn(ctx); err != nil {
			_, err = p.fail(ctx, err)
			return err
		}
	}
	if err := p.finish(ctx); err != nil {
		_, err = p.fail(ctx, err)
		return err
	}
	return nil
}

func (p *pipeline) scaffold(context.Context) error {
	sc, ok := p.adapter.(lang.Scaffolder)
	if !ok {
		p.run.MarkPhase(artifact.PhaseSkipped, "stack has no scaffold")
		return nil
	}
	name := p.opts.ProjectName
	if name == "" {
		name = p.opts.ProjectID
	}
	paths, err := p.files.Write(sc.Scaffold(lang.ScaffoldOptions{ProjectName: name}))
	if err != nil {
		return fmt.Errorf("scaffold: %w", err)
	}
	for _, path := range paths {
		p.logf("scaffold: wrote %s", path)
	}
	return nil
}

// merge applies fragments in order. Input errors are recorded and leave the phase
// partial; they are never retried.
func (p *pipeline) merge(frags []artifact.Fragment) error {
	inputErrs := p.files.ApplyFragments(frags)
	for _, f := range frags {
		key, err := fileset.NormalizePath(f.Path)
		if err != nil {
			continue
		}
		action, err := f.NormalizedAction()
		switch {
		case err != nil:
		case action == artifact.ActionDelete:
			p.logf("merge: deleted %s", key)
		case f.Content != nil:
			p.logf("merge: wrote %s (%s)", key, action)
		}
	}
	for _, e := range inputErrs {
		p.log(levelError, "merge: %s", e.Message)
	}
	p.run.InputErrors = inputErrs
	if len(inputErrs) > 0 {
		p.run.MarkPhase(artifact.PhasePartial, fmt.Sprintf("%d input errors", len(inputErrs)))
	}
	p.dedup()
	return nil
}

func (p *pipeline) dedup() {
	res := dedup.Run(p.files, p.adapter, p.logf)
	for _, r := range res.Removals {
		p.run.Deduplicated = append(p.run.Deduplicated, r.Removed)
	}
}

func (p *pipeline) generate(ctx context.Context) error {
	res, err := gap.Resolve(ctx, p.files, p.adapter, p.e.cfg.Synth, gap.Options{
		MaxPasses: p.opts.MaxValidationPasses,
		Timeout:   p.e.cfg.SynthTimeout,
		Logf:      p.logf,
	})
	if err != nil {
		return err
	}
	p.run.GapPasses = res.Passes
	p.run.Synthesized = res.Synthesized
	if n := len(res.Remaining); n > 0 {
		missing := make([]string, 0, n)
		for _, s := range res.Remaining {
			missing = append(missing, s.ExpectedPath)
		}
		p.log(levelWarn, "gap: %d files still missing: %s", n, strings.Join(missing, ", "))
		p.run.MarkPhase(artifact.PhasePartial, fmt.Sprintf("%d files still missing", n))
	}
	p.dedup()
	return nil
}

func (p *pipeline) wire(context.Context) error {
	w, ok := p.adapter.(lang.Wirer)
	if !ok {
		p.run.MarkPhase(artifact.PhaseSkipped, "stack has no wiring")
		return nil
	}
	out := w.Wire(p.files)
	if len(out) == 0 {
		p.run.MarkPhase(artifact.PhaseSkipped, "nothing to wire")
		return nil
	}
	paths, err := p.files.Write(out)
	if err != nil {
		p.log(levelWarn, "wire: skipped files: %v", err)
	}
	for _, path := range paths {
		p.logf("wire: wrote %s", path)
	}
	return nil
}

func (p *pipeline) validate(ctx context.Context) error {
	res, err := repair.Run(ctx, p.files, p.adapter, p.e.cfg.Synth, repair.Options{
		MaxAttempts: p.opts.MaxFixAttempts,
		Timeout:     p.e.cfg.SynthTimeout,
		Logf:        p.logf,
	})
	if err != nil {
		return err
	}
	p.run.ValidationErrors = res.Errors
	p.run.FixAttempts = res.Attempts
	p.run.FixesApplied += res.FixesApplied
	p.recordDiffs(res.Diffs)
	if n := artifact.CountErrors(res.Errors); n > 0 {
		p.run.MarkPhase(artifact.PhasePartial, fmt.Sprintf("%d errors after %d attempts", n, res.Attempts))
	}
	return nil
}

// compile runs the toolchain gate. It only runs on a symbol-clean tree with a
// working directory to build in.
func (p *pipeline) compile(ctx context.Context) error {
	skip := ""
	switch {
	case p.run.DryRun:
		skip = "dry run"
	case p.opts.SkipToolchain:
		skip = "toolchain disabled"
	case p.dir == nil:
		skip = "no working directory"
	case artifact.CountErrors(p.run.ValidationErrors) > 0:
		skip = "symbol errors remain"
	}
	if skip != "" {
		p.logf("compilegate: skipped (%s)", skip)
		p.run.MarkPhase(artifact.PhaseSkipped, skip)
		return nil
	}

	gate := &compilegate.Gate{
		Toolchain:   p.e.cfg.ToolchainFor(p.adapter),
		Synth:       p.e.cfg.Synth,
		WorkDir:     p.dir.Path,
		Sync:        p.dir.Sync,
		MaxAttempts: p.opts.MaxCompileAttempts,
		Timeout:     p.e.cfg.SynthTimeout,
		Logf:        p.logf,
	}
	res, err := gate.Run(ctx, p.files, p.adapter)
	if err != nil {
		return err
	}
	p.run.ToolchainErrors = res.Errors
	p.run.CompileAttempts = res.Attempts
	p.run.FixesApplied += res.FixesApplied
	p.recordDiffs(res.Diffs)
	if res.FixesApplied > 0 || len(res.AddedPackages) > 0 {
		p.run.ValidationErrors = repair.Check(p.files, p.adapter)
		if n := artifact.CountErrors(p.run.ValidationErrors); n > 0 {
			p.log(levelWarn, "compilegate: toolchain fixes left %d symbol errors", n)
		}
	}
	if n := artifact.CountErrors(res.Errors); n > 0 {
		p.run.MarkPhase(artifact.PhasePartial, fmt.Sprintf("%d toolchain errors after %d attempts", n, res.Attempts))
	}
	return nil
}

func (p *pipeline) recordDiffs(diffs []repair.FileDiff) {
	for _, d := range diffs {
		added, removed := repair.Stat(d.Patch)
		p.logf("%s: changed %s (+%d -%d)", d.Source, d.Path, added, removed)
		fields := map[string]any{"path": d.Path, "source": d.Source, "added": added, "removed": removed}
		if !d.Oversize {
			fields["patch"] = d.Patch
		}
		p.e.emit(p.run.ID, StageDiff, fields)
	}
}

// finish materializes the tree and closes the run. For durable runs the files
// are stored before the run is marked completed.
func (p *pipeline) finish(ctx context.Context) error {
	p.run.Files = p.files.Paths()
	if p.dir != nil && !p.run.DryRun {
		if err := p.dir.Sync(ctx, p.files); err != nil {
			return fmt.Errorf("sync work dir: %w", err)
		}
	}
	if p.durable() {
		if err := storage.PutFiles(ctx, p.e.cfg.Files, p.run.ID, p.files.Files()); err != nil {
			return fmt.Errorf("store files: %w", err)
		}
		p.logf("assembly: stored %d files", p.files.Len())
	}
	if err := p.run.Transition(artifact.StatusCompleted); err != nil {
		return err
	}
	p.run.ComputeSuccess()
	p.logf("assembly: completed with %d files, success=%t", len(p.run.Files), p.run.Success)
	p.done(ctx)
	return nil
}
