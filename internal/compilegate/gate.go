// Package compilegate runs the stack's real toolchain over a symbol-clean tree and
// repairs what the compiler reports, within its own attempt budget.
package compilegate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"assemblyline/internal/artifact"
	"assemblyline/internal/fileset"
	"assemblyline/internal/lang"
	"assemblyline/internal/repair"
	"assemblyline/internal/symgraph"
	"assemblyline/internal/synth"
	"assemblyline/internal/toolchain"
)

const DefaultMaxAttempts = 2

// SyncFunc writes the current set into the directory the toolchain runs in.
type SyncFunc func(ctx context.Context, files *fileset.FileSet) error

type Gate struct {
	Toolchain toolchain.Toolchain
	Synth     synth.Synthesizer
	WorkDir   string
	Sync      SyncFunc

	MaxAttempts int
	// Timeout bounds each fix call. Zero leaves it to the synthesizer.
	Timeout time.Duration
	Logf    func(format string, args ...any)
}

type Result struct {
	Errors        []artifact.ValidationError
	Attempts      int
	Installs      int
	FixesApplied  int
	AddedPackages []string
	Diffs         []repair.FileDiff
}

// Run reconciles the manifest, installs, type-checks, and then loops over the
// diagnostics. Exhaustion is reported through Result.Errors. Only context errors and
// a failing Sync are returned.
func (g *Gate) Run(ctx context.Context, files *fileset.FileSet, adapter lang.Adapter) (Result, error) {
	logf := g.Logf
	if logf == nil {
		logf = log.Printf
	}
	maxAttempts := g.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	var res Result

	if added := Reconcile(files, adapter); len(added) > 0 {
		logf("compilegate: declared missing packages %s", strings.Join(added, ", "))
		res.AddedPackages = append(res.AddedPackages, added...)
	}
	if err := g.sync(ctx, files); err != nil {
		return res, err
	}
	if err := g.install(ctx, &res, logf); err != nil {
		return res, err
	}
	errs, err := g.check(ctx, logf)
	if err != nil {
		return res, err
	}

	for artifact.CountErrors(errs) > 0 && res.Attempts < maxAttempts {
		res.Attempts++
		logf("compilegate: attempt %d/%d with %d diagnostics", res.Attempts, maxAttempts, artifact.CountErrors(errs))

		added, handled := patchManifest(files, adapter, errs)
		if len(added) > 0 {
			logf("compilegate: added packages %s", strings.Join(added, ", "))
			res.AddedPackages = append(res.AddedPackages, added...)
		}

		remaining := make([]artifact.ValidationError, 0, len(errs))
		for i, e := range errs {
			if !handled[i] {
				remaining = append(remaining, e)
			}
		}
		if req, ok := repair.BuildFixRequest(files, adapter, remaining); ok && g.Synth != nil {
			out, ferr := repair.Fix(ctx, g.Synth, req, g.Timeout)
			switch {
			case ferr != nil && ctx.Err() != nil:
				res.Errors = errs
				return res, ctx.Err()
			case ferr != nil:
				logf("compilegate: fix attempt %d failed: %v", res.Attempts, ferr)
			default:
				diffs := repair.Apply(files, out, repair.SourceSynth, logf)
				res.FixesApplied += len(diffs)
				res.Diffs = append(res.Diffs, diffs...)
			}
		}

		if err := g.sync(ctx, files); err != nil {
			res.Errors = errs
			return res, err
		}
		if len(added) > 0 {
			if err := g.install(ctx, &res, logf); err != nil {
				res.Errors = errs
				return res, err
			}
		}
		if errs, err = g.check(ctx, logf); err != nil {
			return res, err
		}
	}
	res.Errors = errs
	return res, nil
}

func (g *Gate) sync(ctx context.Context, files *fileset.FileSet) error {
	if g.Sync == nil {
		return nil
	}
	if err := g.Sync(ctx, files); err != nil {
		return fmt.Errorf("sync work dir: %w", err)
	}
	return nil
}

func (g *Gate) install(ctx context.Context, res *Result, logf func(string, ...any)) error {
	out, err := g.Toolchain.InstallDependencies(ctx, g.WorkDir)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	res.Installs++
	switch {
	case err != nil:
		logf("compilegate: install failed: %v", err)
	case !out.OK():
		logf("compilegate: %s exited %d", out.Command, out.ExitCode)
	}
	return nil
}

// check type-checks the work dir. A toolchain that cannot run at all is reported as
// one unfixable error so the run cannot count as successful.
func (g *Gate) check(ctx context.Context, logf func(string, ...any)) ([]artifact.ValidationError, error) {
	out, err := g.Toolchain.TypeCheck(ctx, g.WorkDir)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		logf("compilegate: type check failed to run: %v", err)
		return []artifact.ValidationError{{
			Message:  err.Error(),
			Severity: artifact.SeverityError,
			Kind:     artifact.KindToolchain,
			Code:     codeToolchain,
		}}, nil
	}
	if out.OK() {
		return nil, nil
	}
	errs := ParseDiagnostics(out.Text, g.WorkDir)
	if artifact.CountErrors(errs) == 0 {
		errs = append(errs, genericFailure(out.Command, out.ExitCode, out.Text))
	}
	artifact.SortErrors(errs)
	return errs, nil
}

// Reconcile declares every external package the sources import but the manifest
// lacks. It returns the added names.
func Reconcile(files *fileset.FileSet, adapter lang.Adapter) []string {
	patcher, ok := adapter.(lang.ManifestPatcher)
	if !ok {
		return nil
	}
	g := symgraph.Build(files, adapter)
	var deps []lang.Dependency
	seen := map[string]bool{}
	for _, e := range g.Edges {
		if !e.Resolution.External {
			continue
		}
		if name := patcher.PackageName(e.Import.ModuleSpecifier); name != "" && !seen[name] {
			seen[name] = true
			deps = append(deps, lang.Dependency{Name: name})
		}
	}
	return addDeps(files, adapter, patcher, deps)
}

// patchManifest adds packages named by missing-module and missing-types diagnostics.
// handled marks the diagnostics a manifest change addresses.
func patchManifest(files *fileset.FileSet, adapter lang.Adapter, errs []artifact.ValidationError) ([]string, map[int]bool) {
	handled := map[int]bool{}
	patcher, ok := adapter.(lang.ManifestPatcher)
	if !ok {
		return nil, handled
	}
	var deps []lang.Dependency
	for i, e := range errs {
		mod := ModuleOf(e.Message)
		if mod == "" {
			continue
		}
		name := patcher.PackageName(mod)
		if name == "" {
			continue
		}
		switch e.Code {
		case CodeCannotFindModule:
			deps = append(deps, lang.Dependency{Name: name})
		case CodeMissingTypes:
			deps = append(deps, lang.Dependency{Name: TypesPackage(name), Dev: true})
		default:
			continue
		}
		handled[i] = true
	}
	return addDeps(files, adapter, patcher, deps), handled
}

func addDeps(files *fileset.FileSet, adapter lang.Adapter, patcher lang.ManifestPatcher, deps []lang.Dependency) []string {
	if len(deps) == 0 {
		return nil
	}
	name := adapter.FileStructure().Manifest
	if name == "" {
		return nil
	}
	manifest, _ := files.Get(name)
	next, added, err := patcher.AddDependencies(manifest, deps)
	if err != nil || len(added) == 0 {
		return nil
	}
	if err := files.Set(name, next); err != nil {
		return nil
	}
	return added
}
