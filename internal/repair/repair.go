// Package repair runs the validation loop over a merged FileSet: symbol checks and
// per-file validation, a deterministic export fix, then bounded model-assisted fixes.
package repair

import (
	"context"
	"log"
	"path"
	"time"

	"assemblyline/internal/artifact"
	"assemblyline/internal/fileset"
	"assemblyline/internal/lang"
	"assemblyline/internal/symgraph"
	"assemblyline/internal/synth"
)

const (
	DefaultMaxAttempts = 3
	PreviewMaxAttempts = 2
	MaxBundleErrors    = 20
	MaxBundleFiles     = 10

	SourceAutofix = "autofix"
	SourceSynth   = "synth"
)

type Options struct {
	MaxAttempts int
	// Timeout bounds a single fix call. Zero leaves it to the synthesizer.
	Timeout time.Duration
	Logf    func(format string, args ...any)
}

type Result struct {
	// Errors are the diagnostics left after the last pass, warnings included.
	Errors       []artifact.ValidationError
	Attempts     int
	FixesApplied int
	AutoFixed    []string
	Diffs        []FileDiff
}

// Check builds the symbol graph and merges in the adapter's per-file findings.
func Check(files lang.Files, adapter lang.Adapter) []artifact.ValidationError {
	g := symgraph.Build(files, adapter)
	errs := g.Check()
	for _, p := range g.Files {
		content, _ := files.Get(p)
		errs = append(errs, adapter.ValidateFile(content, p)...)
	}
	artifact.SortErrors(errs)
	return errs
}

// Run validates files and repairs them until no errors remain or the attempt budget
// is spent. Exhausting the budget is not an error; the remaining diagnostics are in
// Result.Errors. Only context cancellation is returned.
func Run(ctx context.Context, files *fileset.FileSet, adapter lang.Adapter, s synth.Synthesizer, opts Options) (Result, error) {
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var res Result
	fixed := artifact.SymbolSet{}
	errs := Check(files, adapter)
	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			res.Errors = errs
			return res, err
		}
		if artifact.CountErrors(errs) == 0 {
			break
		}

		if changed, diffs, next := AutoFix(files, adapter, errs); len(changed) > 0 {
			logf("repair: pass %d auto-fixed exports in %v (%d -> %d errors)", pass, changed, artifact.CountErrors(errs), artifact.CountErrors(next))
			errs = next
			fixed.Add(changed...)
			res.FixesApplied += len(changed)
			res.Diffs = append(res.Diffs, diffs...)
			if artifact.CountErrors(errs) == 0 {
				break
			}
		}

		if res.Attempts >= maxAttempts {
			logf("repair: %d errors left after %d attempts", artifact.CountErrors(errs), res.Attempts)
			break
		}
		req, ok := BuildFixRequest(files, adapter, errs)
		if !ok {
			logf("repair: %d errors left, none fixable", artifact.CountErrors(errs))
			break
		}
		res.Attempts++
		logf("repair: attempt %d/%d sending %d errors over %d files", res.Attempts, maxAttempts, len(req.Errors), len(req.Files))

		out, err := Fix(ctx, s, req, opts.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				res.Errors = errs
				return res, ctx.Err()
			}
			logf("repair: attempt %d failed: %v", res.Attempts, err)
			continue
		}
		diffs := Apply(files, out, SourceSynth, logf)
		res.FixesApplied += len(diffs)
		res.Diffs = append(res.Diffs, diffs...)
		errs = Check(files, adapter)
	}
	res.Errors = errs
	res.AutoFixed = fixed.Sorted()
	return res, nil
}

// Fix calls the synthesizer with the request bounded by timeout, when set.
func Fix(ctx context.Context, s synth.Synthesizer, req synth.FixRequest, timeout time.Duration) ([]artifact.GeneratedFile, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.Fix(ctx, req)
}

// Apply writes fixed files into the set and returns a diff for every file whose
// content changed.
func Apply(files *fileset.FileSet, out []artifact.GeneratedFile, source string, logf func(string, ...any)) []FileDiff {
	before := map[string]string{}
	for _, f := range out {
		if p, err := fileset.NormalizePath(f.Path); err == nil {
			before[p], _ = files.Get(p)
		}
	}
	paths, err := files.Write(out)
	if err != nil {
		logf("repair: skipped files: %v", err)
	}
	var diffs []FileDiff
	for _, p := range paths {
		after, _ := files.Get(p)
		if after == before[p] {
			continue
		}
		patch, oversize := Unified(p, before[p], after)
		added, removed := Stat(patch)
		logf("repair: wrote %s (+%d -%d)", p, added, removed)
		diffs = append(diffs, FileDiff{Path: p, Source: source, Patch: patch, Oversize: oversize})
	}
	return diffs
}

// AutoFix appends explicit named exports to catch-all files whose importers need
// names the file declares but does not export. The change is rolled back when it
// does not lower the error count. It returns the changed files, their diffs, and
// the diagnostics after the fix (errs when nothing changed).
func AutoFix(files *fileset.FileSet, adapter lang.Adapter, errs []artifact.ValidationError) ([]string, []FileDiff, []artifact.ValidationError) {
	fixer, ok := adapter.(lang.ExportFixer)
	if !ok {
		return nil, nil, errs
	}
	g := symgraph.Build(files, adapter)
	missing := g.MissingSymbols()
	if len(missing) == 0 {
		return nil, nil, errs
	}

	snapshot := map[string]string{}
	var changed []string
	for _, p := range sortedKeys(missing) {
		content, ok := files.Get(p)
		if !ok || !fixer.CatchAllExport(content, p) {
			continue
		}
		declared := artifact.SymbolSet{}
		declared.Add(fixer.DeclaredSymbols(content, p)...)
		var names []string
		for _, n := range missing[p] {
			if declared.Has(n) {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			continue
		}
		if err := files.Set(p, fixer.AppendNamedExports(content, names)); err != nil {
			continue
		}
		snapshot[p] = content
		changed = append(changed, p)
	}
	if len(changed) == 0 {
		return nil, nil, errs
	}

	next := Check(files, adapter)
	if artifact.CountErrors(next) >= artifact.CountErrors(errs) {
		for p, content := range snapshot {
			_ = files.Set(p, content)
		}
		return nil, nil, errs
	}
	diffs := make([]FileDiff, 0, len(changed))
	for _, p := range changed {
		after, _ := files.Get(p)
		patch, oversize := Unified(p, snapshot[p], after)
		diffs = append(diffs, FileDiff{Path: p, Source: SourceAutofix, Patch: patch, Oversize: oversize})
	}
	return changed, diffs, next
}

// BuildFixRequest bundles up to MaxBundleErrors fixable errors and the contents of up
// to MaxBundleFiles affected files. Files that fail to export what importers need
// count as affected alongside the files reporting the errors. It reports false
// when no error is fixable.
func BuildFixRequest(files *fileset.FileSet, adapter lang.Adapter, errs []artifact.ValidationError) (synth.FixRequest, bool) {
	req := synth.FixRequest{
		Stack:     adapter.ID(),
		Structure: adapter.FileStructure(),
		Siblings:  map[string][]string{},
		Expected:  map[string][]string{},
	}
	for _, e := range errs {
		if e.Severity != artifact.SeverityError || !e.Fixable {
			continue
		}
		req.Errors = append(req.Errors, e)
		if len(req.Errors) == MaxBundleErrors {
			break
		}
	}
	if len(req.Errors) == 0 {
		return req, false
	}

	g := symgraph.Build(files, adapter)
	missing := g.MissingSymbols()
	var affected []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] || len(affected) == MaxBundleFiles || !files.Has(p) {
			return
		}
		seen[p] = true
		affected = append(affected, p)
	}
	for _, e := range req.Errors {
		add(e.File)
	}
	for _, p := range sortedKeys(missing) {
		add(p)
	}

	for _, p := range affected {
		content, _ := files.Get(p)
		req.Files = append(req.Files, artifact.GeneratedFile{Path: p, Content: content})
		dir := path.Dir(p)
		if _, ok := req.Siblings[dir]; !ok {
			req.Siblings[dir] = files.Siblings(dir)
		}
		if exp := g.ExpectedOf(p); len(exp) > 0 {
			req.Expected[p] = exp
		}
	}
	return req, true
}

func sortedKeys(m map[string][]string) []string {
	set := artifact.SymbolSet{}
	for k := range m {
		set.Add(k)
	}
	return set.Sorted()
}
