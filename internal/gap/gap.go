// Package gap closes holes in the module graph: imports of local files that do not
// exist yet are collected into specs and handed to the synthesizer, pass by pass,
// until no gaps remain or the pass budget is spent.
package gap

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"assemblyline/internal/artifact"
	"assemblyline/internal/fileset"
	"assemblyline/internal/lang"
	"assemblyline/internal/symgraph"
	"assemblyline/internal/synth"
)

const (
	DefaultMaxPasses = 3
	MaxSpecsPerPass  = 20
	maxContextFiles  = 10
)

type Options struct {
	MaxPasses int
	Timeout   time.Duration
	// Logf receives progress lines; nil uses the standard logger.
	Logf func(format string, args ...any)
}

type Result struct {
	Passes      int
	Synthesized []string
	Remaining   []artifact.MissingFileSpec
}

// Find lists every missing local file with the named exports its importers need.
// A file imported only by default or namespace imports has no required exports.
func Find(files lang.Files, adapter lang.Adapter) []artifact.MissingFileSpec {
	return collect(symgraph.Build(files, adapter))
}

func collect(g *symgraph.Graph) []artifact.MissingFileSpec {
	type acc struct {
		exports artifact.SymbolSet
		by      artifact.SymbolSet
	}
	byPath := map[string]*acc{}
	for _, e := range g.Unresolved() {
		a := byPath[e.Resolution.Path]
		if a == nil {
			a = &acc{exports: artifact.SymbolSet{}, by: artifact.SymbolSet{}}
			byPath[e.Resolution.Path] = a
		}
		a.exports.Add(e.Import.NamedSymbols()...)
		a.by.Add(e.From)
	}
	out := make([]artifact.MissingFileSpec, 0, len(byPath))
	for p, a := range byPath {
		out = append(out, artifact.MissingFileSpec{
			ExpectedPath:    p,
			RequiredExports: a.exports.Sorted(),
			ImportedBy:      a.by.Sorted(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpectedPath < out[j].ExpectedPath })
	return out
}

// Resolve runs gap passes against files. It stops when no gaps remain, when the
// budget is spent, or when a pass in which the synthesizer answered left the gap
// set unchanged. Synthesizer failures are logged and retried in the next pass.
// Only context cancellation is returned as an error.
func Resolve(ctx context.Context, files *fileset.FileSet, adapter lang.Adapter, s synth.Synthesizer, opts Options) (Result, error) {
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}

	var (
		res         Result
		prevKey     string
		prevSynthOK bool
		written     = artifact.SymbolSet{}
	)
	for pass := 1; pass <= maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		specs := Find(files, adapter)
		if len(specs) == 0 {
			break
		}
		key := specsKey(specs)
		if key == prevKey && prevSynthOK {
			logf("gap: pass %d made no progress on %d missing files, stopping", pass, len(specs))
			break
		}
		prevKey = key
		res.Passes = pass

		batch := specs
		if len(batch) > MaxSpecsPerPass {
			batch = batch[:MaxSpecsPerPass]
		}
		logf("gap: pass %d found %d missing files, requesting %d", pass, len(specs), len(batch))

		req := synth.GenerateRequest{
			Stack:     adapter.ID(),
			Structure: adapter.FileStructure(),
			Specs:     batch,
			Context:   importerContext(files, batch),
		}
		generated, err := generate(ctx, s, req, opts.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			prevSynthOK = false
			logf("gap: pass %d synthesis failed: %v", pass, err)
			continue
		}
		prevSynthOK = true
		paths, werr := files.Write(generated)
		if werr != nil {
			logf("gap: pass %d skipped files: %v", pass, werr)
		}
		for _, p := range paths {
			logf("gap: wrote %s", p)
			written.Add(p)
		}
	}
	res.Synthesized = written.Sorted()
	res.Remaining = Find(files, adapter)
	return res, nil
}

func generate(ctx context.Context, s synth.Synthesizer, req synth.GenerateRequest, timeout time.Duration) ([]artifact.GeneratedFile, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := s.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate %d files: %w", len(req.Specs), err)
	}
	return out, nil
}

func specsKey(specs []artifact.MissingFileSpec) string {
	var b strings.Builder
	for _, s := range specs {
		b.WriteString(s.ExpectedPath)
		b.WriteByte('|')
		b.WriteString(strings.Join(s.RequiredExports, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func importerContext(files lang.Files, specs []artifact.MissingFileSpec) []artifact.GeneratedFile {
	seen := artifact.SymbolSet{}
	var out []artifact.GeneratedFile
	for _, s := range specs {
		for _, p := range s.ImportedBy {
			if seen.Has(p) || len(out) >= maxContextFiles {
				continue
			}
			seen.Add(p)
			if content, ok := files.Get(p); ok {
				out = append(out, artifact.GeneratedFile{Path: p, Content: content})
			}
		}
	}
	return out
}
