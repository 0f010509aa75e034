package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"assemblyline/internal/artifact"
	"assemblyline/internal/jsonutil"
	"assemblyline/internal/lang"
	"assemblyline/internal/llm"
)

type Options struct {
	// BatchSize is the number of missing files requested per model call.
	BatchSize int
	// Concurrency bounds parallel model calls within one Generate.
	Concurrency int
	// Timeout applies to each model call.
	Timeout time.Duration
	// ParseRetries is how many extra calls are made when a reply cannot be decoded.
	ParseRetries int
}

func DefaultOptions() Options {
	return Options{BatchSize: 5, Concurrency: 4, Timeout: 2 * time.Minute, ParseRetries: 1}
}

// LLM is a Synthesizer backed by an llm.LLMClient that answers in JSON.
type LLM struct {
	client llm.LLMClient
	opts   Options
}

func NewLLM(client llm.LLMClient, opts Options) *LLM {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.ParseRetries < 0 {
		opts.ParseRetries = 0
	}
	return &LLM{client: client, opts: opts}
}

type generateInput struct {
	Stack   string                     `json:"stack"`
	Layout  map[string]string          `json:"layout,omitempty"`
	Missing []artifact.MissingFileSpec `json:"missing"`
	Context []artifact.GeneratedFile   `json:"context,omitempty"`
}

type fixInput struct {
	Stack    string                     `json:"stack"`
	Layout   map[string]string          `json:"layout,omitempty"`
	Errors   []artifact.ValidationError `json:"errors"`
	Files    []artifact.GeneratedFile   `json:"files"`
	Siblings map[string][]string        `json:"siblings,omitempty"`
	Expected map[string][]string        `json:"expected,omitempty"`
}

type filesPayload struct {
	Files []artifact.GeneratedFile `json:"files"`
}

// Generate splits the specs into batches and requests them in parallel. Batches that
// fail are logged and skipped; an error is returned only when every batch failed.
func (s *LLM) Generate(ctx context.Context, req GenerateRequest) ([]artifact.GeneratedFile, error) {
	if len(req.Specs) == 0 {
		return nil, nil
	}
	var batches [][]artifact.MissingFileSpec
	for i := 0; i < len(req.Specs); i += s.opts.BatchSize {
		end := min(i+s.opts.BatchSize, len(req.Specs))
		batches = append(batches, req.Specs[i:end])
	}

	results := make([][]artifact.GeneratedFile, len(batches))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			in := generateInput{
				Stack:   req.Stack,
				Layout:  layout(req.Structure),
				Missing: batch,
				Context: contextFor(batch, req.Context),
			}
			files, err := s.call(gctx, PhaseGenerate, generatePrompt(req.Stack), in)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("synth: generate batch %d/%d failed: %v", i+1, len(batches), err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			expected := make([]string, 0, len(batch))
			for _, sp := range batch {
				expected = append(expected, sp.ExpectedPath)
			}
			results[i] = Route(files, expected, knownFiles(req.Context, nil), req.Structure)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(errs) == len(batches) {
		return nil, errors.Join(errs...)
	}
	var out []artifact.GeneratedFile
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// Fix sends the whole bundle in one request. The caller has already bounded it.
func (s *LLM) Fix(ctx context.Context, req FixRequest) ([]artifact.GeneratedFile, error) {
	if len(req.Errors) == 0 {
		return nil, nil
	}
	in := fixInput{
		Stack:    req.Stack,
		Layout:   layout(req.Structure),
		Errors:   req.Errors,
		Files:    req.Files,
		Siblings: req.Siblings,
		Expected: req.Expected,
	}
	files, err := s.call(ctx, PhaseFix, fixPrompt(req.Stack), in)
	if err != nil {
		return nil, err
	}
	expected := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		expected = append(expected, f.Path)
	}
	return Route(files, expected, knownFiles(req.Files, req.Siblings), req.Structure), nil
}

// knownFiles maps the paths the request showed the model to their content.
// Siblings are listed by path only.
func knownFiles(files []artifact.GeneratedFile, siblings map[string][]string) map[string]string {
	known := map[string]string{}
	for _, ps := range siblings {
		for _, p := range ps {
			known[p] = ""
		}
	}
	for _, f := range files {
		known[f.Path] = f.Content
	}
	return known
}

// call performs one model request and decodes the file list, repairing malformed
// JSON first and asking again when the reply still cannot be decoded.
func (s *LLM) call(ctx context.Context, phase, prompt string, input any) ([]artifact.GeneratedFile, error) {
	ctx = llm.WithPhase(ctx, phase)
	var lastErr error
	for attempt := 0; attempt <= s.opts.ParseRetries; attempt++ {
		raw, err := s.request(ctx, prompt, input)
		if err != nil {
			return nil, err
		}
		files, err := DecodeFiles(raw)
		if err == nil {
			return files, nil
		}
		lastErr = err
		log.Printf("synth: %s reply undecodable (attempt %d): %v", phase, attempt+1, err)
	}
	return nil, lastErr
}

func (s *LLM) request(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	return s.client.GenerateJSON(ctx, prompt, input)
}

// DecodeFiles reads {"files":[...]} (or a bare array of files) from a model reply.
func DecodeFiles(raw []byte) ([]artifact.GeneratedFile, error) {
	trimmed := strings.TrimSpace(jsonutil.ExtractObject(string(raw)))
	var files []artifact.GeneratedFile
	if strings.HasPrefix(trimmed, "[") {
		if err := jsonutil.DecodeLenient([]byte(trimmed), &files); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	} else {
		var p filesPayload
		if err := jsonutil.DecodeLenient([]byte(trimmed), &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		files = p.Files
	}
	out := files[:0]
	for _, f := range files {
		if strings.TrimSpace(f.Path) == "" {
			continue
		}
		out = append(out, f)
	}
	if len(out) == 0 && len(files) > 0 {
		return nil, fmt.Errorf("%w: files without paths", ErrMalformedResponse)
	}
	return out, nil
}

func layout(fs lang.FileStructure) map[string]string {
	if len(fs.Dirs) == 0 {
		return nil
	}
	out := make(map[string]string, len(fs.Dirs))
	for role, dir := range fs.Dirs {
		out[string(role)] = dir
	}
	return out
}

// contextFor keeps the context files that import one of the batch's specs.
func contextFor(batch []artifact.MissingFileSpec, ctxFiles []artifact.GeneratedFile) []artifact.GeneratedFile {
	wanted := artifact.SymbolSet{}
	for _, sp := range batch {
		wanted.Add(sp.ImportedBy...)
	}
	var out []artifact.GeneratedFile
	for _, f := range ctxFiles {
		if wanted.Has(f.Path) {
			out = append(out, f)
		}
	}
	return out
}
