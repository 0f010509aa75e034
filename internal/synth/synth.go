// Package synth turns missing-file specs and error bundles into source files.
//
// The engine only depends on the Synthesizer interface. LLM is the production
// implementation; Funcs adapts plain functions for tests and offline use.
package synth

import (
	"context"
	"errors"

	"assemblyline/internal/artifact"
	"assemblyline/internal/lang"
)

const (
	PhaseGenerate = "synth.generate"
	PhaseFix      = "synth.fix"
)

var ErrMalformedResponse = errors.New("synth: malformed model response")

type GenerateRequest struct {
	Stack     string
	Structure lang.FileStructure
	Specs     []artifact.MissingFileSpec
	// Context holds importer contents so the model sees how the missing names are used.
	Context []artifact.GeneratedFile
}

type FixRequest struct {
	Stack     string
	Structure lang.FileStructure
	Errors    []artifact.ValidationError
	Files     []artifact.GeneratedFile
	// Siblings lists the files next to each affected file, keyed by directory.
	Siblings map[string][]string
	// Expected lists, per affected file, the names its importers need from it.
	Expected map[string][]string
}

type Synthesizer interface {
	Generate(ctx context.Context, req GenerateRequest) ([]artifact.GeneratedFile, error)
	Fix(ctx context.Context, req FixRequest) ([]artifact.GeneratedFile, error)
}

// Funcs implements Synthesizer with optional functions. A nil function returns no files.
type Funcs struct {
	GenerateFn func(ctx context.Context, req GenerateRequest) ([]artifact.GeneratedFile, error)
	FixFn      func(ctx context.Context, req FixRequest) ([]artifact.GeneratedFile, error)
}

func (f Funcs) Generate(ctx context.Context, req GenerateRequest) ([]artifact.GeneratedFile, error) {
	if f.GenerateFn == nil {
		return nil, nil
	}
	return f.GenerateFn(ctx, req)
}

func (f Funcs) Fix(ctx context.Context, req FixRequest) ([]artifact.GeneratedFile, error) {
	if f.FixFn == nil {
		return nil, nil
	}
	return f.FixFn(ctx, req)
}
