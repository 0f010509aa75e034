// Package stacks builds the adapter registry the engine is started with.
package stacks

import (
	"assemblyline/internal/lang"
	"assemblyline/internal/lang/golang"
	"assemblyline/internal/lang/typescript"
)

// NewRegistry registers the built-in adapters. TypeScript is the default unless
// defaultID names another registered stack.
func NewRegistry(defaultID string) (*lang.Registry, error) {
	r := lang.NewRegistry()
	for _, a := range []lang.Adapter{typescript.New(), golang.New()} {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	if defaultID != "" {
		if err := r.SetDefault(defaultID); err != nil {
			return nil, err
		}
	}
	return r, nil
}
