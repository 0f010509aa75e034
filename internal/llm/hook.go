package llm

import (
	"context"
	"encoding/json"
)

type PromptHook interface {
	Before(ctx context.Context, phase, prompt string, input any)
	After(ctx context.Context, phase string, raw json.RawMessage, err error)
}

type ctxKeyHook struct{}
type ctxKeyPhase struct{}

// ContextWithHook attaches a PromptHook consulted by the WithHooks middleware.
func ContextWithHook(ctx context.Context, hook PromptHook) context.Context {
	return context.WithValue(ctx, ctxKeyHook{}, hook)
}

// WithPhase labels the request for logs, hooks and the fake client.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// HookFrom returns the hook stored in the context.
func HookFrom(ctx context.Context) PromptHook {
	if h, ok := ctx.Value(ctxKeyHook{}).(PromptHook); ok {
		return h
	}
	return nil
}

// PhaseFrom returns the phase string stored in the context.
func PhaseFrom(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyPhase{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}
