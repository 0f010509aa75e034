package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
	ProviderFake   = "fake"
)

type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	RPS        float64
	Burst      int
	MaxRetries int
	Timeout    time.Duration
	Logger     *log.Logger
}

// New builds the provider client named by cfg and wraps it with the standard
// middleware stack: logging, hooks, retry, rate limit and per-attempt timeout.
func New(ctx context.Context, cfg Config) (LLMClient, error) {
	var (
		base LLMClient
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini:
		base, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	case ProviderGroq:
		base, err = NewGroqClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderOllama:
		base, err = NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.Timeout)
	case ProviderFake, "":
		base = NewFakeClient()
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return Wrap(base,
		WithLogging(cfg.Logger),
		WithHooks(),
		Retry(retries, 500*time.Millisecond),
		RateLimit(cfg.RPS, cfg.Burst),
		WithTimeout(cfg.Timeout),
	), nil
}

// Factory constructs a client on demand.
type Factory func(ctx context.Context) (LLMClient, error)

// Lazy defers construction until the first request. A failed construction is
// retried on the next request.
func Lazy(name string, factory Factory) LLMClient {
	return &lazyClient{name: name, factory: factory}
}

type lazyClient struct {
	name    string
	factory Factory

	mu     sync.Mutex
	client LLMClient
}

func (l *lazyClient) get(ctx context.Context) (LLMClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	c, err := l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: init %s: %w", l.name, err)
	}
	log.Printf("llm: initialized %s", c.Name())
	l.client = c
	return c, nil
}

func (l *lazyClient) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client.Name()
	}
	return l.name
}

func (l *lazyClient) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

func (l *lazyClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.GenerateJSON(ctx, prompt, input)
}
