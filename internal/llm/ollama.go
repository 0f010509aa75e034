package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const ollamaDefaultURL = "http://localhost:11434"

// OllamaClient talks to a local or remote Ollama server in JSON mode.
type OllamaClient struct {
	client *api.Client
	model  string
}

func NewOllamaClient(baseURL, model string, timeout time.Duration) (*OllamaClient, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model name is required")
	}
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaClient{
		client: api.NewClient(u, &http.Client{Timeout: timeout}),
		model:  model,
	}, nil
}

func (o *OllamaClient) Name() string { return "Ollama:" + o.model }
func (o *OllamaClient) Close() error { return nil }

func (o *OllamaClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, _ := json.MarshalIndent(input, "", "  ")
	stream := false
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: "[INPUT JSON]\n" + string(in)},
		},
		Stream:  &stream,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0},
	}
	var out strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		if isModelNotFound(err) {
			return nil, NewPermanentError(err)
		}
		return nil, err
	}
	if strings.TrimSpace(out.String()) == "" {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(out.String()), nil
}

func isModelNotFound(err error) bool {
	var se api.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return true
	}
	var sp *api.StatusError
	if errors.As(err, &sp) && sp.StatusCode == http.StatusNotFound {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "model") && strings.Contains(msg, "not found")
}
