package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"assemblyline/internal/tester"
)

func TestGroqClient(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"files\":[]}"}}]}`))
	}))
	defer srv.Close()

	cli, err := NewGroqClient("k", "m", srv.URL)
	tester.NoErr(t, err)
	raw, err := cli.GenerateJSON(context.Background(), "system prompt", map[string]string{"x": "y"})
	tester.NoErr(t, err)
	tester.Eq(t, string(raw), `{"files":[]}`)
	tester.Eq(t, gotAuth, "Bearer k")
	tester.Contains(t, gotBody, `"json_object"`, "system prompt", `[INPUT JSON]`)
}

func TestGroqClientPermanentErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "long") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"context_length_exceeded"}}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cli, _ := NewGroqClient("k", "m", srv.URL)
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.True(t, IsPermanent(err))

	cli, _ = NewGroqClient("k", "m", srv.URL+"/long")
	_, err = cli.GenerateJSON(context.Background(), "p", nil)
	tester.True(t, IsPermanent(err))

	_, err = NewGroqClient("", "m", "")
	tester.True(t, err != nil)
}

func TestGroqClientTransientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cli, _ := NewGroqClient("k", "m", srv.URL)
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.True(t, err != nil)
	tester.False(t, IsPermanent(err))
}

func TestOllamaClient(t *testing.T) {
	var req struct {
		Model    string          `json:"model"`
		Format   json.RawMessage `json:"format"`
		Stream   *bool           `json:"stream"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"{\"files\":[]}"},"done":true}`))
	}))
	defer srv.Close()

	cli, err := NewOllamaClient(srv.URL, "qwen2.5-coder", 0)
	tester.NoErr(t, err)
	raw, err := cli.GenerateJSON(context.Background(), "p", map[string]int{"a": 1})
	tester.NoErr(t, err)
	tester.Eq(t, string(raw), `{"files":[]}`)
	tester.Eq(t, gotPath, "/api/chat")
	tester.Eq(t, req.Model, "qwen2.5-coder")
	tester.Eq(t, string(req.Format), `"json"`)
	tester.True(t, req.Stream != nil && !*req.Stream)
	tester.Eq(t, len(req.Messages), 2)

	_, err = NewOllamaClient("", "", 0)
	tester.True(t, err != nil)
}

func TestFakeClientScriptAndStubs(t *testing.T) {
	f := NewFakeClient()
	f.Enqueue("synth.fix", `{"files":[{"path":"a.ts","content":"x"}]}`)
	f.EnqueueError("synth.fix", errors.New("down"))

	ctx := WithPhase(context.Background(), "synth.fix")
	raw, err := f.GenerateJSON(ctx, "p", nil)
	tester.NoErr(t, err)
	tester.Contains(t, string(raw), "a.ts")
	_, err = f.GenerateJSON(ctx, "p", nil)
	tester.True(t, err != nil)

	input := map[string]any{"missing": []map[string]any{
		{"expected_path": "src/lib/missing.ts", "required_exports": []string{"helper"}},
		{"expected_path": "internal/store/store.go", "required_exports": []string{"New"}},
	}}
	raw, err = f.GenerateJSON(WithPhase(context.Background(), "synth.generate"), "p", input)
	tester.NoErr(t, err)
	var out struct {
		Files []struct{ Path, Content string } `json:"files"`
	}
	tester.NoErr(t, json.Unmarshal(raw, &out))
	tester.Eq(t, len(out.Files), 2)
	tester.Contains(t, out.Files[0].Content, "export const helper")
	tester.Contains(t, out.Files[1].Content, "package store", "var New any")
	tester.Eq(t, len(f.Calls()), 3)
}
