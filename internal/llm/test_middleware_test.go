package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"assemblyline/internal/tester"
)

// flakyClient fails the first n calls with err.
type flakyClient struct {
	n     int32
	err   error
	calls atomic.Int32
}

func (f *flakyClient) Name() string { return "flaky" }
func (f *flakyClient) Close() error { return nil }
func (f *flakyClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if f.calls.Add(1) <= f.n {
		return nil, f.err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

type orderClient struct {
	tag  string
	next LLMClient
	log  *[]string
}

func (o *orderClient) Name() string { return o.next.Name() }
func (o *orderClient) Close() error { return o.next.Close() }
func (o *orderClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	*o.log = append(*o.log, o.tag)
	return o.next.GenerateJSON(ctx, prompt, input)
}

func tag(name string, log *[]string) Middleware {
	return func(next LLMClient) LLMClient { return &orderClient{tag: name, next: next, log: log} }
}

func TestWrapOrder(t *testing.T) {
	var seen []string
	cli := Wrap(&flakyClient{}, tag("A", &seen), tag("B", &seen))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)
	tester.Eq(t, seen, []string{"A", "B"})
}

func TestRetryRecovers(t *testing.T) {
	inner := &flakyClient{n: 2, err: errors.New("503")}
	cli := Wrap(inner, Retry(3, time.Millisecond))
	raw, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)
	tester.Eq(t, string(raw), `{"ok":true}`)
	tester.Eq(t, inner.calls.Load(), int32(3))
}

func TestRetryStopsOnPermanent(t *testing.T) {
	inner := &flakyClient{n: 5, err: NewPermanentError(errors.New("bad key"))}
	cli := Wrap(inner, Retry(4, time.Millisecond))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.True(t, IsPermanent(err))
	tester.Eq(t, inner.calls.Load(), int32(1))
}

func TestRetryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	inner := &flakyClient{n: 10, err: boom}
	_, err := Wrap(inner, Retry(2, time.Millisecond)).GenerateJSON(context.Background(), "p", nil)
	tester.True(t, errors.Is(err, boom))
	tester.Eq(t, inner.calls.Load(), int32(2))
}

func TestRateLimitSpacing(t *testing.T) {
	cli := Wrap(&flakyClient{}, RateLimit(20, 1))
	t.Cleanup(func() { _ = cli.Close() })
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := cli.GenerateJSON(context.Background(), "p", nil)
		tester.NoErr(t, err)
	}
	// burst of one, then a token every 50ms
	tester.True(t, time.Since(start) >= 80*time.Millisecond, "elapsed %s", time.Since(start))
}

func TestRateLimitHonoursContext(t *testing.T) {
	cli := Wrap(&flakyClient{}, RateLimit(0.01, 1))
	t.Cleanup(func() { _ = cli.Close() })
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = cli.GenerateJSON(ctx, "p", nil)
	tester.True(t, errors.Is(err, context.DeadlineExceeded))
}

type recordingHook struct {
	before, after []string
}

func (h *recordingHook) Before(ctx context.Context, phase, prompt string, input any) {
	h.before = append(h.before, phase)
}
func (h *recordingHook) After(ctx context.Context, phase string, raw json.RawMessage, err error) {
	h.after = append(h.after, phase)
}

func TestHooksSeePhase(t *testing.T) {
	h := &recordingHook{}
	ctx := WithPhase(ContextWithHook(context.Background(), h), "synth.generate")
	_, err := Wrap(&flakyClient{}, WithHooks()).GenerateJSON(ctx, "p", nil)
	tester.NoErr(t, err)
	tester.Eq(t, h.before, []string{"synth.generate"})
	tester.Eq(t, h.after, []string{"synth.generate"})
	tester.Eq(t, PhaseFrom(context.Background()), "unknown")
}

func TestLazyConstructsOnce(t *testing.T) {
	var builds atomic.Int32
	fail := true
	cli := Lazy("fake", func(ctx context.Context) (LLMClient, error) {
		builds.Add(1)
		if fail {
			fail = false
			return nil, errors.New("not yet")
		}
		return NewFakeClient(), nil
	})
	tester.Eq(t, cli.Name(), "fake")
	tester.NoErr(t, cli.Close())

	_, err := cli.GenerateJSON(context.Background(), "p", map[string]any{})
	tester.True(t, err != nil)
	for i := 0; i < 2; i++ {
		_, err = cli.GenerateJSON(context.Background(), "p", map[string]any{})
		tester.NoErr(t, err)
	}
	tester.Eq(t, builds.Load(), int32(2))
	tester.Eq(t, cli.Name(), "FakeLLM")
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "skynet"})
	tester.True(t, err != nil)

	cli, err := New(context.Background(), Config{Provider: ProviderFake})
	tester.NoErr(t, err)
	tester.Eq(t, cli.Name(), "FakeLLM")
}
