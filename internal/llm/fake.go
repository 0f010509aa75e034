package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
)

// FakeCall records one request seen by FakeClient.
type FakeCall struct {
	Phase  string
	Prompt string
	Input  json.RawMessage
}

type fakeReply struct {
	raw json.RawMessage
	err error
}

// FakeClient is an offline client. Scripted replies are served per phase in FIFO
// order; without a script it answers deterministically from the input.
type FakeClient struct {
	mu     sync.Mutex
	script map[string][]fakeReply
	calls  []FakeCall
}

func NewFakeClient() *FakeClient {
	return &FakeClient{script: map[string][]fakeReply{}}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Enqueue schedules raw replies for phase.
func (f *FakeClient) Enqueue(phase string, raw ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range raw {
		f.script[phase] = append(f.script[phase], fakeReply{raw: json.RawMessage(r)})
	}
}

// EnqueueError schedules a failing reply for phase.
func (f *FakeClient) EnqueueError(phase string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[phase] = append(f.script[phase], fakeReply{err: err})
}

func (f *FakeClient) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phase := PhaseFrom(ctx)
	in, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Phase: phase, Prompt: prompt, Input: in})
	if q := f.script[phase]; len(q) > 0 {
		f.script[phase] = q[1:]
		f.mu.Unlock()
		return q[0].raw, q[0].err
	}
	f.mu.Unlock()
	return stubFiles(in)
}

// stubFiles answers a request listing missing files with placeholder modules that
// export every required name. Any other request gets an empty file list.
func stubFiles(in json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Missing []struct {
			ExpectedPath    string   `json:"expected_path"`
			RequiredExports []string `json:"required_exports"`
		} `json:"missing"`
	}
	_ = json.Unmarshal(in, &req)
	type file struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	out := struct {
		Files []file `json:"files"`
	}{Files: []file{}}
	for _, m := range req.Missing {
		if m.ExpectedPath == "" {
			continue
		}
		out.Files = append(out.Files, file{Path: m.ExpectedPath, Content: stubSource(m.ExpectedPath, m.RequiredExports)})
	}
	return json.Marshal(out)
}

func stubSource(p string, exports []string) string {
	var b strings.Builder
	switch ext := path.Ext(p); ext {
	case ".go":
		pkg := path.Base(path.Dir(p))
		if pkg == "." || pkg == "/" {
			pkg = "main"
		}
		fmt.Fprintf(&b, "package %s\n", strings.ReplaceAll(pkg, "-", ""))
		for _, name := range exports {
			fmt.Fprintf(&b, "\nvar %s any\n", name)
		}
	case ".ts", ".tsx":
		for _, name := range exports {
			fmt.Fprintf(&b, "export const %s: any = undefined;\n", name)
		}
		b.WriteString("export default {};\n")
	default:
		for _, name := range exports {
			fmt.Fprintf(&b, "export const %s = undefined;\n", name)
		}
		b.WriteString("export default {};\n")
	}
	return b.String()
}
