// Package trace records run-scoped events: appended as JSONL per run for later
// reading, and fanned out live to subscribers.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	StageDone = "done"
	StageLog  = "log"
)

var runIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type Event struct {
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Stage     string         `json:"stage"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// New stamps an event with the current time.
func New(runID, source, stage string, fields map[string]any) Event {
	ev := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     strings.TrimSpace(runID),
		Source:    strings.TrimSpace(source),
		Stage:     strings.TrimSpace(stage),
	}
	if len(fields) > 0 {
		ev.Fields = fields
	}
	return ev
}

type Emitter interface {
	Emit(ev Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(Event) {}

// Recorder writes events to the trace log and publishes them on the broker.
// Either may be nil.
type Recorder struct {
	Log    *Logger
	Broker *Broker
}

func (r Recorder) Emit(ev Event) {
	r.Log.Append(ev)
	r.Broker.Publish(ev)
}

// Logger persists events into one JSONL file per run.
type Logger struct {
	dir string
	mu  sync.Mutex
}

func NewLogger(dir string) *Logger {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = filepath.Join("tmp", "run_logs")
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Logger{dir: dir}
}

func sanitizeRunID(runID string) string {
	id := runIDSanitizer.ReplaceAllString(strings.TrimSpace(runID), "_")
	if id == "" {
		return "unknown"
	}
	return id
}

func (l *Logger) filePath(runID string) string {
	return filepath.Join(l.dir, sanitizeRunID(runID)+".jsonl")
}

// Append writes one line. Failures are dropped; tracing never fails a run.
func (l *Logger) Append(ev Event) {
	if l == nil || ev.RunID == "" {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	raw = append(raw, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = os.MkdirAll(l.dir, 0o755)
	f, err := os.OpenFile(l.filePath(ev.RunID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(raw)
}

// Read returns every event recorded for a run. Unparseable lines are skipped.
func (l *Logger) Read(runID string) ([]Event, error) {
	if l == nil {
		return nil, nil
	}
	f, err := os.Open(l.filePath(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	out := make([]Event, 0, 64)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan trace file: %w", err)
	}
	return out, nil
}
