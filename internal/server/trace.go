package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"assemblyline/internal/trace"
)

type TraceHandler struct {
	log    *trace.Logger
	events trace.Emitter
}

func NewTraceHandler(log *trace.Logger, events trace.Emitter) *TraceHandler {
	if events == nil {
		events = trace.Nop{}
	}
	return &TraceHandler{log: log, events: events}
}

// HandleClientTrace records an event reported by a client against a run.
func (h *TraceHandler) HandleClientTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Timestamp string         `json:"timestamp"`
		RunID     string         `json:"run_id"`
		Stage     string         `json:"stage"`
		Level     string         `json:"level"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	runID := strings.TrimSpace(in.RunID)
	stage := strings.TrimSpace(in.Stage)
	if runID == "" || stage == "" {
		http.Error(w, "run_id and stage are required", http.StatusBadRequest)
		return
	}
	fields := map[string]any{}
	for k, v := range in.Fields {
		fields[k] = v
	}
	if lvl := strings.TrimSpace(in.Level); lvl != "" {
		fields["level"] = lvl
	}
	if ts := strings.TrimSpace(in.Timestamp); ts != "" {
		fields["client_timestamp"] = ts
	}
	h.events.Emit(trace.New(runID, "client", stage, fields))
	writeJSON(w, map[string]any{"ok": true})
}

func (h *TraceHandler) HandleRunLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}
	if h.log == nil {
		http.Error(w, "run logs are disabled", http.StatusNotFound)
		return
	}
	events, err := h.log.Read(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"run_id": runID,
		"events": events,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
