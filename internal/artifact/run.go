package artifact

import (
	"fmt"
	"time"
)

type RunStatus string

const (
	StatusPending              RunStatus = "pending"
	StatusScaffolding          RunStatus = "scaffolding"
	StatusMerging              RunStatus = "merging"
	StatusGenerating           RunStatus = "generating"
	StatusWiring               RunStatus = "wiring"
	StatusValidating           RunStatus = "validating"
	StatusTypescriptValidation RunStatus = "typescript-validation"
	StatusCompleted            RunStatus = "completed"
	StatusFailed               RunStatus = "failed"
)

var statusOrder = map[RunStatus]int{
	StatusPending:              0,
	StatusScaffolding:          1,
	StatusMerging:              2,
	StatusGenerating:           3,
	StatusWiring:               4,
	StatusValidating:           5,
	StatusTypescriptValidation: 6,
	StatusCompleted:            7,
	StatusFailed:               7,
}

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type RunMode string

const (
	ModeDurable RunMode = "durable"
	ModePreview RunMode = "preview"
)

type PhaseStatus string

const (
	PhaseOK      PhaseStatus = "ok"
	PhasePartial PhaseStatus = "partial"
	PhaseSkipped PhaseStatus = "skipped"
	PhaseFailed  PhaseStatus = "failed"
)

// PhaseCheckpoint is recorded every time the run enters a new state.
type PhaseCheckpoint struct {
	Phase     RunStatus   `json:"phase"`
	Status    PhaseStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
	StartedAt time.Time   `json:"started_at"`
}

type LogEntry struct {
	Time    time.Time `json:"time"`
	Phase   RunStatus `json:"phase"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// AssemblyRun is the durable record of one assembly. Only the orchestrator mutates it.
type AssemblyRun struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id,omitempty"`
	Stack     string  `json:"stack"`
	Mode      RunMode `json:"mode"`
	DryRun    bool    `json:"dry_run,omitempty"`

	Status RunStatus         `json:"status"`
	Phases []PhaseCheckpoint `json:"phases"`
	Logs   []LogEntry        `json:"logs"`

	Files            []string          `json:"files"`
	InputErrors      []ValidationError `json:"input_errors,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	ToolchainErrors  []ValidationError `json:"toolchain_errors,omitempty"`

	GapPasses       int      `json:"gap_passes"`
	Synthesized     []string `json:"synthesized,omitempty"`
	Deduplicated    []string `json:"deduplicated,omitempty"`
	FixAttempts     int      `json:"fix_attempts"`
	CompileAttempts int      `json:"compile_attempts"`
	FixesApplied    int      `json:"fixes_applied"`

	WorkDir string `json:"work_dir,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRun returns a pending run.
func NewRun(id, stack string, mode RunMode) *AssemblyRun {
	now := time.Now().UTC()
	return &AssemblyRun{
		ID:        id,
		Stack:     stack,
		Mode:      mode,
		Status:    StatusPending,
		Phases:    []PhaseCheckpoint{{Phase: StatusPending, Status: PhaseOK, StartedAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the run forward. Backward moves and moves out of a terminal state fail.
func (r *AssemblyRun) Transition(to RunStatus) error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s already %s", r.ID, r.Status)
	}
	if to != StatusFailed && statusOrder[to] <= statusOrder[r.Status] {
		return fmt.Errorf("run %s cannot move from %s to %s", r.ID, r.Status, to)
	}
	now := time.Now().UTC()
	r.Status = to
	r.UpdatedAt = now
	r.Phases = append(r.Phases, PhaseCheckpoint{Phase: to, Status: PhaseOK, StartedAt: now})
	if to.Terminal() {
		r.CompletedAt = &now
	}
	return nil
}

// MarkPhase overrides the status of the current checkpoint.
func (r *AssemblyRun) MarkPhase(status PhaseStatus, note string) {
	if len(r.Phases) == 0 {
		return
	}
	cp := &r.Phases[len(r.Phases)-1]
	cp.Status = status
	if note != "" {
		cp.Note = note
	}
}

// PhaseStatusOf returns the recorded status of a phase, or "" when the run never entered it.
func (r *AssemblyRun) PhaseStatusOf(phase RunStatus) PhaseStatus {
	for _, cp := range r.Phases {
		if cp.Phase == phase {
			return cp.Status
		}
	}
	return ""
}

func (r *AssemblyRun) Logf(level, format string, args ...any) LogEntry {
	entry := LogEntry{
		Time:    time.Now().UTC(),
		Phase:   r.Status,
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	}
	r.Logs = append(r.Logs, entry)
	r.UpdatedAt = entry.Time
	return entry
}

// Fail moves the run to failed and captures the message verbatim.
func (r *AssemblyRun) Fail(err error) {
	if err == nil || r.Status.Terminal() {
		return
	}
	r.Error = err.Error()
	r.MarkPhase(PhaseFailed, r.Error)
	_ = r.Transition(StatusFailed)
	r.Success = false
}

// ComputeSuccess sets Success from the recorded error lists.
func (r *AssemblyRun) ComputeSuccess() bool {
	r.Success = r.Status == StatusCompleted &&
		len(r.InputErrors) == 0 &&
		CountErrors(r.ValidationErrors) == 0 &&
		CountErrors(r.ToolchainErrors) == 0
	return r.Success
}
