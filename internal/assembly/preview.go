package assembly

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"assemblyline/internal/artifact"
	"assemblyline/internal/fileset"
	"assemblyline/internal/lang"
	"assemblyline/internal/storage"
	"assemblyline/internal/workspace"
)

const (
	StagePreview   = "preview"
	StageConfirmed = "confirmed"
	StageCanceled  = "canceled"
)

type PreviewResult struct {
	RunID               string                     `json:"run_id"`
	ScratchHandle       string                     `json:"scratch_handle,omitempty"`
	Status              artifact.RunStatus         `json:"status"`
	Success             bool                       `json:"success"`
	Files               []artifact.GeneratedFile   `json:"files"`
	ValidationErrors    []artifact.ValidationError `json:"validation_errors,omitempty"`
	ToolchainErrors     []artifact.ValidationError `json:"toolchain_errors,omitempty"`
	ToolchainErrorCount int                        `json:"toolchain_error_count"`
	FixesApplied        int                        `json:"fixes_applied"`
	Logs                []artifact.LogEntry        `json:"logs"`
	Error               string                     `json:"error,omitempty"`
}

// preview is a finished or running preview waiting for Confirm or Cancel.
type preview struct {
	mu      sync.Mutex
	handle  string
	run     *artifact.AssemblyRun
	files   *fileset.FileSet
	dir     *workspace.Dir
	cancel  context.CancelFunc
	running bool
	closed  bool
}

func (pv *preview) result() *PreviewResult {
	r := pv.run
	res := &PreviewResult{
		RunID:               r.ID,
		ScratchHandle:       pv.handle,
		Status:              r.Status,
		Success:             r.Success,
		Files:               pv.files.Files(),
		ValidationErrors:    append([]artifact.ValidationError(nil), r.ValidationErrors...),
		ToolchainErrors:     append([]artifact.ValidationError(nil), r.ToolchainErrors...),
		ToolchainErrorCount: artifact.CountErrors(r.ToolchainErrors),
		FixesApplied:        r.FixesApplied,
		Logs:                append([]artifact.LogEntry(nil), r.Logs...),
		Error:               r.Error,
	}
	return res
}

func (pv *preview) removeDir(logger *log.Logger) {
	if pv.dir == nil {
		return
	}
	if err := pv.dir.Remove(); err != nil {
		logger.Printf("assembly: remove scratch %s: %v", pv.handle, err)
	}
}

// Preview runs the pipeline against a scratch directory and keeps the result
// under a handle until Confirm, Cancel or expiry. Durable storage is never
// touched. Cancelling ctx, or calling Cancel with the handle announced in the
// preview event, stops the run and discards the scratch directory.
func (e *Engine) Preview(ctx context.Context, frags []artifact.Fragment, adapter lang.Adapter, opts Options) (*PreviewResult, error) {
	id, err := e.newRunID(ctx, opts.RunID)
	if err != nil {
		return nil, err
	}
	run := artifact.NewRun(id, adapter.ID(), artifact.ModePreview)
	run.ProjectID = opts.ProjectID
	run.DryRun = opts.DryRun
	p := e.newPipeline(run, adapter, opts)
	pv := &preview{run: run, files: p.files, running: true}

	if e.cfg.Workspace != nil && !opts.DryRun {
		dir, err := e.cfg.Workspace.NewScratch()
		if err != nil {
			_, err = p.fail(ctx, fmt.Errorf("prepare scratch dir: %w", err))
			return pv.result(), err
		}
		p.dir, pv.dir = dir, dir
		pv.handle = dir.Handle
		run.WorkDir = dir.Path
	} else {
		pv.handle = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pv.cancel = cancel
	e.previews.Add(pv.handle, pv)
	e.emit(run.ID, StagePreview, map[string]any{"scratch_handle": pv.handle})

	err = p.execute(ctx, frags)

	pv.mu.Lock()
	pv.running = false
	closed := pv.closed
	pv.mu.Unlock()

	switch {
	case closed:
		pv.removeDir(e.cfg.Logger)
		res := pv.result()
		res.ScratchHandle = ""
		if err == nil {
			err = context.Canceled
		}
		return res, err
	case err != nil:
		e.previews.Remove(pv.handle)
		res := pv.result()
		res.ScratchHandle = ""
		return res, err
	}
	return pv.result(), nil
}

// Confirm commits a completed preview: its files go to durable storage, the
// scratch directory becomes the run's working directory and the run record is
// saved as durable. The caller's cancellation is ignored once committing starts.
func (e *Engine) Confirm(ctx context.Context, handle string) (*artifact.AssemblyRun, error) {
	ctx = context.WithoutCancel(ctx)
	pv, ok := e.previews.Peek(handle)
	if !ok {
		return nil, ErrUnknownHandle
	}
	pv.mu.Lock()
	switch {
	case pv.closed:
		pv.mu.Unlock()
		return nil, ErrUnknownHandle
	case pv.running, pv.run.Status != artifact.StatusCompleted:
		pv.mu.Unlock()
		return nil, ErrNotReady
	case pv.run.DryRun:
		pv.mu.Unlock()
		return nil, fmt.Errorf("%w: dry runs cannot be committed", ErrNotReady)
	}
	pv.closed = true
	pv.mu.Unlock()
	e.previews.Remove(handle)

	run := pv.run
	if err := storage.PutFiles(ctx, e.cfg.Files, run.ID, pv.files.Files()); err != nil {
		pv.mu.Lock()
		pv.closed = false
		pv.mu.Unlock()
		e.previews.Add(handle, pv)
		return nil, fmt.Errorf("confirm %s: store files: %w", handle, err)
	}
	run.Mode = artifact.ModeDurable
	run.WorkDir = ""
	if pv.dir != nil {
		dir, err := e.cfg.Workspace.Promote(pv.dir, run.ID)
		if err != nil {
			run.Logf(levelWarn, "confirm: keeping files without a working directory: %v", err)
			pv.removeDir(e.cfg.Logger)
		} else {
			run.WorkDir = dir.Path
		}
	}
	run.Logf(levelInfo, "confirm: committed %d files from preview %s", pv.files.Len(), handle)
	if err := e.cfg.Runs.Save(ctx, run); err != nil {
		return run, fmt.Errorf("confirm %s: save run: %w", handle, err)
	}
	e.emit(run.ID, StageConfirmed, map[string]any{"files": pv.files.Len(), "work_dir": run.WorkDir})
	return run, nil
}

// Cancel discards a preview. A running preview is stopped; its scratch directory
// is removed when the run returns.
func (e *Engine) Cancel(handle string) error {
	pv, ok := e.previews.Peek(handle)
	if !ok {
		return ErrUnknownHandle
	}
	pv.mu.Lock()
	closed := pv.closed
	pv.mu.Unlock()
	if closed {
		return ErrUnknownHandle
	}
	e.previews.Remove(handle)
	e.emit(pv.run.ID, StageCanceled, map[string]any{"scratch_handle": handle})
	return nil
}

// evictPreview runs for every preview leaving the cache: Cancel, expiry, capacity
// pressure and Close. Confirmed previews are already closed and skipped.
func (e *Engine) evictPreview(handle string, pv *preview) {
	pv.mu.Lock()
	if pv.closed {
		pv.mu.Unlock()
		return
	}
	pv.closed = true
	running := pv.running
	pv.mu.Unlock()

	if pv.cancel != nil {
		pv.cancel()
	}
	if !running {
		pv.removeDir(e.cfg.Logger)
	}
	e.cfg.Logger.Printf("assembly: discarded preview %s", handle)
}

// Close discards every pending preview.
func (e *Engine) Close() error {
	e.previews.Purge()
	return nil
}
