package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"assemblyline/internal/artifact"
	"assemblyline/internal/assembly"
	"assemblyline/internal/lang"
	"assemblyline/internal/runstore"
	"assemblyline/internal/storage"
)

// Engine is the part of assembly.Engine the API serves.
type Engine interface {
	Adapter(stack string) (lang.Adapter, error)
	Assemble(ctx context.Context, frags []artifact.Fragment, adapter lang.Adapter, opts assembly.Options) (*artifact.AssemblyRun, error)
	Preview(ctx context.Context, frags []artifact.Fragment, adapter lang.Adapter, opts assembly.Options) (*assembly.PreviewResult, error)
	Confirm(ctx context.Context, handle string) (*artifact.AssemblyRun, error)
	Cancel(handle string) error
	GetRun(ctx context.Context, id string) (*artifact.AssemblyRun, error)
	GetFiles(ctx context.Context, runID string) ([]artifact.GeneratedFile, error)
	ListRuns(ctx context.Context, limit int) ([]runstore.Summary, error)
}

type AssemblyHandler struct {
	engine Engine
}

func NewAssemblyHandler(engine Engine) *AssemblyHandler {
	return &AssemblyHandler{engine: engine}
}

// Run executes a durable run. A run that failed is still returned as a response;
// its status and error say what went wrong.
func (h *AssemblyHandler) Run(ctx context.Context, req *connect.Request[RunRequest]) (*connect.Response[RunResponse], error) {
	adapter, err := h.engine.Adapter(req.Msg.Stack)
	if err != nil {
		return nil, toError(err)
	}
	run, err := h.engine.Assemble(ctx, req.Msg.Fragments, adapter, req.Msg.Options)
	if run == nil && err != nil {
		return nil, toError(err)
	}
	return connect.NewResponse(&RunResponse{Run: run}), nil
}

func (h *AssemblyHandler) Preview(ctx context.Context, req *connect.Request[RunRequest]) (*connect.Response[PreviewResponse], error) {
	adapter, err := h.engine.Adapter(req.Msg.Stack)
	if err != nil {
		return nil, toError(err)
	}
	res, err := h.engine.Preview(ctx, req.Msg.Fragments, adapter, req.Msg.Options)
	if res == nil && err != nil {
		return nil, toError(err)
	}
	return connect.NewResponse(&PreviewResponse{Result: res}), nil
}

func (h *AssemblyHandler) Confirm(ctx context.Context, req *connect.Request[ConfirmRequest]) (*connect.Response[RunResponse], error) {
	handle := strings.TrimSpace(req.Msg.ScratchHandle)
	if handle == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("scratch_handle is required"))
	}
	run, err := h.engine.Confirm(ctx, handle)
	if err != nil {
		return nil, toError(err)
	}
	return connect.NewResponse(&RunResponse{Run: run}), nil
}

func (h *AssemblyHandler) Cancel(_ context.Context, req *connect.Request[CancelRequest]) (*connect.Response[CancelResponse], error) {
	handle := strings.TrimSpace(req.Msg.ScratchHandle)
	if handle == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("scratch_handle is required"))
	}
	if err := h.engine.Cancel(handle); err != nil {
		return nil, toError(err)
	}
	return connect.NewResponse(&CancelResponse{Canceled: true}), nil
}

func (h *AssemblyHandler) GetRun(ctx context.Context, req *connect.Request[GetRunRequest]) (*connect.Response[RunResponse], error) {
	runID := strings.TrimSpace(req.Msg.RunID)
	if runID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("run_id is required"))
	}
	run, err := h.engine.GetRun(ctx, runID)
	if err != nil {
		return nil, toError(err)
	}
	return connect.NewResponse(&RunResponse{Run: run}), nil
}

func (h *AssemblyHandler) GetFiles(ctx context.Context, req *connect.Request[GetRunRequest]) (*connect.Response[GetFilesResponse], error) {
	runID := strings.TrimSpace(req.Msg.RunID)
	if runID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("run_id is required"))
	}
	files, err := h.engine.GetFiles(ctx, runID)
	if err != nil {
		return nil, toError(err)
	}
	return connect.NewResponse(&GetFilesResponse{RunID: runID, Files: files}), nil
}

func (h *AssemblyHandler) ListRuns(ctx context.Context, req *connect.Request[ListRunsRequest]) (*connect.Response[ListRunsResponse], error) {
	runs, err := h.engine.ListRuns(ctx, req.Msg.Limit)
	if err != nil {
		return nil, toError(err)
	}
	return connect.NewResponse(&ListRunsResponse{Runs: runs}), nil
}

// Routes mounts every procedure on one handler, the way generated Connect code does.
func (h *AssemblyHandler) Routes(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(ProcedureRun, connect.NewUnaryHandler(ProcedureRun, h.Run, opts...))
	mux.Handle(ProcedurePreview, connect.NewUnaryHandler(ProcedurePreview, h.Preview, opts...))
	mux.Handle(ProcedureConfirm, connect.NewUnaryHandler(ProcedureConfirm, h.Confirm, opts...))
	mux.Handle(ProcedureCancel, connect.NewUnaryHandler(ProcedureCancel, h.Cancel, opts...))
	mux.Handle(ProcedureGetRun, connect.NewUnaryHandler(ProcedureGetRun, h.GetRun, opts...))
	mux.Handle(ProcedureGetFiles, connect.NewUnaryHandler(ProcedureGetFiles, h.GetFiles, opts...))
	mux.Handle(ProcedureListRuns, connect.NewUnaryHandler(ProcedureListRuns, h.ListRuns, opts...))
	return "/" + ServiceName + "/", mux
}

func toError(err error) error {
	switch {
	case errors.Is(err, lang.ErrUnknownStack), errors.Is(err, assembly.ErrInvalidRunID), errors.Is(err, runstore.ErrInvalidID):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, runstore.ErrNotFound), errors.Is(err, storage.ErrNotFound), errors.Is(err, assembly.ErrUnknownHandle):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, assembly.ErrNotReady):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, assembly.ErrRunExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, fmt.Errorf("assembly service failed: %w", err))
	}
}
