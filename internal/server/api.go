// Package server exposes the assembly engine over Connect (JSON codec), streams
// run events over a websocket and serves the run trace for debugging.
package server

import (
	"assemblyline/internal/artifact"
	"assemblyline/internal/assembly"
	"assemblyline/internal/runstore"
)

const ServiceName = "assembly.v1.AssemblyService"

const (
	ProcedureRun      = "/" + ServiceName + "/Run"
	ProcedurePreview  = "/" + ServiceName + "/Preview"
	ProcedureConfirm  = "/" + ServiceName + "/Confirm"
	ProcedureCancel   = "/" + ServiceName + "/Cancel"
	ProcedureGetRun   = "/" + ServiceName + "/GetRun"
	ProcedureGetFiles = "/" + ServiceName + "/GetFiles"
	ProcedureListRuns = "/" + ServiceName + "/ListRuns"
)

type RunRequest struct {
	Stack     string              `json:"stack,omitempty"`
	Fragments []artifact.Fragment `json:"fragments"`
	Options   assembly.Options    `json:"options"`
}

type RunResponse struct {
	Run *artifact.AssemblyRun `json:"run"`
}

type PreviewResponse struct {
	Result *assembly.PreviewResult `json:"result"`
}

type ConfirmRequest struct {
	ScratchHandle string `json:"scratch_handle"`
}

type CancelRequest struct {
	ScratchHandle string `json:"scratch_handle"`
}

type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

type GetRunRequest struct {
	RunID string `json:"run_id"`
}

type GetFilesResponse struct {
	RunID string                   `json:"run_id"`
	Files []artifact.GeneratedFile `json:"files"`
}

type ListRunsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListRunsResponse struct {
	Runs []runstore.Summary `json:"runs"`
}
