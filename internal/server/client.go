package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote assembly service.
type Client struct {
	run      *connect.Client[RunRequest, RunResponse]
	preview  *connect.Client[RunRequest, PreviewResponse]
	confirm  *connect.Client[ConfirmRequest, RunResponse]
	cancel   *connect.Client[CancelRequest, CancelResponse]
	getRun   *connect.Client[GetRunRequest, RunResponse]
	getFiles *connect.Client[GetRunRequest, GetFilesResponse]
	listRuns *connect.Client[ListRunsRequest, ListRunsResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		run:      connect.NewClient[RunRequest, RunResponse](httpClient, baseURL+ProcedureRun, opts...),
		preview:  connect.NewClient[RunRequest, PreviewResponse](httpClient, baseURL+ProcedurePreview, opts...),
		confirm:  connect.NewClient[ConfirmRequest, RunResponse](httpClient, baseURL+ProcedureConfirm, opts...),
		cancel:   connect.NewClient[CancelRequest, CancelResponse](httpClient, baseURL+ProcedureCancel, opts...),
		getRun:   connect.NewClient[GetRunRequest, RunResponse](httpClient, baseURL+ProcedureGetRun, opts...),
		getFiles: connect.NewClient[GetRunRequest, GetFilesResponse](httpClient, baseURL+ProcedureGetFiles, opts...),
		listRuns: connect.NewClient[ListRunsRequest, ListRunsResponse](httpClient, baseURL+ProcedureListRuns, opts...),
	}
}

func (c *Client) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	return unary(ctx, c.run, req)
}

func (c *Client) Preview(ctx context.Context, req *RunRequest) (*PreviewResponse, error) {
	return unary(ctx, c.preview, req)
}

func (c *Client) Confirm(ctx context.Context, handle string) (*RunResponse, error) {
	return unary(ctx, c.confirm, &ConfirmRequest{ScratchHandle: handle})
}

func (c *Client) Cancel(ctx context.Context, handle string) (*CancelResponse, error) {
	return unary(ctx, c.cancel, &CancelRequest{ScratchHandle: handle})
}

func (c *Client) GetRun(ctx context.Context, runID string) (*RunResponse, error) {
	return unary(ctx, c.getRun, &GetRunRequest{RunID: runID})
}

func (c *Client) GetFiles(ctx context.Context, runID string) (*GetFilesResponse, error) {
	return unary(ctx, c.getFiles, &GetRunRequest{RunID: runID})
}

func (c *Client) ListRuns(ctx context.Context, limit int) (*ListRunsResponse, error) {
	return unary(ctx, c.listRuns, &ListRunsRequest{Limit: limit})
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
