package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	env *ops.Env
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(env *ops.Env) *Handlers {
	return &Handlers{env: env}
}

// URLRequest is the argument of watch_add.
type URLRequest struct {
	URL string `json:"url"`
}

// RemoveRequest is the argument of watch_remove.
type RemoveRequest struct {
	URL         string `json:"url"`
	KeepHistory bool   `json:"keep_history,omitempty"`
}

// RunRequest is the argument of watch_run.
type RunRequest struct {
	Notify bool `json:"notify,omitempty"`
	Digest bool `json:"digest,omitempty"`
}

// HistoryRequest is the argument of watch_history.
type HistoryRequest struct {
	URL    string `json:"url,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// PathRequest is the argument of watch_export and watch_import.
type PathRequest struct {
	Path string `json:"path,omitempty"`
}

// call decodes the tool arguments into In and runs op on them. Decode
// failures surface as INVALID_REQUEST; any other error becomes an error
// result rather than a protocol error.
func call[In any](req mcp.CallToolRequest, op func(In) (any, error)) (*mcp.CallToolResult, error) {
	in, err := decode[In](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	out, err := op(in)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleAdd handles watch_add.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return call(req, func(in URLRequest) (any, error) {
		return ops.Add(ctx, h.env, ops.AddInput{URL: in.URL})
	})
}

// HandleRemove handles watch_remove.
func (h *Handlers) HandleRemove(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return call(req, func(in RemoveRequest) (any, error) {
		return ops.Remove(h.env, ops.RemoveInput{URL: in.URL, KeepHistory: in.KeepHistory})
	})
}

// HandleList handles watch_list.
func (h *Handlers) HandleList(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return call(req, func(struct{}) (any, error) { return ops.List(h.env) })
}

// HandleRun handles watch_run. digest implies notify.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return call(req, func(in RunRequest) (any, error) {
		return ops.Run(ctx, h.env, ops.RunInput{Notify: in.Notify || in.Digest, Digest: in.Digest})
	})
}

// HandleReconcile handles watch_reconcile.
func (h *Handlers) HandleReconcile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return call(req, func(struct{}) (any, error) { return ops.Reconcile(h.env) })
}

// HandleHistory handles watch_history.
func (h *Handlers) HandleHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return call(req, func(in HistoryRequest) (any, error) {
		return ops.History(h.env, ops.HistoryInput{URL: in.URL, Limit: in.Limit, Offset: in.Offset})
	})
}

// HandleExport handles watch_export.
func (h *Handlers) HandleExport(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return call(req, func(in PathRequest) (any, error) {
		return ops.Export(h.env, ops.ExportInput{Path: in.Path})
	})
}

// HandleImport handles watch_import.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return call(req, func(in PathRequest) (any, error) {
		return ops.Import(ctx, h.env, ops.ImportInput{Path: in.Path})
	})
}

// errorResult renders err as an MCP error result. Details of internal errors
// are withheld.
func errorResult(err error) *mcp.CallToolResult {
	body := map[string]any{
		"code":    errors.ErrInternal,
		"message": "an internal error occurred",
		"status":  500,
	}
	if sErr, ok := errors.As(err); ok {
		body["code"], body["message"], body["status"] = sErr.Code, sErr.Message, sErr.Status
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			body["details"] = sErr.Details
		}
	}

	content, _ := json.Marshal(map[string]any{"error": body})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
