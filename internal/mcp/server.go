package mcp

import (
	"context"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/sitediff/internal/ops"
)

// tool binds a definition to the Handlers method serving it.
type tool struct {
	def    mcp.Tool
	handle func(*Handlers, context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// tools is every watch tool, in registration order.
var tools = []tool{
	{addToolDef, (*Handlers).HandleAdd},
	{removeToolDef, (*Handlers).HandleRemove},
	{listToolDef, (*Handlers).HandleList},
	{runToolDef, (*Handlers).HandleRun},
	{reconcileToolDef, (*Handlers).HandleReconcile},
	{historyToolDef, (*Handlers).HandleHistory},
	{exportToolDef, (*Handlers).HandleExport},
	{importToolDef, (*Handlers).HandleImport},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.def.Name)
	}
	slices.Sort(names)
	return names
}

// ValidateDisabledTools returns the entries of names that match no tool.
func ValidateDisabledTools(names []string) []string {
	known := AllToolNames()
	unknown := []string{}
	for _, name := range names {
		if _, found := slices.BinarySearch(known, name); !found {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server exposing the watch tools, minus any listed
// in env.Config.DisabledTools.
func NewServer(env *ops.Env, version string) *server.MCPServer {
	s := server.NewMCPServer("sitediff", version, server.WithToolCapabilities(true))
	h := NewHandlers(env)
	for _, t := range tools {
		if slices.Contains(env.Config.DisabledTools, t.def.Name) {
			continue
		}
		handle := t.handle
		s.AddTool(t.def, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handle(h, ctx, req)
		})
	}
	return s
}

// Run serves the MCP server over stdio until stdin closes.
func Run(env *ops.Env, version string) error {
	return server.ServeStdio(NewServer(env, version))
}
