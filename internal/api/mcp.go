package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/profview/profview/internal/preset"
	"github.com/profview/profview/internal/profiler"
	"github.com/profview/profview/internal/report"
	"github.com/profview/profview/internal/source"
	"github.com/profview/profview/internal/storage"
	"github.com/profview/profview/internal/viewcache"
)

// MCPReports abstracts cached report decoding for the MCP layer.
type MCPReports interface {
	Report(runID string) (*report.Map, error)
}

// MCPProfiler profiles a dataset synchronously for the profile_file tool.
type MCPProfiler interface {
	Profile(ctx context.Context, ds profiler.Dataset) (*report.Map, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Reports  MCPReports
	Profiler MCPProfiler     // optional; if nil, profile_file returns an error
	Presets  *preset.Library // optional; if nil, built-in views only
}

// NewMCPServer creates an MCP server with all profview tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Presets == nil {
		deps.Presets = preset.Builtin()
	}

	s := server.NewMCPServer(
		"profview",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("profview: dataset profiling runs and shaped report views."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_runs",
			mcp.WithDescription("List profiling runs, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		),
		mcpListRuns(deps),
	)

	s.AddTool(
		mcp.NewTool("get_run",
			mcp.WithDescription("Fetch one profiling run with its status and counts."),
			mcp.WithString("run_id", mcp.Description("Run identifier"), mcp.Required()),
		),
		mcpGetRun(deps),
	)

	s.AddTool(
		mcp.NewTool("get_report",
			mcp.WithDescription("Fetch a completed run's report shaped by format, omissions and preset."),
			mcp.WithString("run_id", mcp.Description("Run identifier"), mcp.Required()),
			mcp.WithString("format", mcp.Description("Output format: none, pretty, compact, serializable or flat (default serializable)")),
			mcp.WithArray("omit", mcp.Description("Dotted key paths to drop from the report")),
			mcp.WithString("preset", mcp.Description("Named view preset applied before explicit overrides")),
		),
		mcpGetReport(deps),
	)

	s.AddTool(
		mcp.NewTool("profile_file",
			mcp.WithDescription("Profile a local dataset file synchronously and return the shaped report."),
			mcp.WithString("path", mcp.Description("Path to a csv, tsv, jsonl or pdf file"), mcp.Required()),
			mcp.WithString("format", mcp.Description("Output format (default serializable)")),
			mcp.WithString("preset", mcp.Description("Named view preset")),
		),
		mcpProfileFile(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"runs://recent",
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 profiling runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentRuns(deps),
	)

	return s
}

func mcpListRuns(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		runs, err := deps.Store.ListRuns(limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list runs: %v", err)), nil
		}
		if runs == nil {
			runs = []storage.Run{}
		}

		b, err := json.Marshal(runs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetRun(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := req.RequireString("run_id")
		if err != nil {
			return mcpError("run_id is required"), nil
		}

		run, err := deps.Store.GetRun(runID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("run %s not found", runID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get run: %v", err)), nil
		}

		b, err := json.Marshal(run)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal run: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := req.RequireString("run_id")
		if err != nil {
			return mcpError("run_id is required"), nil
		}

		format, omit, err := ResolveView(deps.Presets, req.GetString("preset", ""), req.GetString("format", ""), req.GetStringSlice("omit", nil))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		rep, err := deps.Reports.Report(runID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("run %s not found", runID)), nil
		}
		if errors.Is(err, viewcache.ErrNotReady) {
			return mcpError(fmt.Sprintf("run %s has no report yet", runID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load report: %v", err)), nil
		}

		b, err := json.Marshal(report.Transform(rep, format, omit))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpProfileFile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Profiler == nil {
			return mcpError("profiling not available: no profiler configured"), nil
		}

		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}

		format, omit, err := ResolveView(deps.Presets, req.GetString("preset", ""), req.GetString("format", ""), nil)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		ds, err := source.Open(path)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to open %s: %v", path, err)), nil
		}
		defer ds.Close()

		rep, err := deps.Profiler.Profile(ctx, ds)
		if err != nil {
			return mcpError(fmt.Sprintf("profiling failed: %v", err)), nil
		}

		b, err := json.Marshal(report.Transform(rep, format, omit))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Store.ListRuns(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if runs == nil {
			runs = []storage.Run{}
		}

		b, err := json.Marshal(runs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
