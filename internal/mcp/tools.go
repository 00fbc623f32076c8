package mcp

import "github.com/mark3labs/mcp-go/mcp"

var addToolDef = mcp.NewTool("watch_add",
	mcp.WithDescription("Track a URL. The first call stores its current content; later calls compare against the stored snapshot and report a line diff."),
	mcp.WithString("url", mcp.Required(), mcp.Description("URL to fetch and track")),
)

var removeToolDef = mcp.NewTool("watch_remove",
	mcp.WithDescription("Stop tracking a URL and delete its snapshot. Removing an unknown URL succeeds."),
	mcp.WithString("url", mcp.Required(), mcp.Description("Tracked URL")),
	mcp.WithBoolean("keep_history", mcp.Description("Keep the URL's check history")),
)

var listToolDef = mcp.NewTool("watch_list",
	mcp.WithDescription("List tracked URLs in registration order with their most recent check."),
)

var runToolDef = mcp.NewTool("watch_run",
	mcp.WithDescription("Check every tracked URL once. Per-URL failures are reported in the results and do not stop the run."),
	mcp.WithBoolean("notify", mcp.Description("Mail changed results if SMTP is configured")),
	mcp.WithBoolean("digest", mcp.Description("Send one summary mail instead of one per change (implies notify)")),
)

var reconcileToolDef = mcp.NewTool("watch_reconcile",
	mcp.WithDescription("Delete snapshots no tracked URL refers to and drop tracked URLs whose snapshot is missing. Never fetches."),
)

var historyToolDef = mcp.NewTool("watch_history",
	mcp.WithDescription("List recorded checks, newest first."),
	mcp.WithString("url", mcp.Description("Only checks of this URL")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var exportToolDef = mcp.NewTool("watch_export",
	mcp.WithDescription("Write the tracked URLs to a YAML watchlist file."),
	mcp.WithString("path", mcp.Description("Destination .yaml path; defaults to the exports directory")),
)

var importToolDef = mcp.NewTool("watch_import",
	mcp.WithDescription("Track every URL of a YAML watchlist file that is not tracked yet."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Watchlist .yaml path")),
)
