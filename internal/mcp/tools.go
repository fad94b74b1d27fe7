package mcp

import "github.com/mark3labs/mcp-go/mcp"

var uploadToolDef = mcp.NewTool("gallery_upload",
	mcp.WithDescription("Submit a Python source file to the flowchart service and replace the gallery with the returned diagrams. Give either path or filename+source."),
	mcp.WithString("path",
		mcp.Description("Local path of the source file to submit"),
	),
	mcp.WithString("filename",
		mcp.Description("File name to submit when passing source inline"),
	),
	mcp.WithString("source",
		mcp.Description("Inline source text (requires filename)"),
	),
	mcp.WithString("save_path",
		mcp.Description("Also write the returned archive here (.zip)"),
	),
)

var groupsToolDef = mcp.NewTool("gallery_groups",
	mcp.WithDescription("Describe the current gallery: groups in archive order, their images, and which group is selected."),
	mcp.WithBoolean("markdown",
		mcp.Description("Return a markdown outline instead of JSON"),
	),
)

var selectToolDef = mcp.NewTool("gallery_select",
	mcp.WithDescription("Select the displayed gallery group. Unknown groups leave the selection unchanged."),
	mcp.WithString("group",
		mcp.Required(),
		mcp.Description("Group key to select"),
	),
)

var historyToolDef = mcp.NewTool("gallery_history",
	mcp.WithDescription("List stored uploads, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of uploads to return (default 20, max 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of uploads to skip"),
	),
)

var showToolDef = mcp.NewTool("gallery_show",
	mcp.WithDescription("Load a stored upload back into the gallery."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Upload ID"),
	),
)

var downloadToolDef = mcp.NewTool("gallery_download",
	mcp.WithDescription("Write a stored archive to disk exactly as it was received."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Upload ID"),
	),
	mcp.WithString("path",
		mcp.Description("Destination .zip path (default ~/.flowgen/downloads/)"),
	),
)

var purgeToolDef = mcp.NewTool("gallery_purge",
	mcp.WithDescription("Permanently delete stored uploads by age and/or count."),
	mcp.WithString("older_than",
		mcp.Description("Delete uploads older than this age, e.g. 7d, 2w, 36h"),
	),
	mcp.WithNumber("keep",
		mcp.Description("Keep at most this many newest uploads"),
	),
)

var previewToolDef = mcp.NewTool("preview_render",
	mcp.WithDescription("Render a flowchart image for a snippet of Python source. Returns a PNG image or the service's diagnostic."),
	mcp.WithString("code",
		mcp.Required(),
		mcp.Description("Python source to render"),
	),
)
