package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/config"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/resources"
	"github.com/Epistemic-Technology/course-mcp/tools"
)

const Version = "v0.1.0"

// resourceTemplates are the course:// URIs served by the resource handler.
var resourceTemplates = []*mcp.ResourceTemplate{
	{
		URITemplate: "course://{documentId}",
		Name:        "course-document",
		Description: "Extracted PDF document summary with page, table, image and formula counts",
	},
	{
		URITemplate: "course://{documentId}/pages",
		Name:        "course-pages",
		Description: "Text of every page, in order, with the extraction method used",
	},
	{
		URITemplate: "course://{documentId}/pages/{pageIndex}",
		Name:        "course-page",
		Description: "Text of a specific page (0-indexed)",
	},
	{
		URITemplate: "course://{documentId}/tables",
		Name:        "course-tables",
		Description: "Tables detected in the document, as CSV and Markdown",
	},
	{
		URITemplate: "course://{documentId}/tables/{tableIndex}",
		Name:        "course-table",
		Description: "A specific table (0-indexed)",
	},
	{
		URITemplate: "course://{documentId}/images",
		Name:        "course-images",
		Description: "Images embedded in the document",
	},
	{
		URITemplate: "course://{documentId}/formulas",
		Name:        "course-formulas",
		Description: "Lines of the text layer containing LaTeX formulas",
	},
	{
		URITemplate: "course://{documentId}/course",
		Name:        "course-course",
		Description: "Generated course sections with summaries and study aids",
	},
}

func CreateServer(deps *operations.Deps, cfg config.Config, log logger.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "course-mcp", Version: Version}, nil)

	resourceHandler := resources.NewCourseResourceHandler(deps.Store)
	extractDefaults := ExtractOptions(cfg)
	zoteroCreds := tools.ZoteroCredentials{APIKey: cfg.ZoteroAPIKey, LibraryID: cfg.ZoteroLibraryID}

	// Register tools with their dependencies
	mcp.AddTool(server, tools.PDFExtractTextTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.PDFExtractTextQuery) (*mcp.CallToolResult, *tools.PDFExtractTextResponse, error) {
		return tools.PDFExtractTextToolHandler(ctx, req, query, deps, extractDefaults, log)
	})

	mcp.AddTool(server, tools.CourseGenerateTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.CourseGenerateQuery) (*mcp.CallToolResult, *tools.CourseGenerateResponse, error) {
		return tools.CourseGenerateToolHandler(ctx, req, query, deps, log)
	})

	mcp.AddTool(server, tools.QuizCheckTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.QuizCheckQuery) (*mcp.CallToolResult, *operations.QuizResult, error) {
		return tools.QuizCheckToolHandler(ctx, req, query, deps.Store, log)
	})

	mcp.AddTool(server, tools.DocumentListTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.DocumentListQuery) (*mcp.CallToolResult, *tools.DocumentListResponse, error) {
		return tools.DocumentListToolHandler(ctx, req, query, deps.Store, log)
	})

	mcp.AddTool(server, tools.ZoteroSearchTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ZoteroSearchQuery) (*mcp.CallToolResult, *tools.ZoteroSearchResponse, error) {
		return tools.ZoteroSearchToolHandler(ctx, req, query, zoteroCreds, deps.Store, log)
	})

	for _, tmpl := range resourceTemplates {
		t := *tmpl
		t.MIMEType = "application/json"
		server.AddResourceTemplate(&t, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return resourceHandler.ReadResource(ctx, req.Params.URI)
		})
	}

	return server
}
