package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/config"
	"github.com/Epistemic-Technology/course-mcp/internal/documents"
	"github.com/Epistemic-Technology/course-mcp/internal/extract"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/pdftest"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
)

func connect(t *testing.T, pages []string) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNoOpLogger()

	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	deps := &operations.Deps{
		Fetcher: &documents.Fetcher{MaxBytes: config.DefaultMaxUploadBytes, Log: log},
		Walker: extract.NewWalker(&pdftest.TextOpener{Pages: pages},
			extract.NewPageExtractor(nil, 0, t.TempDir(), log), extract.RecoverPages, log),
		Store:   store,
		TempDir: t.TempDir(),
		Log:     log,
	}

	srv := CreateServer(deps, config.Default(), log)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestServerListsToolsAndTemplates(t *testing.T) {
	session := connect(t, nil)
	ctx := context.Background()

	tools, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"pdf-extract-text", "course-generate", "quiz-check", "document-list", "zotero-search"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}

	templates, err := session.ListResourceTemplates(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(templates.ResourceTemplates) != len(resourceTemplates) {
		t.Errorf("got %d templates, want %d", len(templates.ResourceTemplates), len(resourceTemplates))
	}
	for _, tmpl := range templates.ResourceTemplates {
		if !strings.HasPrefix(tmpl.URITemplate, "course://") || tmpl.MIMEType != "application/json" {
			t.Errorf("unexpected template %+v", tmpl)
		}
	}
}

func TestServerExtractAndReadPage(t *testing.T) {
	session := connect(t, []string{"Premier paragraphe\nqui continue"})
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "pdf-extract-text",
		Arguments: map[string]any{"raw_data": pdftest.Minimal(1, "server")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}

	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.DocumentID == "" {
		t.Fatalf("structured content = %s (%v)", raw, err)
	}

	page, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "course://" + out.DocumentID + "/pages/0"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(page.Contents[0].Text, "Premier paragraphe qui continue") {
		t.Errorf("page resource = %s", page.Contents[0].Text)
	}
}

func TestExtractOptions(t *testing.T) {
	cfg := config.Default()
	cfg.OCREnabled = false
	opts := ExtractOptions(cfg)
	if opts.OCRFallback || !opts.LayoutAware {
		t.Errorf("ExtractOptions = %+v", opts)
	}
}
