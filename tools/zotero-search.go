package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
)

type ZoteroSearchQuery struct {
	Query      string   `json:"query,omitempty"`      // Quick search text (searches title, creator, year)
	Tags       []string `json:"tags,omitempty"`       // Filter by tags
	ItemTypes  []string `json:"item_types,omitempty"` // Filter by type (e.g., "book", "-attachment")
	Collection string   `json:"collection,omitempty"` // Filter by collection key (optional)
	Limit      int      `json:"limit,omitempty"`      // Max results (default 25)
	Sort       string   `json:"sort,omitempty"`       // Sort field (default "dateModified")
	AllFiles   bool     `json:"all_files,omitempty"`  // Keep non-PDF attachments and items without files
}

type ZoteroSearchResponse struct {
	Items []ZoteroItemResult `json:"items"`
	Count int                `json:"count"`
}

type ZoteroItemResult struct {
	Key         string           `json:"key"`
	Title       string           `json:"title"`
	Creators    []string         `json:"creators,omitempty"`
	ItemType    string           `json:"item_type"`
	Date        string           `json:"date,omitempty"`
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
	// DocumentIDs maps attachment keys already extracted to their document ID.
	DocumentIDs map[string]string `json:"document_ids,omitempty"`
}

type AttachmentInfo struct {
	Key         string `json:"key"` // Use this as zotero_id in pdf-extract-text
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"` // MIME type (e.g., "application/pdf")
	LinkMode    string `json:"link_mode"`    // imported_file, imported_url, linked_file, linked_url
}

// ZoteroCredentials are the Zotero settings from the server configuration.
type ZoteroCredentials struct {
	APIKey    string
	LibraryID string
}

func ZoteroSearchTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ZoteroSearchQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "zotero-search",
		Description: "Search for items in a Zotero library and retrieve their PDF attachments. Use an attachment key as zotero_id with pdf-extract-text. Attachments that were already extracted list their document ID.",
		InputSchema: inputschema,
	}
}

func ZoteroSearchToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ZoteroSearchQuery, creds ZoteroCredentials, store storage.Store, log logger.Logger) (*mcp.CallToolResult, *ZoteroSearchResponse, error) {
	log.Info("zotero-search tool called")

	if creds.APIKey == "" {
		return nil, nil, fmt.Errorf("ZOTERO_API_KEY environment variable not set")
	}
	if creds.LibraryID == "" {
		return nil, nil, fmt.Errorf("ZOTERO_LIBRARY_ID environment variable not set")
	}

	// Convert tool query parameters to operations parameters
	searchParams := operations.ZoteroSearchParams{
		Query:      query.Query,
		Tags:       query.Tags,
		ItemTypes:  query.ItemTypes,
		Collection: query.Collection,
		Limit:      query.Limit,
		Sort:       query.Sort,
		PDFOnly:    !query.AllFiles,
	}

	items, err := operations.SearchZotero(ctx, creds.APIKey, creds.LibraryID, searchParams, log)
	if err != nil {
		return nil, nil, err
	}

	extracted, err := extractedZoteroAttachments(ctx, store)
	if err != nil {
		log.Error("Failed to list extracted documents: %v", err)
		// Don't fail the whole request, just skip the enrichment
		extracted = map[string]string{}
	}

	return nil, annotateZoteroItems(items, extracted), nil
}

// extractedZoteroAttachments maps Zotero attachment keys to the ID of the
// document extracted from them.
func extractedZoteroAttachments(ctx context.Context, store storage.Store) (map[string]string, error) {
	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string)
	for _, d := range docs {
		if d.Source.ZoteroID != "" {
			keys[d.Source.ZoteroID] = d.DocumentID
		}
	}
	return keys, nil
}

func annotateZoteroItems(items []operations.ZoteroItemResult, extracted map[string]string) *ZoteroSearchResponse {
	results := make([]ZoteroItemResult, len(items))
	for i, item := range items {
		results[i] = ZoteroItemResult{
			Key:      item.Key,
			Title:    item.Title,
			Creators: item.Creators,
			ItemType: item.ItemType,
			Date:     item.Date,
		}
		for _, att := range item.Attachments {
			results[i].Attachments = append(results[i].Attachments, AttachmentInfo{
				Key:         att.Key,
				Filename:    att.Filename,
				ContentType: att.ContentType,
				LinkMode:    att.LinkMode,
			})
			if docID, ok := extracted[att.Key]; ok {
				if results[i].DocumentIDs == nil {
					results[i].DocumentIDs = make(map[string]string)
				}
				results[i].DocumentIDs[att.Key] = docID
			}
		}
	}
	return &ZoteroSearchResponse{Items: results, Count: len(results)}
}
