package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/Epistemic-Technology/zotero/zotero"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
)

const pdfContentType = "application/pdf"

// ZoteroSearchParams contains parameters for searching a Zotero library.
type ZoteroSearchParams struct {
	Query      string   // Quick search text (searches title, creator, year)
	Tags       []string // Filter by tags
	ItemTypes  []string // Filter by type (e.g., "book", "-attachment")
	Collection string   // Filter by collection key (optional)
	Limit      int      // Max results (default 25)
	Sort       string   // Sort field (default "dateModified")
	// PDFOnly drops non-PDF attachments and items left without any.
	PDFOnly bool
}

// ZoteroItemResult represents a Zotero item with its attachments.
type ZoteroItemResult struct {
	Key         string           `json:"key"`
	Title       string           `json:"title"`
	Creators    []string         `json:"creators,omitempty"`
	ItemType    string           `json:"item_type"`
	Date        string           `json:"date,omitempty"`
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
}

// AttachmentInfo contains information about a file attached to a Zotero item.
type AttachmentInfo struct {
	Key         string `json:"key"` // pass as zotero_id to pdf-extract-text
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	LinkMode    string `json:"link_mode"` // imported_file, imported_url, linked_file, linked_url
}

// SearchZotero searches a Zotero library and returns the matching items with
// their attachments, ready to be handed to the extractor.
func SearchZotero(ctx context.Context, apiKey, libraryID string, params ZoteroSearchParams, log logger.Logger) ([]ZoteroItemResult, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Zotero API key is required")
	}
	if libraryID == "" {
		return nil, fmt.Errorf("Zotero library ID is required")
	}

	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))

	queryParams := &zotero.QueryParams{
		Q:        params.Query,
		QMode:    "titleCreatorYear",
		Tag:      params.Tags,
		ItemType: params.ItemTypes,
		Limit:    params.Limit,
		Sort:     params.Sort,
	}
	if queryParams.Limit == 0 {
		queryParams.Limit = 25
	}
	if queryParams.Sort == "" {
		queryParams.Sort = "dateModified"
	}
	if len(queryParams.ItemType) == 0 {
		queryParams.ItemType = []string{"-attachment"}
	}

	var items []zotero.Item
	var err error
	if params.Collection != "" {
		items, err = client.CollectionItems(ctx, params.Collection, queryParams)
		if err != nil {
			log.Error("Failed to search collection %s: %v", params.Collection, err)
			return nil, fmt.Errorf("failed to search collection %s: %w", params.Collection, err)
		}
	} else {
		items, err = client.Items(ctx, queryParams)
		if err != nil {
			log.Error("Failed to search Zotero library: %v", err)
			return nil, fmt.Errorf("failed to search Zotero library: %w", err)
		}
	}

	log.Info("Found %d items in Zotero library", len(items))

	results := make([]ZoteroItemResult, 0, len(items))
	for _, item := range items {
		if item.Data.ItemType == "attachment" {
			continue
		}

		result := ZoteroItemResult{
			Key:      item.Key,
			Title:    item.Data.Title,
			ItemType: item.Data.ItemType,
			Date:     item.Data.DateAdded,
		}
		for _, creator := range item.Data.Creators {
			if name := creatorName(creator.Name, creator.FirstName, creator.LastName); name != "" {
				result.Creators = append(result.Creators, name)
			}
		}

		children, err := client.Children(ctx, item.Key, nil)
		if err != nil {
			log.Error("Failed to retrieve children for item %s: %v", item.Key, err)
			continue
		}

		for _, child := range children {
			if child.Data.ItemType != "attachment" {
				continue
			}
			att := AttachmentInfo{
				Key:         child.Key,
				Filename:    child.Data.Filename,
				ContentType: child.Data.ContentType,
				LinkMode:    child.Data.LinkMode,
			}
			if params.PDFOnly && !isPDFAttachment(att) {
				continue
			}
			result.Attachments = append(result.Attachments, att)
		}

		if params.PDFOnly && len(result.Attachments) == 0 {
			continue
		}
		results = append(results, result)
	}

	log.Info("Returning %d processed items", len(results))

	return results, nil
}

// creatorName prefers the single-field name and falls back to "First Last".
func creatorName(name, first, last string) string {
	if name != "" {
		return name
	}
	return strings.TrimSpace(first + " " + last)
}

// isPDFAttachment trusts the content type and falls back to the file
// extension for attachments stored without one.
func isPDFAttachment(att AttachmentInfo) bool {
	if att.ContentType != "" {
		return att.ContentType == pdfContentType
	}
	return strings.HasSuffix(strings.ToLower(att.Filename), ".pdf")
}
