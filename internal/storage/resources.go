package storage

import (
	"fmt"

	"github.com/Epistemic-Technology/course-mcp/models"
)

// ResourceScheme is the URI scheme under which stored documents are exposed.
const ResourceScheme = "course"

// ResourcePaths lists the resource URIs available for an extracted document.
// Asset collections are only listed when the document has any.
func ResourcePaths(docID string, doc *models.ExtractedDocument, hasCourse bool) []string {
	base := fmt.Sprintf("%s://%s", ResourceScheme, docID)
	paths := []string{
		base,
		base + "/pages",
		base + "/pages/{pageIndex}",
	}

	if len(doc.Tables) > 0 {
		paths = append(paths, base+"/tables", base+"/tables/{tableIndex}")
	}
	if len(doc.Images) > 0 {
		paths = append(paths, base+"/images")
	}
	if len(doc.Formulas) > 0 {
		paths = append(paths, base+"/formulas")
	}
	if hasCourse {
		paths = append(paths, base+"/course")
	}

	return paths
}
