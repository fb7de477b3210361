package existence

import "github.com/JakeFAU/resource-existence/internal/catalog"

// IsComplete reports whether a parsed record still looks like a valid, live
// resource: it needs a description, a file with a type, and a discussion
// link. Author, category, rating and version come from the placeholder seed
// and are not inspected.
func IsComplete(r *catalog.Resource) bool {
	if r == nil {
		return false
	}
	if r.Description == "" {
		return false
	}
	if r.File == nil || r.File.Type == "" {
		return false
	}
	if _, ok := r.Link(catalog.LinkDiscussion); !ok {
		return false
	}
	return true
}
