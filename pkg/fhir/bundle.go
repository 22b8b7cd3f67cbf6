package fhir

// Bundle is the paginated collection envelope returned by a FHIR server.
// Resources stay raw: every nested field is resolved through fallback chains
// downstream, so typed decoding would only get in the way.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        int           `json:"total"`
	Link         []BundleLink  `json:"link"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry wraps one resource in a bundle.
type BundleEntry struct {
	FullURL  string         `json:"fullUrl"`
	Resource map[string]any `json:"resource"`
}

// BundleLink is a relation link embedded in a bundle.
type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// relationNext is the link relation that carries pagination continuation.
const relationNext = "next"

// Resources returns the bundle's resources in entry order, skipping entries
// without one.
func (b *Bundle) Resources() []map[string]any {
	resources := make([]map[string]any, 0, len(b.Entry))
	for _, entry := range b.Entry {
		if entry.Resource != nil {
			resources = append(resources, entry.Resource)
		}
	}
	return resources
}

// NextURL returns the continuation URL from the bundle's "next" relation
// link, or "" when the last page has been reached.
func (b *Bundle) NextURL() string {
	for _, link := range b.Link {
		if link.Relation == relationNext {
			return link.URL
		}
	}
	return ""
}
