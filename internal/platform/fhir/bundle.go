package fhir

// Bundle represents a FHIR Bundle resource. Only the fields produced by the
// search endpoints are modeled; Total is a plain int because a searchset
// always carries one.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        int           `json:"total"`
	Entry        []BundleEntry `json:"entry"`
}

type BundleEntry struct {
	Resource Resource `json:"resource"`
}

// NewSearchBundle wraps a page of resources into a searchset Bundle,
// preserving input order. total is the full match count for the underlying
// filters, independent of the page slice.
func NewSearchBundle(total int, resources []Resource) *Bundle {
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		entries[i] = BundleEntry{Resource: r}
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        total,
		Entry:        entries,
	}
}
