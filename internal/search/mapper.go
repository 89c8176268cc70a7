package search

import (
	"encoding/json"
	"fmt"

	"github.com/healthtech/platform/internal/platform/fhir"
)

// DecodeDocument converts a stored document value into a resource object.
// The warehouse driver may hand back the column as raw JSON text or as an
// already-parsed object; decoding is idempotent across both. Malformed
// stored JSON is a data integrity failure, never silently dropped.
func DecodeDocument(v interface{}) (fhir.Resource, error) {
	switch doc := v.(type) {
	case map[string]interface{}:
		return doc, nil
	case []byte:
		return unmarshalDocument(doc)
	case json.RawMessage:
		return unmarshalDocument(doc)
	case string:
		return unmarshalDocument([]byte(doc))
	case nil:
		return nil, fmt.Errorf("stored document is null")
	default:
		return nil, fmt.Errorf("stored document has unsupported type %T", v)
	}
}

func unmarshalDocument(b []byte) (fhir.Resource, error) {
	var r fhir.Resource
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	return r, nil
}

// MapDocuments decodes the document column of each page row, preserving row
// order.
func MapDocuments(rows []Row) ([]fhir.Resource, error) {
	resources := make([]fhir.Resource, 0, len(rows))
	for i, row := range rows {
		r, err := DecodeDocument(row[DocColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		resources = append(resources, r)
	}
	return resources, nil
}
