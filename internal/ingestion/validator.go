package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError is a client-caused ingestion failure. Its message is safe
// to return verbatim in a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// validBundleTypes are the bundle types accepted by the webhook. Entries
// are only checked for shallow structure; transactional semantics are not
// implemented here.
var validBundleTypes = map[string]bool{
	"transaction": true,
	"batch":       true,
	"collection":  true,
	"message":     true,
	"document":    true,
}

// BundleInfo summarizes a structurally valid inbound bundle.
type BundleInfo struct {
	Type       string
	EntryCount int
	Raw        map[string]interface{}
}

// ValidateBundle parses a webhook body and checks the shallow structural
// invariants: resourceType Bundle, a supported type, and at least one entry
// each carrying a resource.
func ValidateBundle(body []byte) (*BundleInfo, error) {
	if len(body) == 0 {
		return nil, validationErrorf("Request body is empty")
	}

	var bundle map[string]interface{}
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, validationErrorf("Invalid JSON: %v", err)
	}

	if rt, _ := bundle["resourceType"].(string); rt != "Bundle" {
		return nil, validationErrorf("Expected resourceType 'Bundle', got '%v'", bundle["resourceType"])
	}

	bundleType, _ := bundle["type"].(string)
	if !validBundleTypes[bundleType] {
		return nil, validationErrorf("Unsupported bundle type: %s", bundleType)
	}

	entries, _ := bundle["entry"].([]interface{})
	if len(entries) == 0 {
		return nil, validationErrorf("Bundle contains no entries")
	}
	for i, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			return nil, validationErrorf("Entry %d is not an object", i)
		}
		if _, ok := entry["resource"]; !ok {
			return nil, validationErrorf("Entry %d missing 'resource' field", i)
		}
	}

	return &BundleInfo{Type: bundleType, EntryCount: len(entries), Raw: bundle}, nil
}

// ValidateNDJSON checks bulk-upload content: every non-blank line must be a
// JSON object carrying a resourceType. The first bad line aborts the whole
// file with a line-numbered error.
func ValidateNDJSON(content string) ([]map[string]interface{}, error) {
	var records []map[string]interface{}

	for i, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, validationErrorf("Invalid JSON on line %d: %v", i+1, err)
		}
		if record == nil {
			return nil, validationErrorf("Line %d is not a JSON object", i+1)
		}
		if _, ok := record["resourceType"]; !ok {
			return nil, validationErrorf("Missing 'resourceType' on line %d", i+1)
		}

		records = append(records, record)
	}

	return records, nil
}
