package ingestion

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateBundle(t *testing.T) {
	body := []byte(`{
		"resourceType": "Bundle",
		"type": "transaction",
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "p1"}},
			{"resource": {"resourceType": "Encounter", "id": "e1"}}
		]
	}`)

	info, err := ValidateBundle(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Type != "transaction" {
		t.Errorf("type = %q, want transaction", info.Type)
	}
	if info.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", info.EntryCount)
	}
	if info.Raw["resourceType"] != "Bundle" {
		t.Errorf("raw bundle not retained: %v", info.Raw)
	}
}

func TestValidateBundle_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"empty body", "", "Request body is empty"},
		{"invalid json", "{not json", "Invalid JSON"},
		{"wrong resource type", `{"resourceType":"Patient","type":"transaction"}`, "Expected resourceType 'Bundle'"},
		{"missing resource type", `{"type":"transaction"}`, "Expected resourceType 'Bundle'"},
		{"unsupported type", `{"resourceType":"Bundle","type":"history","entry":[{}]}`, "Unsupported bundle type: history"},
		{"no entries", `{"resourceType":"Bundle","type":"batch"}`, "Bundle contains no entries"},
		{"empty entries", `{"resourceType":"Bundle","type":"batch","entry":[]}`, "Bundle contains no entries"},
		{"entry not object", `{"resourceType":"Bundle","type":"batch","entry":["x"]}`, "Entry 0 is not an object"},
		{"entry missing resource", `{"resourceType":"Bundle","type":"batch","entry":[{"fullUrl":"u"}]}`, "Entry 0 missing 'resource' field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateBundle([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if !strings.Contains(ve.Message, tt.wantMsg) {
				t.Errorf("message = %q, want substring %q", ve.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidateNDJSON(t *testing.T) {
	content := `{"resourceType":"Patient","id":"p1"}

{"resourceType":"Observation","id":"o1"}
`
	records, err := ValidateNDJSON(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["id"] != "p1" || records[1]["id"] != "o1" {
		t.Errorf("records out of order: %v", records)
	}
}

func TestValidateNDJSON_LineNumberedErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "bad json names the line",
			content: "{\"resourceType\":\"Patient\"}\nnot json",
			wantMsg: "Invalid JSON on line 2",
		},
		{
			name:    "missing resourceType names the line",
			content: "{\"resourceType\":\"Patient\"}\n{\"id\":\"x\"}",
			wantMsg: "Missing 'resourceType' on line 2",
		},
		{
			name:    "json null is not an object",
			content: "null",
			wantMsg: "Line 1 is not a JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateNDJSON(tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", err, tt.wantMsg)
			}
		})
	}
}
