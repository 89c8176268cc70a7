// Package search implements the FHIR search-query translation engine: it
// turns a bag of search parameters into a bounded, ordered, paginated pair
// of warehouse queries and turns the returned document rows back into a
// searchset Bundle.
package search

import (
	"fmt"
	"strings"
)

// MatchKind selects how a search parameter value is matched against the
// stored document.
type MatchKind int

const (
	// MatchExact matches the accessor value exactly. When the field spec
	// carries a RefType, the value is first qualified ("Patient/<id>") and
	// matched as a substring of the stored reference.
	MatchExact MatchKind = iota

	// MatchPrefix matches the leading characters of the accessor value.
	// Used for date parameters, where a date-only string must match the
	// start of a stored date-time.
	MatchPrefix

	// MatchMultiOr accepts a comma-separated value list and matches any of
	// the tokens (OR-of-equals). A single token degrades to MatchExact.
	MatchMultiOr
)

// FieldSpec maps one search parameter to a document path accessor.
type FieldSpec struct {
	Param   string
	Path    string // dot/array accessor into the document, e.g. "code.coding[0].code"
	Match   MatchKind
	RefType string // reference target type for MatchExact reference params
}

// Schema describes the searchable surface of one resource type: its
// warehouse table, its declared search parameters in emission order, and
// the document path used for the descending default sort.
type Schema struct {
	ResourceType string
	Table        string
	SortPath     string
	Fields       []FieldSpec
}

// Search schemas are process-wide, read-only constants; nothing mutates
// them after init.
var (
	Encounter = &Schema{
		ResourceType: "Encounter",
		Table:        "raw.encounters",
		SortPath:     "period.start",
		Fields: []FieldSpec{
			{Param: "patient", Path: "subject.reference", Match: MatchExact, RefType: "Patient"},
			{Param: "status", Path: "status", Match: MatchExact},
			{Param: "date", Path: "period.start", Match: MatchPrefix},
			{Param: "class", Path: "class.code", Match: MatchExact},
		},
	}

	Observation = &Schema{
		ResourceType: "Observation",
		Table:        "raw.observations",
		SortPath:     "effectiveDateTime",
		Fields: []FieldSpec{
			{Param: "patient", Path: "subject.reference", Match: MatchExact, RefType: "Patient"},
			{Param: "code", Path: "code.coding[0].code", Match: MatchMultiOr},
			{Param: "date", Path: "effectiveDateTime", Match: MatchPrefix},
			{Param: "category", Path: "category[0].coding[0].code", Match: MatchExact},
			{Param: "status", Path: "status", Match: MatchExact},
		},
	}

	// Patient has no search endpoint, only id lookup. The id sort keeps
	// any future paging deterministic.
	Patient = &Schema{
		ResourceType: "Patient",
		Table:        "raw.patients",
		SortPath:     "id",
	}
)

// Schemas lists every registered resource schema.
var Schemas = []*Schema{Encounter, Observation, Patient}

// SchemaFor returns the schema registered for a resource type.
func SchemaFor(resourceType string) (*Schema, bool) {
	for _, s := range Schemas {
		if s.ResourceType == resourceType {
			return s, true
		}
	}
	return nil, false
}

// DocColumn is the semi-structured column holding one full resource per row.
const DocColumn = "record_content"

// pathExpr compiles a dot/array accessor into a Postgres JSONB text
// extraction over the document column. Paths come only from the schema
// registry, never from request input.
func pathExpr(path string) string {
	var parts []string
	for _, seg := range strings.Split(path, ".") {
		for {
			i := strings.IndexByte(seg, '[')
			if i < 0 {
				if seg != "" {
					parts = append(parts, seg)
				}
				break
			}
			if i > 0 {
				parts = append(parts, seg[:i])
			}
			j := strings.IndexByte(seg, ']')
			if j < 0 {
				parts = append(parts, seg[i+1:])
				break
			}
			parts = append(parts, seg[i+1:j])
			seg = seg[j+1:]
		}
	}
	return fmt.Sprintf("%s #>> '{%s}'", DocColumn, strings.Join(parts, ","))
}

// sortExpr returns the ORDER BY expression for the schema's default sort.
func (s *Schema) sortExpr() string {
	return pathExpr(s.SortPath) + " DESC"
}
