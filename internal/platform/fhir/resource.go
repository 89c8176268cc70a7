package fhir

// Resource is a raw FHIR resource as stored in the warehouse document
// column: one JSON object per row, queried via path accessors rather than
// normalized relational columns.
type Resource = map[string]interface{}

// OperationOutcome severity levels per FHIR R4.
const (
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes used by the platform.
const (
	IssueTypeInvalid    = "invalid"
	IssueTypeNotFound   = "not-found"
	IssueTypeProcessing = "processing"
	IssueTypeSecurity   = "security"
)

// OperationOutcome is the standard FHIR error-response resource.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// NewOperationOutcome creates an OperationOutcome with a single issue.
func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{Severity: severity, Code: code, Diagnostics: diagnostics},
		},
	}
}

// OutcomeForStatus maps an HTTP status code to an error OperationOutcome.
// Codes >= 500 map to issue type "processing", 404 to "not-found", and
// everything else (the 400 class) to "invalid".
func OutcomeForStatus(status int, diagnostics string) *OperationOutcome {
	code := IssueTypeInvalid
	switch {
	case status >= 500:
		code = IssueTypeProcessing
	case status == 404:
		code = IssueTypeNotFound
	}
	return NewOperationOutcome(IssueSeverityError, code, diagnostics)
}
