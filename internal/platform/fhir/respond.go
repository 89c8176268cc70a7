package fhir

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// MIMEFHIRJSON is the content type for all API responses, success or failure.
const MIMEFHIRJSON = "application/fhir+json"

// noStore keeps intermediaries from caching clinical data.
const noStore = "no-cache, no-store, must-revalidate"

// OK writes a 200 response with the FHIR content type and no-store cache
// headers.
func OK(c echo.Context, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return Error(c, http.StatusInternalServerError, "Internal Server Error")
	}
	c.Response().Header().Set("Cache-Control", noStore)
	return c.Blob(http.StatusOK, MIMEFHIRJSON, b)
}

// Error writes an OperationOutcome response for the given status. The
// diagnostics message is returned verbatim, so callers must not pass
// internal error detail for 5xx statuses.
func Error(c echo.Context, status int, message string) error {
	b, _ := json.Marshal(OutcomeForStatus(status, message))
	return c.Blob(status, MIMEFHIRJSON, b)
}

// HTTPErrorHandler converts any error that escapes a handler (unknown
// routes included) into an OperationOutcome, so clients never need a
// separate error-body parser.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal Server Error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if status == http.StatusNotFound {
			// Unroutable paths are a client addressing mistake.
			status = http.StatusBadRequest
			message = "Unknown endpoint"
		} else if s, ok := he.Message.(string); ok && status < 500 {
			message = s
		}
	}
	_ = Error(c, status, message)
}
