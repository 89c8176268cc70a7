package search

import "errors"

// ErrNotFound indicates a single-resource lookup matched no rows.
var ErrNotFound = errors.New("resource not found")

// ValidationError is a client-caused error detected before any query runs.
// Its message is safe to return verbatim in a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
