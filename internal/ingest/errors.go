package ingest

import "fmt"

// ValidationError rejects a payload before any record is built.
// Field is empty when the body as a whole is unusable.
type ValidationError struct {
	Field   string
	Missing bool
	Reason  string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field == "":
		return e.Reason
	case e.Missing:
		return "Missing required field: " + e.Field
	default:
		return fmt.Sprintf("Invalid field: %s (%s)", e.Field, e.Reason)
	}
}

func missing(field string) error {
	return &ValidationError{Field: field, Missing: true}
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
