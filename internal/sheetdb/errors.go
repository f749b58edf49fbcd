package sheetdb

import "fmt"

// NotFoundError means a referenced sheet, column, or row does not exist.
// Never produced for empty result sets, only for failed lookups by name or
// key.
type NotFoundError struct {
	Kind string // "sheet", "column", or "row"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// ValidationError means the caller's request was malformed before any
// upstream call was made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}
