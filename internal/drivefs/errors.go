package drivefs

// NotFoundError means the referenced Drive file does not exist or is not
// visible to the credential in use.
type NotFoundError struct {
	FileID string
}

func (e *NotFoundError) Error() string {
	return "file not found: " + e.FileID
}

// ValidationError means the caller's request was malformed before any
// upstream call was made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}
