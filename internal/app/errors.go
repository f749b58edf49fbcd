package app

import "fmt"

// DomainError is a failure that already knows its wire form. The service
// layer raises them for session problems (401 UNAUTHORIZED), verifier
// denials (403 FORBIDDEN) and bad request bodies (400 INVALID_BODY);
// mapError passes them through untouched while gateway error types get
// translated. Details is optional caller-facing context.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
