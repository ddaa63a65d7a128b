package app

import (
	"errors"
	"fmt"
	"net/http"

	"tracker/api/internal/github"
)

var (
	ErrRemoteUnavailable  = github.ErrRemoteUnavailable
	ErrRemoteUnconfigured = github.ErrNotConfigured
	ErrPersistence        = errors.New("snapshot persistence failed")
	ErrMalformedIntent    = errors.New("malformed intent")
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// malformed reports a client intent that cannot be acted on.
func malformed(message string) *DomainError {
	err := domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
	err.Err = ErrMalformedIntent
	return err
}
