package api

import (
	"errors"
	"fmt"
)

// AuthError indicates that the access token was rejected or has expired.
// It is returned when the server answers 401.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is a non-2xx response. Message carries the server's
// human-readable explanation when it sent one.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("unexpected status %d on %s %s", e.Status, e.Method, e.Path)
}

// UserMessage returns the server's message for err, or fallback.
func UserMessage(err error, fallback string) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	return fallback
}

// errorBody is the JSON error shape returned by the API.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
