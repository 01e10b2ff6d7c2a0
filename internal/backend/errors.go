package backend

import (
	"errors"
	"fmt"
)

// AuthError indicates that authentication has failed or expired.
// It is returned when the backend answers 401.
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

// DuplicateError indicates a unique-constraint conflict, e.g. saving a
// profile with a username another user already holds.
type DuplicateError struct {
	Table   string
	Message string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate row in %s: %s", e.Table, e.Message)
}

// IsDuplicateError reports whether err (or any error in its chain) is a
// DuplicateError.
func IsDuplicateError(err error) bool {
	var dupErr *DuplicateError
	return errors.As(err, &dupErr)
}
