package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryStatus is returned when the directory answers with a non-2xx status.
	// The response body is never interpreted as membership data.
	ErrDirectoryStatus = errors.New("directory returned non-success status")

	// ErrDirectoryResponse is returned when a successful directory response cannot be decoded
	// or lacks the membership list.
	ErrDirectoryResponse = errors.New("malformed directory response")

	// ErrDirectoryUnavailable is returned for transport level failures (DNS, connection reset, TLS).
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrMissingAccessToken is returned when a membership lookup is requested without an access token.
	ErrMissingAccessToken = errors.New("no access token for directory lookup")

	// ErrNoResolver is returned when membership must be checked but no resolver is configured.
	ErrNoResolver = errors.New("no membership resolver configured")

	// ErrNoLoginIdentifier is returned when the principal has neither a secondary identifier nor an email
	// to look up in the directory.
	ErrNoLoginIdentifier = errors.New("principal has no login identifier")

	// ErrUserNotFound is returned when the directory has no entry for the principal.
	ErrUserNotFound = errors.New("user not found")

	// ErrMultipleUsersFound is returned when a directory query expected one user but found multiple.
	// This typically indicates a misconfigured LDAP filter or duplicate entries.
	ErrMultipleUsersFound = errors.New("multiple users found")

	// ErrNoProfile is returned when the sign-in decision is requested without a profile.
	ErrNoProfile = errors.New("no profile to evaluate")

	// ErrDecisionPanic is returned when the decision path panicked. The attempt is denied.
	ErrDecisionPanic = errors.New("sign-in decision panicked")
)

// StatusError describes a non-2xx directory response.
type StatusError struct {
	Code int
	// Body holds a bounded prefix of the response body for logging only.
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d: %s", ErrDirectoryStatus, e.Code, e.Body)
}

// Unwrap lets errors.Is match ErrDirectoryStatus.
func (e *StatusError) Unwrap() error {
	return ErrDirectoryStatus
}
