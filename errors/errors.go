package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrForbidden covers every ACL or role violation. Never retried.
	ErrForbidden = fmt.Errorf("forbidden")

	// ErrNotAParticipant is returned when a user acts on a conversation
	// they do not belong to.
	ErrNotAParticipant = fmt.Errorf("user is not a participant in this conversation")

	// ErrEmptyContent is returned when a message body is blank after trimming.
	ErrEmptyContent = fmt.Errorf("message content is empty")

	// ErrInsufficientMembers is returned when a group conversation is created
	// without any member besides the creator.
	ErrInsufficientMembers = fmt.Errorf("a group conversation needs at least one other member")

	// ErrDirectoryUnavailable signals a profile directory lookup failure.
	// Safe to retry with backoff. ACL consumers must fail closed on it.
	ErrDirectoryUnavailable = fmt.Errorf("profile directory unavailable")

	// ErrDuplicateConversation signals a lost race on the direct-pair
	// uniqueness key. Resolved internally by re-fetching the winning row,
	// never surfaced to callers.
	ErrDuplicateConversation = fmt.Errorf("direct conversation already exists")

	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password. Deliberately indistinguishable to prevent enumeration.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// ErrInvalidPassword is returned when a registration password fails
	// the complexity rules.
	ErrInvalidPassword = fmt.Errorf("password does not meet complexity requirements")

	// ErrUserAlreadyExists is returned when a registration email is taken.
	ErrUserAlreadyExists = fmt.Errorf("user already exists")

	ErrTokenGeneration = fmt.Errorf("token generation failed")

	ErrNotFound    = fmt.Errorf("not found")
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)

// MapToHTTPStatus translates domain errors into HTTP status codes
// at the web boundary. Unknown errors stay internal.
func MapToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAParticipant):
		return http.StatusForbidden
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrInsufficientMembers),
		errors.Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDirectoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
