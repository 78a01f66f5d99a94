package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied indicates the actor lacks the required capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated occurs when no actor identity is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// UserSafeMessage returns a message suitable for end users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrPermissionDenied):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrUnauthenticated):
		return "Sign in to continue."
	default:
		return "Something went wrong. Please try again."
	}
}
