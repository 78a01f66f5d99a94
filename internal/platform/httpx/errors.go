// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/donorhub/donorhub/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses. Anything unclassified
// becomes a generic failure notice so internal detail never leaks.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Request Failed", shared.UserSafeMessage(err))
	}
}
