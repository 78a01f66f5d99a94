// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/donorhub/donorhub/internal/shared"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes a JSON body into target and validates its struct tags.
// Errors wrap shared.ErrValidation.
func DecodeJSON(r *http.Request, validate *validator.Validate, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: malformed body", shared.ErrValidation)
	}
	if validate == nil {
		return nil
	}
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}
