package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
)

const maxQueryValue = 320

// QueryString returns the trimmed, length-bounded query value for key.
func QueryString(r *http.Request, key string) string {
	return SanitizeString(r.URL.Query().Get(key), maxQueryValue)
}

// RequireQuery returns the query value for key or a validation error carrying
// message when it is empty.
func RequireQuery(r *http.Request, key, message string) (string, error) {
	value := QueryString(r, key)
	if value == "" {
		if strings.TrimSpace(message) == "" {
			message = key + " is required"
		}
		return "", pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
