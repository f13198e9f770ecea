package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/groundplane/groundplane/pkg/tenant"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// MapStoreError translates a tenant store error into an HTTP status code and
// a human-readable message. Unknown errors map to 500 without leaking the
// underlying cause.
func MapStoreError(err error) (int, string) {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		return http.StatusNotFound, "Tenant not found"
	case errors.Is(err, tenant.ErrDuplicateTenant):
		return http.StatusConflict, "Tenant already exists"
	case errors.Is(err, tenant.ErrInvalidTenant):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// HandleStoreError writes the RFC 7807 problem response for a tenant store
// error.
func HandleStoreError(w http.ResponseWriter, err error) {
	status, msg := MapStoreError(err)
	WriteProblem(w, status, http.StatusText(status), msg)
}
