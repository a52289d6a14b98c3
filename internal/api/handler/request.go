package handler

import (
	"encoding/json"
	"net/http"

	"guideboard/internal/api/middleware"
	"guideboard/internal/common"
	"guideboard/internal/domain/policy"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

func principal(w http.ResponseWriter, r *http.Request) (policy.Principal, bool) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
	}
	return p, ok
}
