package api

import (
	"net/http"

	"github.com/Beni-V/text2sql/internal/auth"
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireService(deps, w, r) || !requireRole(w, r, auth.RoleQuery) {
		return
	}
	snapshot, err := deps.Service.Schema(r.Context())
	if err != nil {
		writeServiceError(deps, w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func handleSchemaRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireService(deps, w, r) || !requireRole(w, r, auth.RoleAdmin) {
		return
	}
	result, err := deps.Service.RefreshSchema(r.Context())
	if err != nil {
		writeServiceError(deps, w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "refreshed",
		"fingerprint": result.Fingerprint,
		"tables":      result.Tables,
		"index":       result.Index,
	})
}
