package api

import (
	"net/http"

	"github.com/Beni-V/text2sql/internal/auth"
	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/observability"
	"github.com/Beni-V/text2sql/internal/text2sql"
)

type askRequest struct {
	Question string `json:"question"`
	Execute  *bool  `json:"execute"`
	OnlySQL  bool   `json:"only_sql"`
	Mode     string `json:"mode"`
}

// askErrorResponse keeps the partial answer (the generated query, the
// refinement trail) next to the uniform error fields.
type askErrorResponse struct {
	text2sql.AskResponse
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	TraceID   string `json:"trace_id"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireService(deps, w, r) || !requireRole(w, r, auth.RoleQuery) {
		return
	}

	var request askRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	resp, err := deps.Service.Ask(r.Context(), text2sql.AskRequest{
		Question: request.Question,
		Execute:  request.Execute,
		OnlySQL:  request.OnlySQL,
		Mode:     request.Mode,
	})
	if err != nil {
		status, retryable := statusFor(err)
		if resp.Error == "" {
			resp.Error = errs.Message(err)
		}
		writeJSON(w, status, askErrorResponse{
			AskResponse: resp,
			ErrorCode:   errorCode(err),
			Message:     resp.Error,
			Retryable:   retryable,
			TraceID:     observability.TraceIDFromContext(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
