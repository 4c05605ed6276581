package api

import (
	"net/http"
	"strings"

	"github.com/Beni-V/text2sql/internal/auth"
	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/query"
	"github.com/Beni-V/text2sql/internal/query/sqldb"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns      []string       `json:"columns"`
	Rows         [][]any        `json:"rows"`
	AffectedRows int64          `json:"affected_rows"`
	Truncated    bool           `json:"truncated"`
	Stats        map[string]any `json:"stats"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireService(deps, w, r) || !requireRole(w, r, auth.RoleQuery) {
		return
	}

	var request queryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !query.IsReadOnly(request.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}
	if request.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must not be negative", false, nil)
		return
	}

	result, err := deps.Service.Execute(r.Context(), request.SQL)
	if err != nil {
		if errs.Is(err, errs.KindQueryExecution) {
			extra := map[string]any{"details": errs.Message(err)}
			if code := sqldb.ErrorCode(err); code != "" {
				extra["sql_state"] = code
			}
			writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, extra)
			return
		}
		writeServiceError(deps, w, r, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, toQueryResponse(result, request.RowLimit))
}

// toQueryResponse lays rows out positionally in column order.
func toQueryResponse(result query.Result, rowLimit int) queryResponse {
	rows := result.Rows
	truncated := result.Truncated
	if rowLimit > 0 && len(rows) > rowLimit {
		rows = rows[:rowLimit]
		truncated = true
	}
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		values := make([]any, len(columns))
		for i, column := range columns {
			values[i] = row[column]
		}
		out = append(out, values)
	}
	return queryResponse{
		Columns:      columns,
		Rows:         out,
		AffectedRows: result.AffectedRows,
		Truncated:    truncated,
		Stats: map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
		},
	}
}
