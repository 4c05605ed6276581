// Package query defines the boundary between the refinement loop and the
// database that runs generated SQL.
package query

import (
	"context"
	"strings"
	"time"
)

type Result struct {
	Columns      []string         `json:"column_names"`
	Rows         []map[string]any `json:"rows"`
	AffectedRows int64            `json:"affected_rows"`
	Truncated    bool             `json:"truncated,omitempty"`
	Duration     time.Duration    `json:"-"`
}

// ExecutionSeconds mirrors the execution_time field reported to clients.
func (r Result) ExecutionSeconds() float64 {
	return r.Duration.Seconds()
}

// Executor runs SQL text. Failures caused by the statement itself are
// returned as errs.KindQueryExecution errors carrying the driver's message.
type Executor interface {
	Execute(ctx context.Context, sql string) (Result, error)
}

// IsReadOnly reports whether sqlText starts with a read-only statement
// keyword. It is a prefix check, not a parser.
func IsReadOnly(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimLeft(sqlText, " \t\r\n("))
	for _, prefix := range []string{"select", "with"} {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

// StripTrailingSemicolons removes statement terminators some drivers reject.
func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
