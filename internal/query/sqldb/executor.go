// Package sqldb executes generated SQL against any database/sql target.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/observability"
	"github.com/Beni-V/text2sql/internal/query"
)

const executionFailedPrefix = "Query execution failed: "

type Options struct {
	Timeout  time.Duration
	MaxRows  int
	ReadOnly bool
}

type Executor struct {
	db   *sql.DB
	opts Options
}

func New(db *sql.DB, opts Options) *Executor {
	return &Executor{db: db, opts: opts}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (query.Result, error) {
	const op = "sqldb.Execute"
	sqlText = query.StripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return query.Result{}, errs.E(errs.KindQueryExecution, op, executionFailedPrefix+"empty statement", nil)
	}
	if e.opts.ReadOnly && !query.IsReadOnly(sqlText) {
		return query.Result{}, errs.E(errs.KindQueryExecution, op,
			executionFailedPrefix+"only read-only SELECT or WITH statements are allowed", nil)
	}

	parent := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		result query.Result
		err    error
	)
	if returnsRows(sqlText) {
		result, err = e.queryRows(ctx, sqlText)
	} else {
		result, err = e.exec(ctx, sqlText)
	}
	if err != nil {
		// The caller went away; that is not something a rewritten query can fix.
		if parent.Err() != nil {
			return query.Result{}, errs.Wrap(errs.KindUnavailable, op, "query aborted", parent.Err())
		}
		return query.Result{}, errs.E(errs.KindQueryExecution, op, executionFailedPrefix+err.Error(), err)
	}
	result.Duration = time.Since(start)
	observability.ObserveQuery(result.Duration)
	return result, nil
}

func (e *Executor) queryRows(ctx context.Context, sqlText string) (query.Result, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, err
	}

	result := query.Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if e.opts.MaxRows > 0 && len(result.Rows) >= e.opts.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, err
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}
	result.AffectedRows = int64(len(result.Rows))
	return result, nil
}

func (e *Executor) exec(ctx context.Context, sqlText string) (query.Result, error) {
	res, err := e.db.ExecContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = -1
	}
	return query.Result{Columns: []string{}, Rows: []map[string]any{}, AffectedRows: affected}, nil
}

func returnsRows(sqlText string) bool {
	if query.IsReadOnly(sqlText) {
		return true
	}
	fields := strings.Fields(strings.ToLower(sqlText))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "show", "describe", "desc", "explain", "pragma", "values", "table", "exec", "execute":
		return true
	}
	for _, field := range fields {
		if field == "returning" {
			return true
		}
	}
	return false
}

// normalizeValue flattens driver values into scalars: text stays text,
// timestamps become RFC 3339, nested values (lists, structs, maps) become
// JSON text.
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case nil, bool, string, int64, int32, int16, int8, int, uint64, uint32, uint16, uint8, uint, float64, float32:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case *big.Int:
		return typed.String()
	case fmt.Stringer:
		return typed.String()
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		encoded, err := json.Marshal(jsonSafe(value))
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(encoded)
	default:
		return fmt.Sprint(value)
	}
}

// jsonSafe rewrites maps with non-string keys, which encoding/json rejects.
func jsonSafe(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return typed.String()
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = jsonSafe(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = jsonSafe(v)
		}
		return out
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Map {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = jsonSafe(iter.Value().Interface())
		}
		return out
	}
	return value
}

// ErrorCode extracts the engine-specific error code (SQLSTATE for
// PostgreSQL, the error number for MySQL) from an execution error.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.SQLState != [5]byte{} {
			return string(myErr.SQLState[:])
		}
		return strconv.Itoa(int(myErr.Number))
	}
	return ""
}
