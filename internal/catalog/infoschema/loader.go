// Package infoschema loads a catalog.Graph from a database's
// INFORMATION_SCHEMA views.
package infoschema

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/errs"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Options struct {
	// QualifyTableNames keys tables as schema.table instead of the bare name.
	QualifyTableNames bool
	Timeout           time.Duration
}

type Loader struct {
	db      queryer
	dialect Dialect
	opts    Options
}

func New(db queryer, dialect Dialect, opts Options) *Loader {
	return &Loader{db: db, dialect: dialect, opts: opts}
}

func (l *Loader) Load(ctx context.Context) (*catalog.Graph, error) {
	const op = "infoschema.Load"
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	graph := catalog.NewGraph()
	columns, err := l.loadColumns(ctx, graph)
	if err != nil {
		return nil, errs.Wrap(errs.KindSchemaRetrieval, op, "Failed to retrieve schema information", err)
	}
	if columns == 0 {
		return nil, errs.E(errs.KindSchemaRetrieval, op, "Failed to retrieve schema information: catalog returned no columns", nil)
	}
	if err := l.loadForeignKeys(ctx, graph); err != nil {
		return nil, errs.Wrap(errs.KindSchemaRetrieval, op, "Failed to retrieve relationship information", err)
	}
	return graph, nil
}

func (l *Loader) loadColumns(ctx context.Context, graph *catalog.Graph) (int, error) {
	rows, err := l.db.QueryContext(ctx, l.dialect.ColumnsQuery)
	if err != nil {
		return 0, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		var schemaName, tableName, columnName, dataType, isNullable string
		var maxLength sql.NullInt64
		var columnDefault sql.NullString
		if err := rows.Scan(&schemaName, &tableName, &columnName, &dataType, &maxLength, &isNullable, &columnDefault); err != nil {
			return 0, fmt.Errorf("scan column: %w", err)
		}

		col := catalog.Column{
			Name:       columnName,
			DataType:   dataType,
			IsNullable: normalizeNullable(isNullable),
		}
		if maxLength.Valid {
			length := maxLength.Int64
			col.CharacterMaximumLength = &length
		}
		if columnDefault.Valid {
			value := columnDefault.String
			col.ColumnDefault = &value
		}
		graph.Ensure(l.key(schemaName, tableName), schemaName).AddColumn(col)
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows error: %w", err)
	}
	return count, nil
}

func (l *Loader) loadForeignKeys(ctx context.Context, graph *catalog.Graph) error {
	rows, err := l.db.QueryContext(ctx, l.dialect.ForeignKeysQuery)
	if err != nil {
		return fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var constraint, fkSchema, fkTable, fkColumn, pkSchema, pkTable, pkColumn string
		if err := rows.Scan(&constraint, &fkSchema, &fkTable, &fkColumn, &pkSchema, &pkTable, &pkColumn); err != nil {
			return fmt.Errorf("scan foreign key: %w", err)
		}
		// Constraints touching tables outside the column listing (system
		// tables, filtered schemas) are dropped.
		graph.Link(constraint, l.key(fkSchema, fkTable), fkColumn, l.key(pkSchema, pkTable), pkColumn)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

func (l *Loader) key(schemaName, tableName string) string {
	if l.opts.QualifyTableNames && schemaName != "" {
		return schemaName + "." + tableName
	}
	return tableName
}

func normalizeNullable(raw string) string {
	switch raw {
	case "YES", "yes", "Y", "true", "TRUE":
		return catalog.Nullable
	default:
		return catalog.NotNullable
	}
}
