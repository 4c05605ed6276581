package infoschema

import (
	"fmt"

	"github.com/Beni-V/text2sql/internal/config"
)

// Dialect holds the catalog queries for one database engine. Both queries
// return positional columns:
//
//	columns:      schema, table, column, data_type, max_length, is_nullable, default
//	foreign keys: constraint, fk_schema, fk_table, fk_column, pk_schema, pk_table, pk_column
type Dialect struct {
	Name             string
	ColumnsQuery     string
	ForeignKeysQuery string
}

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return Postgres, nil
	case config.DriverDuckDB:
		return DuckDB, nil
	case config.DriverMySQL:
		return MySQL, nil
	case config.DriverSQLServer:
		return SQLServer, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

const standardForeignKeys = `
SELECT rc.constraint_name,
       fk.table_schema, fk.table_name, fk.column_name,
       pk.table_schema, pk.table_name, pk.column_name
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage fk
  ON fk.constraint_schema = rc.constraint_schema
 AND fk.constraint_name = rc.constraint_name
JOIN information_schema.key_column_usage pk
  ON pk.constraint_schema = rc.unique_constraint_schema
 AND pk.constraint_name = rc.unique_constraint_name
 AND pk.ordinal_position = fk.position_in_unique_constraint
ORDER BY rc.constraint_name, fk.ordinal_position`

var Postgres = Dialect{
	Name: "PostgreSQL",
	ColumnsQuery: `
SELECT table_schema, table_name, column_name, data_type,
       character_maximum_length, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema NOT IN ('information_schema', 'pg_catalog', 'pg_toast')
ORDER BY table_schema, table_name, ordinal_position`,
	ForeignKeysQuery: standardForeignKeys,
}

var DuckDB = Dialect{
	Name: "DuckDB",
	ColumnsQuery: `
SELECT table_schema, table_name, column_name, data_type,
       character_maximum_length, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_schema, table_name, ordinal_position`,
	ForeignKeysQuery: standardForeignKeys,
}

var MySQL = Dialect{
	Name: "MySQL",
	ColumnsQuery: `
SELECT table_schema, table_name, column_name, data_type,
       character_maximum_length, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_schema, table_name, ordinal_position`,
	ForeignKeysQuery: `
SELECT constraint_name,
       table_schema, table_name, column_name,
       referenced_table_schema, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE()
  AND referenced_table_name IS NOT NULL
ORDER BY constraint_name, ordinal_position`,
}

var SQLServer = Dialect{
	Name: "Microsoft SQL Server",
	ColumnsQuery: `
SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE,
       CHARACTER_MAXIMUM_LENGTH, IS_NULLABLE, COLUMN_DEFAULT
FROM INFORMATION_SCHEMA.COLUMNS
ORDER BY TABLE_SCHEMA, TABLE_NAME, ORDINAL_POSITION`,
	ForeignKeysQuery: `
SELECT fk.name,
       OBJECT_SCHEMA_NAME(fk.parent_object_id), OBJECT_NAME(fk.parent_object_id),
       COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
       OBJECT_SCHEMA_NAME(fk.referenced_object_id), OBJECT_NAME(fk.referenced_object_id),
       COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id)
FROM sys.foreign_keys AS fk
INNER JOIN sys.foreign_key_columns AS fkc ON fk.object_id = fkc.constraint_object_id
ORDER BY fk.name, fkc.constraint_column_id`,
}
