// Package schemadoc renders a schema graph into retrievable documents and
// keeps the vector index over them current.
package schemadoc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/vectorindex"
)

const (
	TypeTableColumns = "table_columns"
	TypeForeignKey   = "foreign_key"
	TypeReferencedBy = "referenced_by"
)

// Build returns one document per table plus one per relationship direction.
// Tables are visited in name order and columns in catalog order, so the same
// graph always yields the same documents.
func Build(graph *catalog.Graph) []vectorindex.Document {
	var docs []vectorindex.Document
	for _, name := range graph.Names() {
		table := graph.Tables[name]
		docs = append(docs, tableDocument(name, table))
	}
	for _, name := range graph.Names() {
		table := graph.Tables[name]
		for _, fk := range table.Relationships.ForeignKeys {
			docs = append(docs, vectorindex.Document{
				ID: fmt.Sprintf("fk:%s:%s.%s", fk.ConstraintName, name, fk.Column),
				Text: fmt.Sprintf("Foreign Key Relationship: %s.%s references %s.%s",
					name, fk.Column, fk.ReferencesTable, fk.ReferencesColumn),
				Metadata: vectorindex.Metadata{
					Type:           TypeForeignKey,
					TableName:      name,
					SourceTable:    name,
					SourceColumn:   fk.Column,
					TargetTable:    fk.ReferencesTable,
					TargetColumn:   fk.ReferencesColumn,
					ConstraintName: fk.ConstraintName,
				},
			})
		}
		for _, ref := range table.Relationships.ReferencedBy {
			docs = append(docs, vectorindex.Document{
				ID: fmt.Sprintf("ref:%s:%s.%s", ref.ConstraintName, name, ref.ReferencedColumn),
				Text: fmt.Sprintf("Reference Relationship: %s.%s references %s.%s",
					ref.Table, ref.Column, name, ref.ReferencedColumn),
				Metadata: vectorindex.Metadata{
					Type:           TypeReferencedBy,
					TableName:      name,
					SourceTable:    ref.Table,
					SourceColumn:   ref.Column,
					TargetTable:    name,
					TargetColumn:   ref.ReferencedColumn,
					ConstraintName: ref.ConstraintName,
				},
			})
		}
	}
	return docs
}

func tableDocument(key string, table *catalog.Table) vectorindex.Document {
	var text strings.Builder
	if table.SchemaName == "" {
		fmt.Fprintf(&text, "Table: %s\nColumns:\n", key)
	} else {
		fmt.Fprintf(&text, "Table: %s.%s\nColumns:\n", table.SchemaName, displayName(key, table.SchemaName))
	}

	columns := make([]vectorindex.Column, 0, len(table.Columns))
	lines := make([]string, 0, len(table.Columns))
	for _, col := range table.Columns {
		dataType := col.DataType
		if col.CharacterMaximumLength != nil && *col.CharacterMaximumLength != 0 {
			dataType += "(" + strconv.FormatInt(*col.CharacterMaximumLength, 10) + ")"
		}
		nullable := "not nullable"
		if col.IsNullable == catalog.Nullable {
			nullable = "nullable"
		}
		lines = append(lines, fmt.Sprintf("%s: %s, %s", col.Name, dataType, nullable))
		columns = append(columns, vectorindex.Column{
			Name:                   col.Name,
			DataType:               col.DataType,
			CharacterMaximumLength: col.CharacterMaximumLength,
			IsNullable:             col.IsNullable,
			ColumnDefault:          col.ColumnDefault,
		})
	}
	text.WriteString(strings.Join(lines, "\n"))

	return vectorindex.Document{
		ID:   "table:" + key,
		Text: text.String(),
		Metadata: vectorindex.Metadata{
			Type:            TypeTableColumns,
			TableName:       key,
			TableSchemaName: table.SchemaName,
			Columns:         columns,
		},
	}
}

// displayName strips the schema qualifier from keys built with qualified
// table names so the text does not repeat the schema.
func displayName(key, schemaName string) string {
	if schemaName == "" {
		return key
	}
	return strings.TrimPrefix(key, schemaName+".")
}
