// Package catalog models a database schema as a relationship-aware graph
// of tables, columns and foreign keys, and caches the graph loaded from the
// target database.
package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

const (
	Nullable    = "YES"
	NotNullable = "NO"
)

// Loader reads the schema catalog of a database.
type Loader interface {
	Load(ctx context.Context) (*Graph, error)
}

type Graph struct {
	Tables map[string]*Table
}

type Table struct {
	Name          string
	SchemaName    string
	Columns       []Column
	Relationships Relationships
}

type Column struct {
	Name                   string
	DataType               string
	CharacterMaximumLength *int64
	IsNullable             string
	ColumnDefault          *string
}

type Relationships struct {
	ForeignKeys  []ForeignKeyRef
	ReferencedBy []ReferenceRef
}

// ForeignKeyRef is an outgoing edge recorded on the owning table.
type ForeignKeyRef struct {
	ConstraintName   string `json:"constraint_name"`
	Column           string `json:"column"`
	ReferencesTable  string `json:"references_table"`
	ReferencesColumn string `json:"references_column"`
}

// ReferenceRef is the incoming mirror of a ForeignKeyRef, recorded on the
// referenced table.
type ReferenceRef struct {
	ConstraintName   string `json:"constraint_name"`
	Table            string `json:"table"`
	Column           string `json:"column"`
	ReferencedColumn string `json:"referenced_column"`
}

func NewGraph() *Graph {
	return &Graph{Tables: map[string]*Table{}}
}

func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Tables)
}

func (g *Graph) Table(name string) (*Table, bool) {
	if g == nil {
		return nil, false
	}
	table, ok := g.Tables[name]
	return table, ok
}

// Ensure returns the table stored under key, creating an empty one when it
// does not exist yet. An empty schema name on an existing table is filled in.
func (g *Graph) Ensure(key, schemaName string) *Table {
	if g.Tables == nil {
		g.Tables = map[string]*Table{}
	}
	table, ok := g.Tables[key]
	if !ok {
		table = &Table{Name: key, SchemaName: schemaName}
		g.Tables[key] = table
		return table
	}
	if table.SchemaName == "" {
		table.SchemaName = schemaName
	}
	return table
}

// Link records a foreign key on source and mirrors it on target. Both tables
// must already be present; it reports false and changes nothing otherwise.
func (g *Graph) Link(constraint, source, sourceColumn, target, targetColumn string) bool {
	src, ok := g.Table(source)
	if !ok {
		return false
	}
	dst, ok := g.Table(target)
	if !ok {
		return false
	}
	src.AddForeignKey(ForeignKeyRef{
		ConstraintName:   constraint,
		Column:           sourceColumn,
		ReferencesTable:  target,
		ReferencesColumn: targetColumn,
	})
	dst.AddReferencedBy(ReferenceRef{
		ConstraintName:   constraint,
		Table:            source,
		Column:           sourceColumn,
		ReferencedColumn: targetColumn,
	})
	return true
}

// Names returns the table keys in sorted order.
func (g *Graph) Names() []string {
	if g == nil {
		return nil
	}
	names := make([]string, 0, len(g.Tables))
	for name := range g.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Graph) Clone() *Graph {
	out := NewGraph()
	if g == nil {
		return out
	}
	for name, table := range g.Tables {
		out.Tables[name] = table.Clone()
	}
	return out
}

// Fingerprint identifies the schema version. Two graphs with the same
// tables, columns and relationships share a fingerprint regardless of map
// iteration order.
func (g *Graph) Fingerprint() string {
	hash := sha256.New()
	for _, name := range g.Names() {
		table := g.Tables[name]
		fmt.Fprintf(hash, "t\x00%s\x00%s\n", name, table.SchemaName)
		for _, col := range table.Columns {
			fmt.Fprintf(hash, "c\x00%s\x00%s\x00%s\x00%s\x00%s\n",
				col.Name, col.DataType, formatLength(col.CharacterMaximumLength), col.IsNullable, formatDefault(col.ColumnDefault))
		}
		for _, fk := range table.Relationships.ForeignKeys {
			fmt.Fprintf(hash, "f\x00%s\x00%s\x00%s\x00%s\n", fk.ConstraintName, fk.Column, fk.ReferencesTable, fk.ReferencesColumn)
		}
		for _, ref := range table.Relationships.ReferencedBy {
			fmt.Fprintf(hash, "r\x00%s\x00%s\x00%s\x00%s\n", ref.ConstraintName, ref.Table, ref.Column, ref.ReferencedColumn)
		}
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// CheckSymmetry verifies that every foreign key has a mirrored
// referenced_by entry on its target and vice versa.
func (g *Graph) CheckSymmetry() error {
	for _, name := range g.Names() {
		table := g.Tables[name]
		for _, fk := range table.Relationships.ForeignKeys {
			target, ok := g.Tables[fk.ReferencesTable]
			if !ok {
				return fmt.Errorf("%s.%s references missing table %s", name, fk.Column, fk.ReferencesTable)
			}
			mirror := ReferenceRef{ConstraintName: fk.ConstraintName, Table: name, Column: fk.Column, ReferencedColumn: fk.ReferencesColumn}
			if !target.hasReference(mirror) {
				return fmt.Errorf("foreign key %s on %s has no referenced_by entry on %s", fk.ConstraintName, name, fk.ReferencesTable)
			}
		}
		for _, ref := range table.Relationships.ReferencedBy {
			source, ok := g.Tables[ref.Table]
			if !ok {
				return fmt.Errorf("%s is referenced by missing table %s", name, ref.Table)
			}
			mirror := ForeignKeyRef{ConstraintName: ref.ConstraintName, Column: ref.Column, ReferencesTable: name, ReferencesColumn: ref.ReferencedColumn}
			if !source.hasForeignKey(mirror) {
				return fmt.Errorf("referenced_by %s on %s has no foreign key entry on %s", ref.ConstraintName, name, ref.Table)
			}
		}
	}
	return nil
}

func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// AddColumn appends col unless a column with the same name exists.
func (t *Table) AddColumn(col Column) bool {
	if _, exists := t.Column(col.Name); exists {
		return false
	}
	t.Columns = append(t.Columns, col)
	return true
}

func (t *Table) AddForeignKey(fk ForeignKeyRef) bool {
	if t.hasForeignKey(fk) {
		return false
	}
	t.Relationships.ForeignKeys = append(t.Relationships.ForeignKeys, fk)
	return true
}

func (t *Table) AddReferencedBy(ref ReferenceRef) bool {
	if t.hasReference(ref) {
		return false
	}
	t.Relationships.ReferencedBy = append(t.Relationships.ReferencedBy, ref)
	return true
}

func (t *Table) hasForeignKey(fk ForeignKeyRef) bool {
	for _, existing := range t.Relationships.ForeignKeys {
		if existing == fk {
			return true
		}
	}
	return false
}

func (t *Table) hasReference(ref ReferenceRef) bool {
	for _, existing := range t.Relationships.ReferencedBy {
		if existing == ref {
			return true
		}
	}
	return false
}

func (t *Table) Clone() *Table {
	out := &Table{Name: t.Name, SchemaName: t.SchemaName}
	if t.Columns != nil {
		out.Columns = make([]Column, len(t.Columns))
		for i, col := range t.Columns {
			out.Columns[i] = col.clone()
		}
	}
	out.Relationships.ForeignKeys = append([]ForeignKeyRef(nil), t.Relationships.ForeignKeys...)
	out.Relationships.ReferencedBy = append([]ReferenceRef(nil), t.Relationships.ReferencedBy...)
	return out
}

func (c Column) clone() Column {
	if c.CharacterMaximumLength != nil {
		v := *c.CharacterMaximumLength
		c.CharacterMaximumLength = &v
	}
	if c.ColumnDefault != nil {
		v := *c.ColumnDefault
		c.ColumnDefault = &v
	}
	return c
}

// MarshalJSON renders the graph as the nested mapping used in prompts:
// table name -> {table_schema_name, columns, relationships}.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range g.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		body, err := json.Marshal(g.Tables[name])
		if err != nil {
			return nil, err
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *Table) MarshalJSON() ([]byte, error) {
	var cols bytes.Buffer
	cols.WriteByte('{')
	for i, col := range t.Columns {
		if i > 0 {
			cols.WriteByte(',')
		}
		key, err := json.Marshal(col.Name)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(columnJSON{
			DataType:               col.DataType,
			CharacterMaximumLength: col.CharacterMaximumLength,
			IsNullable:             col.IsNullable,
			ColumnDefault:          col.ColumnDefault,
		})
		if err != nil {
			return nil, err
		}
		cols.Write(key)
		cols.WriteByte(':')
		cols.Write(body)
	}
	cols.WriteByte('}')

	fks := t.Relationships.ForeignKeys
	if fks == nil {
		fks = []ForeignKeyRef{}
	}
	refs := t.Relationships.ReferencedBy
	if refs == nil {
		refs = []ReferenceRef{}
	}
	return json.Marshal(tableJSON{
		TableSchemaName: t.SchemaName,
		Columns:         json.RawMessage(cols.Bytes()),
		Relationships: relationshipsJSON{
			ForeignKeys:  fks,
			ReferencedBy: refs,
		},
	})
}

type tableJSON struct {
	TableSchemaName string            `json:"table_schema_name"`
	Columns         json.RawMessage   `json:"columns"`
	Relationships   relationshipsJSON `json:"relationships"`
}

type relationshipsJSON struct {
	ForeignKeys  []ForeignKeyRef `json:"foreign_keys"`
	ReferencedBy []ReferenceRef  `json:"referenced_by"`
}

type columnJSON struct {
	DataType               string  `json:"data_type"`
	CharacterMaximumLength *int64  `json:"character_maximum_length"`
	IsNullable             string  `json:"is_nullable"`
	ColumnDefault          *string `json:"column_default"`
}

func formatLength(length *int64) string {
	if length == nil {
		return ""
	}
	return strconv.FormatInt(*length, 10)
}

func formatDefault(value *string) string {
	if value == nil {
		return "\x01null"
	}
	return *value
}
