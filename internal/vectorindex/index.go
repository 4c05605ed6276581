// Package vectorindex holds the immutable in-memory similarity index over
// schema documents and its persisted parquet snapshot.
package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"
)

// Metadata is the structured description carried by each document. It is
// what retrieval reassembles schemas from; Text is never parsed back.
type Metadata struct {
	Type            string   `json:"type"`
	TableName       string   `json:"table_name"`
	TableSchemaName string   `json:"table_schema_name,omitempty"`
	Columns         []Column `json:"columns,omitempty"`
	SourceTable     string   `json:"source_table,omitempty"`
	SourceColumn    string   `json:"source_column,omitempty"`
	TargetTable     string   `json:"target_table,omitempty"`
	TargetColumn    string   `json:"target_column,omitempty"`
	ConstraintName  string   `json:"constraint_name,omitempty"`
}

type Column struct {
	Name                   string  `json:"name"`
	DataType               string  `json:"data_type"`
	CharacterMaximumLength *int64  `json:"character_maximum_length,omitempty"`
	IsNullable             string  `json:"is_nullable"`
	ColumnDefault          *string `json:"column_default,omitempty"`
}

type Document struct {
	ID       string
	Text     string
	Metadata Metadata
}

type Hit struct {
	Document Document
	Score    float64
	// Position is the document's index in build order.
	Position int
}

// Index is immutable once built.
type Index struct {
	fingerprint string
	model       string
	dims        int
	builtAt     time.Time
	docs        []Document
	vectors     [][]float32
}

type Info struct {
	Fingerprint string    `json:"fingerprint"`
	Model       string    `json:"model"`
	Dimensions  int       `json:"dimensions"`
	Documents   int       `json:"documents"`
	BuiltAt     time.Time `json:"built_at"`
}

// New validates that every document has a vector of the same width and
// stores L2-normalized copies of the vectors.
func New(fingerprint, model string, docs []Document, vectors [][]float32) (*Index, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("documents (%d) and vectors (%d) differ in length", len(docs), len(vectors))
	}
	dims := 0
	normalized := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("vector %d is empty", i)
		}
		if dims == 0 {
			dims = len(vec)
		} else if len(vec) != dims {
			return nil, fmt.Errorf("vector %d has %d dimensions, want %d", i, len(vec), dims)
		}
		normalized[i] = normalize(vec)
	}
	copied := make([]Document, len(docs))
	copy(copied, docs)
	return &Index{
		fingerprint: fingerprint,
		model:       model,
		dims:        dims,
		builtAt:     time.Now().UTC(),
		docs:        copied,
		vectors:     normalized,
	}, nil
}

func (i *Index) Fingerprint() string { return i.fingerprint }
func (i *Index) Model() string       { return i.model }
func (i *Index) Len() int            { return len(i.docs) }
func (i *Index) Dimensions() int     { return i.dims }

func (i *Index) Info() Info {
	return Info{
		Fingerprint: i.fingerprint,
		Model:       i.model,
		Dimensions:  i.dims,
		Documents:   len(i.docs),
		BuiltAt:     i.builtAt,
	}
}

// Search returns up to k documents by descending cosine similarity. Ties
// keep build order.
func (i *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(i.docs) == 0 {
		return []Hit{}, nil
	}
	if len(query) != i.dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), i.dims)
	}
	q := normalize(query)
	hits := make([]Hit, len(i.docs))
	for pos, vec := range i.vectors {
		hits[pos] = Hit{Document: i.docs[pos], Score: dot(q, vec), Position: pos}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		return out
	}
	scale := 1 / math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Store publishes the current index. Readers get a consistent snapshot and
// never see a partially built index.
type Store struct {
	current atomic.Pointer[Index]
}

func (s *Store) Load() *Index {
	return s.current.Load()
}

func (s *Store) Swap(index *Index) *Index {
	return s.current.Swap(index)
}

func (s *Store) Reset() {
	s.current.Store(nil)
}
