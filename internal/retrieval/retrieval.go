// Package retrieval selects the part of the schema relevant to a question.
package retrieval

import (
	"context"
	"time"

	"github.com/Beni-V/text2sql/internal/catalog"
	"github.com/Beni-V/text2sql/internal/embedding"
	"github.com/Beni-V/text2sql/internal/errs"
	"github.com/Beni-V/text2sql/internal/observability"
	"github.com/Beni-V/text2sql/internal/schemadoc"
	"github.com/Beni-V/text2sql/internal/vectorindex"
)

type Retriever struct {
	embedder embedding.Embedder
	store    *vectorindex.Store
}

func New(embedder embedding.Embedder, store *vectorindex.Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns the sub-schema assembled from the topK documents closest
// to text. Relationship endpoints that were not retrieved on their own are
// added as tables without columns so every edge stays two-sided.
func (r *Retriever) Retrieve(ctx context.Context, text string, topK int) (*catalog.Graph, error) {
	return r.RetrieveFrom(ctx, r.store.Load(), text, topK)
}

// RetrieveFrom is Retrieve against a given index rather than the published
// one.
func (r *Retriever) RetrieveFrom(ctx context.Context, index *vectorindex.Index, text string, topK int) (*catalog.Graph, error) {
	const op = "retrieval.Retrieve"
	if index == nil {
		return nil, errs.E(errs.KindRetrieval, op, "Failed to retrieve relevant schema: index has not been built", nil)
	}

	start := time.Now()
	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, errs.Wrap(errs.KindRetrieval, op, "Failed to retrieve relevant schema", err)
	}
	if len(vectors) != 1 {
		return nil, errs.E(errs.KindRetrieval, op, "Failed to retrieve relevant schema: embedder returned no vector", nil)
	}
	hits, err := index.Search(vectors[0], topK)
	if err != nil {
		return nil, errs.Wrap(errs.KindRetrieval, op, "Failed to retrieve relevant schema", err)
	}
	observability.ObserveRetrieval(time.Since(start))

	docs := make([]vectorindex.Document, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, hit.Document)
	}
	return Assemble(docs), nil
}

// Assemble rebuilds a schema graph from document metadata. Table documents
// are applied before relationship documents so placeholder tables pick up
// their schema name regardless of hit order.
func Assemble(docs []vectorindex.Document) *catalog.Graph {
	graph := catalog.NewGraph()
	for _, doc := range docs {
		meta := doc.Metadata
		if meta.Type != schemadoc.TypeTableColumns || meta.TableName == "" {
			continue
		}
		table := graph.Ensure(meta.TableName, meta.TableSchemaName)
		for _, col := range meta.Columns {
			table.AddColumn(catalog.Column{
				Name:                   col.Name,
				DataType:               col.DataType,
				CharacterMaximumLength: col.CharacterMaximumLength,
				IsNullable:             col.IsNullable,
				ColumnDefault:          col.ColumnDefault,
			})
		}
	}
	for _, doc := range docs {
		meta := doc.Metadata
		switch meta.Type {
		case schemadoc.TypeForeignKey, schemadoc.TypeReferencedBy:
		default:
			continue
		}
		if meta.SourceTable == "" || meta.TargetTable == "" {
			continue
		}
		graph.Ensure(meta.SourceTable, "")
		graph.Ensure(meta.TargetTable, "")
		graph.Link(meta.ConstraintName, meta.SourceTable, meta.SourceColumn, meta.TargetTable, meta.TargetColumn)
	}
	return graph
}
