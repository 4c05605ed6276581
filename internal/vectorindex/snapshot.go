package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/Beni-V/text2sql/internal/storage"
)

type snapshotRow struct {
	Position     int64     `parquet:"position"`
	DocumentID   string    `parquet:"document_id"`
	Fingerprint  string    `parquet:"fingerprint"`
	Model        string    `parquet:"model"`
	Text         string    `parquet:"text"`
	MetadataJSON string    `parquet:"metadata_json"`
	Vector       []float32 `parquet:"vector,list"`
}

// Encode writes the index as parquet, one row per document.
func Encode(index *Index) ([]byte, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if index.Len() == 0 {
		return nil, fmt.Errorf("index has no documents")
	}
	rows := make([]snapshotRow, 0, index.Len())
	for pos, doc := range index.docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata for %q: %w", doc.ID, err)
		}
		rows = append(rows, snapshotRow{
			Position:     int64(pos),
			DocumentID:   doc.ID,
			Fingerprint:  index.fingerprint,
			Model:        index.model,
			Text:         doc.Text,
			MetadataJSON: string(meta),
			Vector:       index.vectors[pos],
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[snapshotRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode rebuilds an index from Encode output.
func Decode(data []byte) (*Index, error) {
	rows, err := parquet.Read[snapshotRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("snapshot has no rows")
	}
	total := int64(len(rows))

	docs := make([]Document, len(rows))
	vectors := make([][]float32, len(rows))
	for _, row := range rows {
		if row.Position < 0 || row.Position >= total {
			return nil, fmt.Errorf("snapshot row position %d out of range", row.Position)
		}
		var meta Metadata
		if err := json.Unmarshal([]byte(row.MetadataJSON), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata for %q: %w", row.DocumentID, err)
		}
		docs[row.Position] = Document{ID: row.DocumentID, Text: row.Text, Metadata: meta}
		vectors[row.Position] = row.Vector
	}
	return New(rows[0].Fingerprint, rows[0].Model, docs, vectors)
}

// SnapshotStore persists encoded indexes in an object store keyed by
// embedding model and schema fingerprint.
type SnapshotStore struct {
	store  storage.ObjectStore
	prefix string
}

func NewSnapshotStore(store storage.ObjectStore, prefix string) *SnapshotStore {
	return &SnapshotStore{store: store, prefix: prefix}
}

func (s *SnapshotStore) Save(ctx context.Context, index *Index) (string, error) {
	key, err := storage.BuildSnapshotPath(s.prefix, index.Model(), index.Fingerprint())
	if err != nil {
		return "", err
	}
	data, err := Encode(index)
	if err != nil {
		return "", err
	}
	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"}); err != nil {
		return "", fmt.Errorf("save snapshot %q: %w", key, err)
	}
	return key, nil
}

// Load returns storage.ErrObjectNotFound when no snapshot exists for the
// pair.
func (s *SnapshotStore) Load(ctx context.Context, model, fingerprint string) (*Index, error) {
	key, err := storage.BuildSnapshotPath(s.prefix, model, fingerprint)
	if err != nil {
		return nil, err
	}
	reader, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", key, err)
	}
	index, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", key, err)
	}
	if index.Fingerprint() != fingerprint || index.Model() != model {
		return nil, fmt.Errorf("snapshot %q belongs to %s/%s", key, index.Model(), index.Fingerprint())
	}
	return index, nil
}

// Prune deletes snapshots built with model until at most keep remain. The
// snapshot for current is always retained; the rest are kept newest first.
func (s *SnapshotStore) Prune(ctx context.Context, model, current string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	dir, err := storage.SnapshotDir(s.prefix, model)
	if err != nil {
		return 0, err
	}
	objects, err := s.store.List(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("list snapshots under %q: %w", dir, err)
	}
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	retained := map[string]bool{current: true}
	deleted := 0
	for _, obj := range objects {
		fingerprint, ok := storage.FingerprintFromKey(obj.Key)
		if !ok || retained[fingerprint] {
			continue
		}
		if len(retained) < keep {
			retained[fingerprint] = true
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			return deleted, fmt.Errorf("delete snapshot %q: %w", obj.Key, err)
		}
		deleted++
	}
	return deleted, nil
}
