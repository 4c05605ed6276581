package vectorindex

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beni-V/text2sql/internal/storage"
	"github.com/Beni-V/text2sql/internal/storage/local"
)

const fp = "0123456789abcdef0123456789abcdef"

func sampleIndex(t *testing.T) *Index {
	t.Helper()
	length := int64(40)
	docs := []Document{
		{ID: "table:Customers", Text: "Table: dbo.Customers", Metadata: Metadata{
			Type: "table_columns", TableName: "Customers", TableSchemaName: "dbo",
			Columns: []Column{{Name: "CompanyName", DataType: "nvarchar", CharacterMaximumLength: &length, IsNullable: "NO"}},
		}},
		{ID: "fk:Orders", Text: "Foreign Key Relationship: Orders.CustomerID references Customers.CustomerID", Metadata: Metadata{
			Type: "foreign_key", TableName: "Orders", SourceTable: "Orders", SourceColumn: "CustomerID",
			TargetTable: "Customers", TargetColumn: "CustomerID", ConstraintName: "FK_Orders_Customers",
		}},
		{ID: "table:Shippers", Text: "Table: dbo.Shippers", Metadata: Metadata{Type: "table_columns", TableName: "Shippers"}},
	}
	vectors := [][]float32{{1, 0, 0}, {0, 2, 0}, {1, 0, 0}}
	index, err := New(fp, "hash-3", docs, vectors)
	require.NoError(t, err)
	return index
}

func TestNewValidatesShapes(t *testing.T) {
	_, err := New(fp, "m", []Document{{ID: "a"}}, nil)
	assert.Error(t, err)
	_, err = New(fp, "m", []Document{{ID: "a"}, {ID: "b"}}, [][]float32{{1, 0}, {1}})
	assert.Error(t, err)
	_, err = New(fp, "m", []Document{{ID: "a"}}, [][]float32{{}})
	assert.Error(t, err)
}

func TestSearchRanksByCosineWithStableTies(t *testing.T) {
	index := sampleIndex(t)

	hits, err := index.Search([]float32{5, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "table:Customers", hits[0].Document.ID)
	assert.Equal(t, "table:Shippers", hits[1].Document.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	hits, err = index.Search([]float32{0, 1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "fk:Orders", hits[0].Document.ID)
	assert.Equal(t, 1, hits[0].Position)
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	_, err := sampleIndex(t).Search([]float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestSearchWithZeroK(t *testing.T) {
	hits, err := sampleIndex(t).Search([]float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStoreSwapIsAtomic(t *testing.T) {
	var store Store
	assert.Nil(t, store.Load())

	first := sampleIndex(t)
	second := sampleIndex(t)
	assert.Nil(t, store.Swap(first))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				current := store.Load()
				if current != first && current != second {
					t.Errorf("unexpected index %p", current)
					return
				}
			}
		}()
	}
	assert.Same(t, first, store.Swap(second))
	wg.Wait()

	store.Reset()
	assert.Nil(t, store.Load())
}

func TestEncodeDecodePreservesSearchResults(t *testing.T) {
	index := sampleIndex(t)
	data, err := Encode(index)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, index.Fingerprint(), decoded.Fingerprint())
	assert.Equal(t, index.Model(), decoded.Model())
	assert.Equal(t, index.docs, decoded.docs)

	want, err := index.Search([]float32{0.2, 1, 0}, 3)
	require.NoError(t, err)
	got, err := decoded.Search([]float32{0.2, 1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Document.ID, got[i].Document.ID)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not parquet"))
	assert.Error(t, err)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	objects, err := local.New(t.TempDir())
	require.NoError(t, err)
	snapshots := NewSnapshotStore(objects, "indexes")
	ctx := context.Background()

	key, err := snapshots.Save(ctx, sampleIndex(t))
	require.NoError(t, err)
	assert.Equal(t, "indexes/hash-3/"+fp+".parquet", key)

	loaded, err := snapshots.Load(ctx, "hash-3", fp)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())

	_, err = snapshots.Load(ctx, "hash-3", "ffffffffffffffffffffffffffffffff")
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound))
}

func TestSnapshotStoreRejectsMismatchedSnapshot(t *testing.T) {
	objects, err := local.New(t.TempDir())
	require.NoError(t, err)
	data, err := Encode(sampleIndex(t))
	require.NoError(t, err)
	other := "ffffffffffffffffffffffffffffffff"
	_, err = objects.Put(context.Background(), "indexes/hash-3/"+other+".parquet", bytes.NewReader(data), int64(len(data)), storage.PutOptions{})
	require.NoError(t, err)

	_, err = NewSnapshotStore(objects, "indexes").Load(context.Background(), "hash-3", other)
	assert.Error(t, err)
}

func TestSnapshotStorePruneKeepsCurrentAndNewest(t *testing.T) {
	root := t.TempDir()
	objects, err := local.New(root)
	require.NoError(t, err)
	ctx := context.Background()

	fingerprints := []string{
		"1111111111111111", "2222222222222222", "3333333333333333", "4444444444444444",
	}
	base := time.Now().Add(-time.Hour)
	for i, f := range fingerprints {
		key := "indexes/hash-3/" + f + ".parquet"
		_, err := objects.Put(ctx, key, bytes.NewReader([]byte(f)), int64(len(f)), storage.PutOptions{})
		require.NoError(t, err)
		stamp := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(filepath.Join(root, filepath.FromSlash(key)), stamp, stamp))
	}
	_, err = objects.Put(ctx, "indexes/other-model/5555555555555555.parquet", bytes.NewReader([]byte("x")), 1, storage.PutOptions{})
	require.NoError(t, err)

	// The oldest snapshot is current; the newest other one fills the second slot.
	deleted, err := NewSnapshotStore(objects, "indexes").Prune(ctx, "hash-3", fingerprints[0], 2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := objects.List(ctx, "indexes/")
	require.NoError(t, err)
	var keys []string
	for _, obj := range remaining {
		keys = append(keys, obj.Key)
	}
	assert.ElementsMatch(t, []string{
		"indexes/hash-3/1111111111111111.parquet",
		"indexes/hash-3/4444444444444444.parquet",
		"indexes/other-model/5555555555555555.parquet",
	}, keys)
}
