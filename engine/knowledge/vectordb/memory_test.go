package vectordb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

func rec(id, partition string, embedding []float32) Record {
	return Record{ID: id, Partition: partition, Text: "text-" + id, Embedding: embedding}
}

func TestMemoryStore(t *testing.T) {
	t.Run("Should rank matches by cosine similarity", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{1, 0, 0}),
			rec("b", "krishna", []float32{0.9, 0.1, 0}),
			rec("c", "krishna", []float32{0, 1, 0}),
		}))
		matches, err := s.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{
			TopK: 2, Partition: "krishna",
		})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "b", matches[1].ID)
		assert.Greater(t, matches[0].Score, matches[1].Score)
	})
	t.Run("Should never return chunks from another partition", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("k1", "krishna", []float32{1, 0, 0}),
			rec("n1", "newton", []float32{1, 0, 0}),
		}))
		matches, err := s.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{
			Partition: "krishna",
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "k1", matches[0].ID)
	})
	t.Run("Should reject a dimension mismatch within a partition", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{1, 0, 0}),
		}))
		err = s.Upsert(context.Background(), []Record{
			rec("bad", "krishna", []float32{1, 0}),
		})
		require.Error(t, err)
		assert.Equal(t, core.CodeInvalidFormat, core.CodeOf(err))
	})
	t.Run("Should allow different dimensions in different partitions", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{1, 0, 0}),
			rec("b", "einstein", []float32{1, 0}),
		}))
	})
	t.Run("Should reject a duplicate chunk id at ingest", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{1, 0, 0}),
		}))
		err = s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{0, 1, 0}),
		})
		require.Error(t, err)
		assert.Equal(t, core.CodeStorageConflict, core.CodeOf(err))
	})
	t.Run("Should leave the index untouched when a batch is rejected", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{1, 0, 0}),
		}))
		err = s.Upsert(context.Background(), []Record{
			rec("fresh", "krishna", []float32{0, 1, 0}),
			rec("a", "krishna", []float32{0, 0, 1}),
		})
		require.Error(t, err)
		matches, err := s.Search(context.Background(), []float32{0, 1, 0}, SearchOptions{
			Partition: "krishna", MinScore: 0.5,
		})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
	t.Run("Should honor the minimum score threshold", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{1, 0, 0}),
			rec("b", "krishna", []float32{0, 1, 0}),
		}))
		matches, err := s.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{
			Partition: "krishna", MinScore: 0.9,
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].ID)
	})
	t.Run("Should filter by metadata", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		a := rec("a", "krishna", []float32{1, 0, 0})
		a.Metadata = map[string]any{"source": "gita"}
		b := rec("b", "krishna", []float32{1, 0, 0})
		b.Metadata = map[string]any{"source": "upanishads"}
		require.NoError(t, s.Upsert(context.Background(), []Record{a, b}))
		matches, err := s.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{
			Partition: "krishna", Filters: map[string]string{"source": "gita"},
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].ID)
	})
	t.Run("Should survive a snapshot round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		s, err := NewMemoryStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{1, 0, 0}),
		}))
		require.NoError(t, s.Close(context.Background()))

		reopened, err := NewMemoryStore(path)
		require.NoError(t, err)
		matches, err := reopened.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{
			Partition: "krishna",
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].ID)
	})
	t.Run("Should delete ids from a partition", func(t *testing.T) {
		s, err := NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, s.Upsert(context.Background(), []Record{
			rec("a", "krishna", []float32{1, 0, 0}),
		}))
		require.NoError(t, s.Delete(context.Background(), "krishna", []string{"a"}))
		matches, err := s.Search(context.Background(), []float32{1, 0, 0}, SearchOptions{
			Partition: "krishna",
		})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}
