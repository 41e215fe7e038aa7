package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimarsh-ai/vimarsh/engine/knowledge/vectordb"
	"github.com/vimarsh-ai/vimarsh/engine/store"
)

func chunkDocument(id, partition string, embedding []float64) *store.Document {
	raw := make([]any, len(embedding))
	for i, v := range embedding {
		raw[i] = v
	}
	return &store.Document{
		ID:           id,
		Type:         store.TypeSpiritualText,
		PartitionKey: partition,
		Data: map[string]any{
			"text":      "verse body " + id,
			"source":    "Bhagavad Gita",
			"section":   "2.47",
			"key_terms": []any{"dharma", "karma"},
			"citations": []any{"Bhagavad Gita 2.47"},
			"quality":   1.5,
			"embedding": raw,
		},
	}
}

func TestChunkFromDocument(t *testing.T) {
	t.Run("Should parse every chunk field from the document body", func(t *testing.T) {
		doc := chunkDocument("c1", "krishna", []float64{0.1, 0.2, 0.3})
		chunk := ChunkFromDocument(doc)
		assert.Equal(t, "c1", chunk.ID)
		assert.Equal(t, "krishna", chunk.Partition)
		assert.Equal(t, "Bhagavad Gita", chunk.Source)
		assert.Equal(t, "2.47", chunk.Section)
		assert.Equal(t, []string{"dharma", "karma"}, chunk.KeyTerms)
		assert.Equal(t, []string{"Bhagavad Gita 2.47"}, chunk.Citations)
		assert.InDelta(t, 1.5, chunk.Quality, 1e-9)
		assert.Len(t, chunk.Embedding, 3)
	})
	t.Run("Should carry key terms and citations into index metadata", func(t *testing.T) {
		chunk := ChunkFromDocument(chunkDocument("c1", "krishna", []float64{1, 0}))
		record := chunk.Record()
		assert.Equal(t, "krishna", record.Partition)
		assert.Equal(t, []any{"dharma", "karma"}, record.Metadata["key_terms"])
		assert.Equal(t, "Bhagavad Gita", record.Metadata["source"])
	})
}

func TestLoadCorpus(t *testing.T) {
	newFixture := func(t *testing.T, n int) (*Service, store.Store) {
		t.Helper()
		docs, err := store.NewLocalStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = docs.Close(context.Background()) })
		for i := 0; i < n; i++ {
			doc := chunkDocument(fmt.Sprintf("c%d", i), "krishna", []float64{float64(i), 1, 0})
			require.NoError(t, docs.Upsert(context.Background(), store.CollectionSpiritualTexts, doc))
		}
		index, err := vectordb.NewMemoryStore("")
		require.NoError(t, err)
		return NewService(index, docs), docs
	}
	t.Run("Should ingest every embedded chunk", func(t *testing.T) {
		svc, _ := newFixture(t, 7)
		loaded, err := svc.LoadCorpus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 7, loaded)
		matches, err := svc.Index().Search(context.Background(), []float32{0, 1, 0}, vectordb.SearchOptions{
			Partition: "krishna", TopK: 10, MinScore: -1,
		})
		require.NoError(t, err)
		assert.Len(t, matches, 7)
	})
	t.Run("Should skip chunks without embeddings", func(t *testing.T) {
		svc, docs := newFixture(t, 2)
		bare := &store.Document{
			ID:           "no-embedding",
			Type:         store.TypeSpiritualText,
			PartitionKey: "krishna",
			Data:         map[string]any{"text": "unembedded"},
		}
		require.NoError(t, docs.Upsert(context.Background(), store.CollectionSpiritualTexts, bare))
		loaded, err := svc.LoadCorpus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, loaded)
	})
	t.Run("Should reload the corpus without duplicate rejections", func(t *testing.T) {
		svc, _ := newFixture(t, 3)
		_, err := svc.LoadCorpus(context.Background())
		require.NoError(t, err)
		loaded, err := svc.Reload(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, loaded)
	})
}
