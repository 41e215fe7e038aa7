package retriever

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimarsh-ai/vimarsh/engine/knowledge/embedder"
	"github.com/vimarsh-ai/vimarsh/engine/knowledge/vectordb"
)

// echoEmbedder returns a fixed vector per known text so similarity is
// controlled by the test, not by hashing.
type echoEmbedder struct {
	vectors map[string][]float32
}

func (e *echoEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *echoEmbedder) Dimension() int { return 3 }

func fixture(t *testing.T) (*Service, vectordb.Store) {
	t.Helper()
	index, err := vectordb.NewMemoryStore("")
	require.NoError(t, err)
	records := []vectordb.Record{
		{
			ID: "gita-247", Partition: "krishna", Text: "You have a right to perform your duty",
			Embedding: []float32{1, 0, 0},
			Metadata: map[string]any{
				"source":    "Bhagavad Gita",
				"key_terms": []any{"dharma", "duty"},
				"citations": []any{"Bhagavad Gita 2.47"},
			},
		},
		{
			ID: "gita-62", Partition: "krishna", Text: "From attachment desire is born",
			Embedding: []float32{0.9, 0.4, 0},
			Metadata: map[string]any{
				"source":    "Bhagavad Gita",
				"key_terms": []any{"attachment"},
				"citations": []any{"Bhagavad Gita 2.62"},
			},
		},
		{
			ID: "upan-1", Partition: "krishna", Text: "The Self is everywhere",
			Embedding: []float32{0.2, 1, 0},
			Metadata: map[string]any{
				"source":    "Upanishads",
				"key_terms": []any{"self"},
			},
		},
	}
	require.NoError(t, index.Upsert(context.Background(), records))
	emb := &echoEmbedder{vectors: map[string][]float32{
		"what is my duty?": {1, 0, 0},
	}}
	svc, err := NewService(emb, index)
	require.NoError(t, err)
	return svc, index
}

func TestRetrieve(t *testing.T) {
	t.Run("Should return ranked contexts with citations", func(t *testing.T) {
		svc, _ := fixture(t)
		contexts, err := svc.Retrieve(context.Background(), "what is my duty?", "krishna", Options{TopK: 2})
		require.NoError(t, err)
		require.Len(t, contexts, 2)
		assert.Equal(t, "gita-247", contexts[0].ChunkID)
		assert.Equal(t, []string{"Bhagavad Gita 2.47"}, contexts[0].Citations)
		assert.GreaterOrEqual(t, contexts[0].Score, contexts[1].Score)
	})
	t.Run("Should apply the source filter after vector search", func(t *testing.T) {
		svc, _ := fixture(t)
		contexts, err := svc.Retrieve(context.Background(), "what is my duty?", "krishna", Options{
			TopK: 3, MinScore: 0.01, Source: "Upanishads",
		})
		require.NoError(t, err)
		require.Len(t, contexts, 1)
		assert.Equal(t, "upan-1", contexts[0].ChunkID)
	})
	t.Run("Should apply the key-term filter case-insensitively", func(t *testing.T) {
		svc, _ := fixture(t)
		contexts, err := svc.Retrieve(context.Background(), "what is my duty?", "krishna", Options{
			TopK: 3, MinScore: 0.01, KeyTerm: "Attachment",
		})
		require.NoError(t, err)
		require.Len(t, contexts, 1)
		assert.Equal(t, "gita-62", contexts[0].ChunkID)
	})
	t.Run("Should reject a blank query", func(t *testing.T) {
		svc, _ := fixture(t)
		_, err := svc.Retrieve(context.Background(), "  ", "krishna", Options{})
		require.Error(t, err)
	})
	t.Run("Should return nothing for an unknown partition", func(t *testing.T) {
		svc, _ := fixture(t)
		contexts, err := svc.Retrieve(context.Background(), "what is my duty?", "einstein", Options{})
		require.NoError(t, err)
		assert.Empty(t, contexts)
	})
	t.Run("Should bound oversized context text", func(t *testing.T) {
		index, err := vectordb.NewMemoryStore("")
		require.NoError(t, err)
		require.NoError(t, index.Upsert(context.Background(), []vectordb.Record{{
			ID: "long", Partition: "krishna",
			Text:      strings.Repeat("om ", 3000),
			Embedding: []float32{1, 0, 0},
		}}))
		emb := &echoEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
		svc, err := NewService(emb, index)
		require.NoError(t, err)
		contexts, err := svc.Retrieve(context.Background(), "q", "krishna", Options{})
		require.NoError(t, err)
		require.Len(t, contexts, 1)
		assert.LessOrEqual(t, len(contexts[0].Text), 4000)
	})
	t.Run("Should embed identical queries identically in the fallback", func(t *testing.T) {
		emb := embedder.NewHashEmbedder(16)
		a, err := emb.Embed(context.Background(), "what is dharma?")
		require.NoError(t, err)
		b, err := emb.Embed(context.Background(), "what is dharma?")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		c, err := emb.Embed(context.Background(), "different")
		require.NoError(t, err)
		assert.NotEqual(t, a, c)
	})
}
