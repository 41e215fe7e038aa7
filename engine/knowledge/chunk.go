package knowledge

import (
	"time"

	"github.com/vimarsh-ai/vimarsh/engine/knowledge/vectordb"
	"github.com/vimarsh-ai/vimarsh/engine/store"
)

// Chunk is one corpus passage. Chunks are append-only on the serving
// path; corpus updates arrive as batch swaps.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Section   string    `json:"section,omitempty"`
	KeyTerms  []string  `json:"key_terms,omitempty"`
	Citations []string  `json:"citations,omitempty"`
	Quality   float64   `json:"quality"`
	Embedding []float32 `json:"embedding"`
	Partition string    `json:"partition"`
	CreatedAt time.Time `json:"created_at"`
}

// Record converts the chunk to its index representation. Key terms and
// citations travel in metadata so retrieval can filter and cite without
// loading the document store.
func (c *Chunk) Record() vectordb.Record {
	metadata := map[string]any{
		"source":  c.Source,
		"quality": c.Quality,
	}
	if c.Section != "" {
		metadata["section"] = c.Section
	}
	if len(c.KeyTerms) > 0 {
		metadata["key_terms"] = toAnySlice(c.KeyTerms)
	}
	if len(c.Citations) > 0 {
		metadata["citations"] = toAnySlice(c.Citations)
	}
	return vectordb.Record{
		ID:        c.ID,
		Partition: c.Partition,
		Text:      c.Text,
		Embedding: c.Embedding,
		Metadata:  metadata,
	}
}

// ChunkFromDocument parses a spiritual-text document into a chunk.
func ChunkFromDocument(doc *store.Document) Chunk {
	c := Chunk{
		ID:        doc.ID,
		Partition: doc.PartitionKey,
		Text:      stringField(doc.Data, "text"),
		Source:    stringField(doc.Data, "source"),
		Section:   stringField(doc.Data, "section"),
		KeyTerms:  stringSlice(doc.Data, "key_terms"),
		Citations: stringSlice(doc.Data, "citations"),
	}
	if q, ok := doc.Data["quality"].(float64); ok {
		c.Quality = q
	}
	if c.Partition == "" {
		c.Partition = stringField(doc.Data, "partition")
	}
	if raw, ok := doc.Data["embedding"].([]any); ok {
		c.Embedding = make([]float32, 0, len(raw))
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				c.Embedding = append(c.Embedding, float32(f))
			}
		}
	}
	if raw := stringField(doc.Data, "created_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			c.CreatedAt = ts
		}
	}
	return c
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func stringSlice(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
