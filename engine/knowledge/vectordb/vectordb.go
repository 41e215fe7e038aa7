package vectordb

import (
	"context"
	"math"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

const defaultTopK = 5

// Provider enumerates the supported index backends.
type Provider string

const (
	ProviderMemory Provider = "memory"
	ProviderRemote Provider = "remote"
)

// Record is one chunk persisted to the index. Partition is the
// personality or domain namespace; vectors never match across partitions.
type Record struct {
	ID        string
	Partition string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// SearchOptions controls similarity search execution.
type SearchOptions struct {
	TopK      int
	MinScore  float64
	Partition string
	Filters   map[string]string
}

// Match is one similarity search result.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Store is the shared contract for the in-process and remote indexes;
// the retrieval pipeline never knows which is in use.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Delete(ctx context.Context, partition string, ids []string) error
	Close(ctx context.Context) error
}

// errDimension builds the typed rejection for a dimensionality mismatch.
func errDimension(id string, got, want int) error {
	return core.NewError(nil, core.CodeInvalidFormat,
		"embedding dimension does not match the partition",
		map[string]any{"id": id, "got": got, "want": want})
}

// errDuplicate builds the typed rejection for an id already present.
func errDuplicate(partition, id string) error {
	return core.NewError(nil, core.CodeStorageConflict,
		"chunk id already exists in partition",
		map[string]any{"partition": partition, "id": id})
}

// cosineSimilarity assumes both vectors are unit-normalized, so the dot
// product is the cosine.
func cosineSimilarity(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// normalize returns a unit-length copy of the vector. Zero vectors come
// back unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return append([]float32(nil), v...)
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func metadataMatches(metadata map[string]any, filters map[string]string) bool {
	for key, want := range filters {
		got, ok := metadata[key].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}
