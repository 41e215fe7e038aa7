package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const defaultEmbeddingModel = "text-embedding-004"

// Embedder turns query text into a vector matching the corpus partitions.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// googleEmbedder is the provider-backed path.
type googleEmbedder struct {
	impl      embeddings.Embedder
	dimension int
}

// NewGoogleEmbedder builds the Gemini embedding client.
func NewGoogleEmbedder(ctx context.Context, apiKey string, dimension int) (Embedder, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultEmbeddingModel(defaultEmbeddingModel),
	)
	if err != nil {
		return nil, core.NewError(err, core.CodeConfigInvalid, "embedding client init failed", nil)
	}
	impl, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, core.NewError(err, core.CodeConfigInvalid, "embedding adapter init failed", nil)
	}
	return &googleEmbedder{impl: impl, dimension: dimension}, nil
}

func (e *googleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, core.NewError(err, core.CodeProviderTransport, "query embedding failed", nil)
	}
	return vec, nil
}

func (e *googleEmbedder) Dimension() int {
	return e.dimension
}

// hashEmbedder is the deterministic fallback when no API key is
// configured. Identical texts embed identically, so retrieval tests and
// offline development keep working; semantic quality is not a goal here.
type hashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) Embedder {
	return &hashEmbedder{dimension: dimension}
}

func (e *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	seed := sha256.Sum256([]byte(text))
	var block [32]byte
	copy(block[:], seed[:])
	for i := 0; i < e.dimension; i++ {
		if i%8 == 0 && i > 0 {
			block = sha256.Sum256(block[:])
		}
		bits := binary.BigEndian.Uint32(block[(i%8)*4:])
		vec[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
	}
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := 1 / math.Sqrt(sum)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec, nil
}

func (e *hashEmbedder) Dimension() int {
	return e.dimension
}

// New selects the provider path when an API key exists and otherwise
// degrades to the deterministic fallback with a warning.
func New(ctx context.Context, apiKey string, dimension int) Embedder {
	if apiKey == "" {
		logger.FromContext(ctx).Warn("no embedding API key configured, using deterministic fallback")
		return NewHashEmbedder(dimension)
	}
	emb, err := NewGoogleEmbedder(ctx, apiKey, dimension)
	if err != nil {
		logger.FromContext(ctx).Warn("embedding client init failed, using deterministic fallback",
			"error", err)
		return NewHashEmbedder(dimension)
	}
	return emb
}
