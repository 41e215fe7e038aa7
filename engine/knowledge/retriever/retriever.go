package retriever

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/knowledge/embedder"
	"github.com/vimarsh-ai/vimarsh/engine/knowledge/vectordb"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const (
	defaultTopK     = 5
	defaultMinScore = 0.3

	// maxContextChars bounds the text handed to prompt rendering so one
	// oversized chunk cannot blow the model's input window.
	maxContextChars = 4000
)

// Options tunes one retrieval call. Source and KeyTerm are the optional
// secondary filters applied after vector search.
type Options struct {
	TopK     int
	MinScore float64
	Source   string
	KeyTerm  string
}

// Context is one retrieved passage ready for prompt rendering.
type Context struct {
	ChunkID   string
	Text      string
	Source    string
	Section   string
	Citations []string
	Score     float64
}

// Service embeds the query and searches one corpus partition.
type Service struct {
	embedder embedder.Embedder
	index    vectordb.Store
	tracer   trace.Tracer
}

func NewService(emb embedder.Embedder, index vectordb.Store) (*Service, error) {
	if emb == nil {
		return nil, core.NewError(nil, core.CodeConfigMissing, "retriever embedder is required", nil)
	}
	if index == nil {
		return nil, core.NewError(nil, core.CodeConfigMissing, "retriever vector index is required", nil)
	}
	return &Service{
		embedder: emb,
		index:    index,
		tracer:   otel.Tracer("vimarsh.knowledge.retriever"),
	}, nil
}

// Retrieve embeds the query, searches the partition, applies the
// secondary filters, and returns ranked bounded contexts.
func (s *Service) Retrieve(
	ctx context.Context,
	query, partition string,
	opts Options,
) ([]Context, error) {
	if strings.TrimSpace(query) == "" {
		return nil, core.NewError(nil, core.CodeInvalidFormat, "retrieval query is required", nil)
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "vimarsh.knowledge.retrieve", trace.WithAttributes(
		attribute.String("partition", partition),
	))
	defer span.End()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	minScore := opts.MinScore
	if minScore == 0 {
		minScore = defaultMinScore
	}
	matches, err := s.index.Search(ctx, vector, vectordb.SearchOptions{
		TopK:      topK,
		MinScore:  minScore,
		Partition: partition,
	})
	if err != nil {
		return nil, err
	}
	contexts := buildContexts(matches, opts)
	logger.FromContext(ctx).Debug("knowledge retrieval executed",
		"partition", partition,
		"matches", len(matches),
		"contexts", len(contexts),
		"elapsed", time.Since(start))
	return contexts, nil
}

// buildContexts applies the secondary filters and the character bound.
// Matches arrive ranked from the index; order is preserved.
func buildContexts(matches []vectordb.Match, opts Options) []Context {
	out := make([]Context, 0, len(matches))
	for _, m := range matches {
		c := Context{
			ChunkID:   m.ID,
			Text:      m.Text,
			Score:     m.Score,
			Source:    metadataString(m.Metadata, "source"),
			Section:   metadataString(m.Metadata, "section"),
			Citations: metadataStrings(m.Metadata, "citations"),
		}
		if opts.Source != "" && !strings.EqualFold(c.Source, opts.Source) {
			continue
		}
		if opts.KeyTerm != "" && !hasKeyTerm(m.Metadata, opts.KeyTerm) {
			continue
		}
		if len(c.Text) > maxContextChars {
			c.Text = c.Text[:maxContextChars]
		}
		out = append(out, c)
	}
	return out
}

func hasKeyTerm(metadata map[string]any, term string) bool {
	for _, t := range metadataStrings(metadata, "key_terms") {
		if strings.EqualFold(t, term) {
			return true
		}
	}
	return false
}

func metadataString(metadata map[string]any, key string) string {
	s, _ := metadata[key].(string)
	return s
}

func metadataStrings(metadata map[string]any, key string) []string {
	raw, ok := metadata[key].([]any)
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
