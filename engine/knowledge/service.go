package knowledge

import (
	"context"

	"github.com/vimarsh-ai/vimarsh/engine/knowledge/vectordb"
	"github.com/vimarsh-ai/vimarsh/engine/store"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

const ingestBatchSize = 100

// Service owns the vector index lifecycle: startup corpus ingest and
// explicit reloads. Chunks arrive pre-embedded in the document store;
// there is no embedding step on the ingest path.
type Service struct {
	index vectordb.Store
	docs  store.Store
}

func NewService(index vectordb.Store, docs store.Store) *Service {
	return &Service{index: index, docs: docs}
}

// Index exposes the underlying store for retrieval wiring.
func (s *Service) Index() vectordb.Store {
	return s.index
}

// LoadCorpus ingests every spiritual-text document into the vector
// index. Chunks without an embedding are skipped with a warning; a
// rejected batch (dimension mismatch, duplicate id) aborts the load.
func (s *Service) LoadCorpus(ctx context.Context) (int, error) {
	docs, err := s.docs.List(ctx, store.CollectionSpiritualTexts, store.Query{
		Type: store.TypeSpiritualText,
	})
	if err != nil {
		return 0, err
	}
	log := logger.FromContext(ctx)
	batch := make([]vectordb.Record, 0, ingestBatchSize)
	loaded := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.index.Upsert(ctx, batch); err != nil {
			return err
		}
		loaded += len(batch)
		batch = batch[:0]
		return nil
	}
	for i := range docs {
		chunk := ChunkFromDocument(&docs[i])
		if len(chunk.Embedding) == 0 {
			log.Warn("skipping chunk without embedding", "id", chunk.ID)
			continue
		}
		batch = append(batch, chunk.Record())
		if len(batch) >= ingestBatchSize {
			if err := flush(); err != nil {
				return loaded, err
			}
		}
	}
	if err := flush(); err != nil {
		return loaded, err
	}
	log.Info("corpus loaded into vector index", "chunks", loaded)
	return loaded, nil
}

// Reload deletes the previously loaded ids and swaps the corpus back in.
func (s *Service) Reload(ctx context.Context) (int, error) {
	docs, err := s.docs.List(ctx, store.CollectionSpiritualTexts, store.Query{
		Type: store.TypeSpiritualText,
	})
	if err != nil {
		return 0, err
	}
	byPartition := make(map[string][]string)
	for i := range docs {
		chunk := ChunkFromDocument(&docs[i])
		byPartition[chunk.Partition] = append(byPartition[chunk.Partition], chunk.ID)
	}
	for partition, ids := range byPartition {
		if err := s.index.Delete(ctx, partition, ids); err != nil {
			return 0, err
		}
	}
	return s.LoadCorpus(ctx)
}
