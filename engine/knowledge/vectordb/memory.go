package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/store"
)

// memoryStore is a partitioned flat index. Suitable up to roughly 1e5
// chunks per partition; every search scans one partition. An optional
// snapshot path persists the records as plain JSON across restarts.
type memoryStore struct {
	mu         sync.RWMutex
	path       string
	partitions map[string]*partition
}

type partition struct {
	dimension int
	records   map[string]Record
}

// NewMemoryStore builds the in-process index. Path may be empty for a
// purely ephemeral index.
func NewMemoryStore(path string) (Store, error) {
	s := &memoryStore{path: path, partitions: make(map[string]*partition)}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, store.ErrUnavailable(err, "init")
		}
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Upsert ingests records. The first record of a partition fixes its
// dimensionality; later mismatches and duplicate ids are rejected before
// anything is written, so a bad batch leaves the index untouched.
func (s *memoryStore) Upsert(_ context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make(map[string]struct{}, len(records))
	for i := range records {
		rec := records[i]
		part := s.partitions[rec.Partition]
		if part != nil {
			if len(rec.Embedding) != part.dimension {
				return errDimension(rec.ID, len(rec.Embedding), part.dimension)
			}
			if _, exists := part.records[rec.ID]; exists {
				return errDuplicate(rec.Partition, rec.ID)
			}
		}
		key := rec.Partition + "/" + rec.ID
		if _, dup := batch[key]; dup {
			return errDuplicate(rec.Partition, rec.ID)
		}
		batch[key] = struct{}{}
	}
	for i := range records {
		rec := records[i]
		part := s.partitions[rec.Partition]
		if part == nil {
			part = &partition{dimension: len(rec.Embedding), records: make(map[string]Record)}
			s.partitions[rec.Partition] = part
		}
		part.records[rec.ID] = Record{
			ID:        rec.ID,
			Partition: rec.Partition,
			Text:      rec.Text,
			Embedding: normalize(rec.Embedding),
			Metadata:  core.CloneMap(rec.Metadata),
		}
	}
	return s.persistLocked()
}

func (s *memoryStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part, ok := s.partitions[opts.Partition]
	if !ok {
		return nil, nil
	}
	if len(query) != part.dimension {
		return nil, errDimension("query", len(query), part.dimension)
	}
	unit := normalize(query)
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	candidates := make([]Match, 0, len(part.records))
	for _, rec := range part.records {
		if !metadataMatches(rec.Metadata, opts.Filters) {
			continue
		}
		score := cosineSimilarity(rec.Embedding, unit)
		if score < opts.MinScore {
			continue
		}
		candidates = append(candidates, Match{
			ID:       rec.ID,
			Score:    score,
			Text:     rec.Text,
			Metadata: core.CloneMap(rec.Metadata),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score == candidates[j].Score {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *memoryStore) Delete(_ context.Context, partitionTag string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	part, ok := s.partitions[partitionTag]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(part.records, id)
	}
	return s.persistLocked()
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func (s *memoryStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return store.ErrUnavailable(err, "read")
	}
	var records []snapshotRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return store.ErrUnavailable(err, "decode")
	}
	for _, rec := range records {
		part := s.partitions[rec.Partition]
		if part == nil {
			part = &partition{dimension: len(rec.Embedding), records: make(map[string]Record)}
			s.partitions[rec.Partition] = part
		}
		part.records[rec.ID] = Record(rec)
	}
	return nil
}

func (s *memoryStore) persistLocked() error {
	if s.path == "" {
		return nil
	}
	var records []snapshotRecord
	for _, part := range s.partitions {
		for _, rec := range part.records {
			records = append(records, snapshotRecord(rec))
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Partition == records[j].Partition {
			return records[i].ID < records[j].ID
		}
		return records[i].Partition < records[j].Partition
	})
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return store.ErrUnavailable(err, "encode")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return store.ErrUnavailable(err, "write")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return store.ErrUnavailable(err, "write")
	}
	return nil
}

type snapshotRecord struct {
	ID        string         `json:"id"`
	Partition string         `json:"partition"`
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
