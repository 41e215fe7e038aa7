package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

const lockAcquireTimeout = 5 * time.Second

// LocalStore keeps one JSON array file per collection under a directory.
// Files are read whole and rewritten whole; each rewrite happens under a
// per-collection mutex plus an OS file lock so concurrent processes
// serialize instead of corrupting the array.
type LocalStore struct {
	dir   string
	mu    sync.Mutex
	files map[string]*collectionFile
}

type collectionFile struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, ErrUnavailable(err, "init")
	}
	return &LocalStore{dir: dir, files: make(map[string]*collectionFile)}, nil
}

func (s *LocalStore) file(collection string) *collectionFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[collection]; ok {
		return f
	}
	path := filepath.Join(s.dir, collection+".json")
	f := &collectionFile{path: path, lock: flock.New(path + ".lock")}
	s.files[collection] = f
	return f
}

func (s *LocalStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	docs, err := s.List(ctx, collection, Query{})
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID == id {
			return &docs[i], nil
		}
	}
	return nil, ErrNotFound(collection, id)
}

func (s *LocalStore) List(_ context.Context, collection string, q Query) ([]Document, error) {
	f := s.file(collection)
	f.mu.Lock()
	defer f.mu.Unlock()
	docs, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(docs))
	for i := range docs {
		if q.matches(&docs[i]) {
			out = append(out, docs[i])
		}
	}
	return out, nil
}

func (s *LocalStore) Upsert(ctx context.Context, collection string, doc *Document) error {
	doc.Normalize()
	return s.rewrite(ctx, collection, func(docs []Document) []Document {
		for i := range docs {
			if docs[i].ID == doc.ID {
				docs[i] = *doc
				return docs
			}
		}
		return append(docs, *doc)
	})
}

func (s *LocalStore) Delete(ctx context.Context, collection, id string) error {
	return s.rewrite(ctx, collection, func(docs []Document) []Document {
		out := docs[:0]
		for i := range docs {
			if docs[i].ID != id {
				out = append(out, docs[i])
			}
		}
		return out
	})
}

func (s *LocalStore) Close(context.Context) error {
	return nil
}

// rewrite performs the whole read-modify-write cycle under both locks.
func (s *LocalStore) rewrite(ctx context.Context, collection string, mutate func([]Document) []Document) error {
	f := s.file(collection)
	f.mu.Lock()
	defer f.mu.Unlock()
	lockCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()
	locked, err := f.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil || !locked {
		return ErrConflict(collection)
	}
	defer f.lock.Unlock()
	docs, err := f.read()
	if err != nil {
		return err
	}
	return f.write(mutate(docs))
}

func (f *collectionFile) read() ([]Document, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ErrUnavailable(err, "read")
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, core.NewError(err, core.CodeStorageUnavailable,
			fmt.Sprintf("collection file %q is corrupt", f.path), nil)
	}
	docs := make([]Document, 0, len(raw))
	for _, body := range raw {
		docs = append(docs, documentFromBody(body))
	}
	return docs, nil
}

func (f *collectionFile) write(docs []Document) error {
	raw := make([]map[string]any, 0, len(docs))
	for i := range docs {
		docs[i].Normalize()
		raw = append(raw, docs[i].Data)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return ErrUnavailable(err, "encode")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return ErrUnavailable(err, "write")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return ErrUnavailable(err, "commit")
	}
	return nil
}

func documentFromBody(body map[string]any) Document {
	doc := Document{Data: body}
	if id, ok := body["id"].(string); ok {
		doc.ID = id
	}
	if typ, ok := body["type"].(string); ok {
		doc.Type = typ
	}
	if pk, ok := body["partition_key"].(string); ok {
		doc.PartitionKey = pk
	}
	return doc
}
