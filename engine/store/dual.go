package store

import (
	"context"

	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

// Mode selects which physical stores back the logical collection API.
type Mode string

const (
	// ModeLocalOnly serves everything from the JSON files (development).
	ModeLocalOnly Mode = "local-only"
	// ModeRemotePrimary treats the remote store as the durability source;
	// the local mirror is best-effort and reconciled by the transaction
	// manager.
	ModeRemotePrimary Mode = "remote-primary"
)

// DualStore composes the local JSON store with the remote document store.
type DualStore struct {
	mode   Mode
	local  Store
	remote Store
}

func NewDualStore(mode Mode, local, remote Store) *DualStore {
	if remote == nil {
		mode = ModeLocalOnly
	}
	return &DualStore{mode: mode, local: local, remote: remote}
}

func (s *DualStore) Mode() Mode {
	return s.mode
}

// Local exposes the mirror for reconciliation checks.
func (s *DualStore) Local() Store {
	return s.local
}

func (s *DualStore) primary() Store {
	if s.mode == ModeRemotePrimary {
		return s.remote
	}
	return s.local
}

func (s *DualStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return s.primary().Get(ctx, collection, id)
}

func (s *DualStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	return s.primary().List(ctx, collection, q)
}

// Upsert is durable once the primary accepts the write. In remote-primary
// mode the local mirror failure is logged and swallowed.
func (s *DualStore) Upsert(ctx context.Context, collection string, doc *Document) error {
	if err := s.primary().Upsert(ctx, collection, doc); err != nil {
		return err
	}
	if s.mode == ModeRemotePrimary {
		if err := s.local.Upsert(ctx, collection, doc); err != nil {
			logger.FromContext(ctx).Warn("local mirror upsert failed",
				"collection", collection, "id", doc.ID, "error", err)
		}
	}
	return nil
}

func (s *DualStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.primary().Delete(ctx, collection, id); err != nil {
		return err
	}
	if s.mode == ModeRemotePrimary {
		if err := s.local.Delete(ctx, collection, id); err != nil {
			logger.FromContext(ctx).Warn("local mirror delete failed",
				"collection", collection, "id", id, "error", err)
		}
	}
	return nil
}

func (s *DualStore) Close(ctx context.Context) error {
	if err := s.local.Close(ctx); err != nil {
		return err
	}
	if s.remote != nil {
		return s.remote.Close(ctx)
	}
	return nil
}
