package store

import (
	"context"
	"fmt"

	"github.com/vimarsh-ai/vimarsh/engine/core"
)

// Collections persisted by the serving path. Local files carry the same
// names under the storage directory (e.g. vimarsh-db/conversations.json).
const (
	CollectionSpiritualTexts = "spiritual-texts"
	CollectionConversations  = "conversations"
)

// Record type discriminators. Heterogeneous collections stay queryable
// because every record carries one of these in its "type" field.
const (
	TypeSpiritualText     = "spiritual_text"
	TypeConversation      = "conversation"
	TypeUsageTracking     = "usage_tracking"
	TypeUserStats         = "user_stats"
	TypePersonalityConfig = "personality_config"
	TypePromptTemplate    = "prompt_template"
)

// Document is one logical record in a collection. Data holds the full
// record body; ID, Type, and PartitionKey are mirrored into it on write.
type Document struct {
	ID           string
	Type         string
	PartitionKey string
	Data         map[string]any
}

// Normalize mirrors the envelope fields into the record body so local
// JSON arrays and remote rows stay self-describing.
func (d *Document) Normalize() {
	if d.Data == nil {
		d.Data = make(map[string]any)
	}
	d.Data["id"] = d.ID
	d.Data["type"] = d.Type
	if d.PartitionKey != "" {
		d.Data["partition_key"] = d.PartitionKey
	}
}

// Query filters List results. Zero values match everything.
type Query struct {
	Type         string
	PartitionKey string
}

func (q Query) matches(doc *Document) bool {
	if q.Type != "" && doc.Type != q.Type {
		return false
	}
	if q.PartitionKey != "" && doc.PartitionKey != q.PartitionKey {
		return false
	}
	return true
}

// Store is the logical collection API shared by the local JSON store,
// the remote document store, and the dual-store composition.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	Upsert(ctx context.Context, collection string, doc *Document) error
	Delete(ctx context.Context, collection, id string) error
	Close(ctx context.Context) error
}

// ErrNotFound builds the typed miss error for a collection/id pair.
func ErrNotFound(collection, id string) error {
	return core.NewError(nil, core.CodeNotFound,
		fmt.Sprintf("document %q not found in %q", id, collection),
		map[string]any{"collection": collection, "id": id})
}

// ErrUnavailable wraps a write failure as StorageUnavailable.
func ErrUnavailable(err error, op string) error {
	return core.NewError(err, core.CodeStorageUnavailable, "storage "+op+" failed", nil)
}

// ErrConflict signals a concurrent rewrite detected on a local collection file.
func ErrConflict(collection string) error {
	return core.NewError(nil, core.CodeStorageConflict,
		fmt.Sprintf("concurrent rewrite detected on collection %q", collection),
		map[string]any{"collection": collection})
}
