package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/store"
	"github.com/vimarsh-ai/vimarsh/pkg/logger"
)

// Intent is the kind of pending operation inside a transaction.
type Intent string

const (
	IntentCreate Intent = "create"
	IntentUpdate Intent = "update"
	IntentDelete Intent = "delete"
)

// State is the lifecycle of a transaction.
type State string

const (
	StatePending    State = "pending"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateFailed     State = "failed"
)

type operation struct {
	collection string
	intent     Intent
	doc        *store.Document

	// Captured at apply time for compensating rollback.
	preImage   *store.Document
	preExisted bool
	applied    bool
}

// Transaction groups multi-store writes into one atomic unit. Operations
// apply in enqueue order; any failure compensates in reverse order from
// the captured pre-images.
type Transaction struct {
	ID        string
	state     State
	ops       []operation
	createdAt time.Time
}

func (t *Transaction) State() State {
	return t.state
}

func (t *Transaction) Create(collection string, doc *store.Document) {
	t.ops = append(t.ops, operation{collection: collection, intent: IntentCreate, doc: doc})
}

func (t *Transaction) Update(collection string, doc *store.Document) {
	t.ops = append(t.ops, operation{collection: collection, intent: IntentUpdate, doc: doc})
}

func (t *Transaction) Delete(collection string, doc *store.Document) {
	t.ops = append(t.ops, operation{collection: collection, intent: IntentDelete, doc: doc})
}

// Manager owns transaction execution against the dual store and the
// persistent outcome log. The rollback is compensating, not two-phase:
// remote failures dominate durability and the log is the audit contract.
type Manager struct {
	store store.Store
	log   *Log

	mu        sync.Mutex
	committed map[string]struct{}
}

func NewManager(st store.Store, log *Log) *Manager {
	return &Manager{store: st, log: log, committed: make(map[string]struct{})}
}

// Begin opens a new pending transaction with a sortable id.
func (m *Manager) Begin() *Transaction {
	return &Transaction{
		ID:        ksuid.New().String(),
		state:     StatePending,
		createdAt: time.Now().UTC(),
	}
}

// Commit applies the enqueued operations in order. At most one commit per
// transaction id ever reaches the stores; replays are rejected.
func (m *Manager) Commit(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	if _, done := m.committed[tx.ID]; done {
		m.mu.Unlock()
		return core.NewError(nil, core.CodeStorageConflict,
			fmt.Sprintf("transaction %s already committed", tx.ID), nil)
	}
	m.committed[tx.ID] = struct{}{}
	m.mu.Unlock()

	for i := range tx.ops {
		if err := m.apply(ctx, &tx.ops[i]); err != nil {
			m.rollback(ctx, tx, err)
			return err
		}
	}
	tx.state = StateCommitted
	m.record(ctx, tx, "")
	return nil
}

func (m *Manager) apply(ctx context.Context, op *operation) error {
	pre, err := m.store.Get(ctx, op.collection, op.doc.ID)
	switch {
	case err == nil:
		op.preImage = pre
		op.preExisted = true
	case core.IsCode(err, core.CodeNotFound):
		op.preExisted = false
	default:
		return err
	}
	switch op.intent {
	case IntentCreate, IntentUpdate:
		err = m.store.Upsert(ctx, op.collection, op.doc)
	case IntentDelete:
		err = m.store.Delete(ctx, op.collection, op.doc.ID)
	default:
		err = core.NewError(nil, core.CodeInternal, "unknown transaction intent", nil)
	}
	if err != nil {
		return err
	}
	op.applied = true
	return nil
}

// rollback undoes applied operations in reverse order. A rollback failure
// escalates the transaction to failed so the operator can reconcile.
func (m *Manager) rollback(ctx context.Context, tx *Transaction, cause error) {
	log := logger.FromContext(ctx).With("transaction_id", tx.ID)
	log.Error("transaction failed, compensating", "error", cause)
	for i := len(tx.ops) - 1; i >= 0; i-- {
		op := &tx.ops[i]
		if !op.applied {
			continue
		}
		var err error
		if op.preExisted {
			err = m.store.Upsert(ctx, op.collection, op.preImage)
		} else {
			err = m.store.Delete(ctx, op.collection, op.doc.ID)
		}
		if err != nil {
			tx.state = StateFailed
			log.Error("rollback failed, operator intervention required",
				"collection", op.collection, "id", op.doc.ID, "error", err)
			m.record(ctx, tx, fmt.Sprintf("rollback failed: %v (cause: %v)", err, cause))
			return
		}
	}
	tx.state = StateRolledBack
	m.record(ctx, tx, cause.Error())
}

func (m *Manager) record(ctx context.Context, tx *Transaction, errMsg string) {
	if m.log == nil {
		return
	}
	entry := Entry{
		ID:        tx.ID,
		State:     tx.state,
		CreatedAt: tx.createdAt,
		Error:     errMsg,
	}
	if tx.state == StateCommitted {
		entry.CommittedAt = time.Now().UTC()
	}
	for i := range tx.ops {
		entry.Operations = append(entry.Operations, EntryOperation{
			Collection: tx.ops[i].collection,
			Intent:     tx.ops[i].intent,
			DocumentID: tx.ops[i].doc.ID,
		})
	}
	if err := m.log.Append(&entry); err != nil {
		logger.FromContext(ctx).Error("failed to append transaction log",
			"transaction_id", tx.ID, "error", err)
	}
}

// AtomicTokenOperation is the sole usage-persistence path on the request
// path: the usage record and its recomputed stats land together or not at
// all. Extra documents (the conversation audit record) join the same scope.
func (m *Manager) AtomicTokenOperation(
	ctx context.Context,
	usage *store.Document,
	stats *store.Document,
	extra ...*store.Document,
) error {
	tx := m.Begin()
	tx.Create(store.CollectionConversations, usage)
	tx.Update(store.CollectionConversations, stats)
	for _, doc := range extra {
		tx.Create(store.CollectionConversations, doc)
	}
	return m.Commit(ctx, tx)
}
