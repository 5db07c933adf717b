// Package syncqueue holds a peer's pending operations in FIFO order until
// the back-office confirms delivery.
package syncqueue

import (
	"fmt"
	"slices"

	"go-pos-sync/internal/localstore"
	"go-pos-sync/internal/models"
)

// Queue is persisted to the local store after every mutation. It performs
// no deduplication; delivery is at-least-once and the back-office applies
// operations idempotently.
type Queue struct {
	store *localstore.Store
	ops   []models.SyncOperation
}

// Open restores the queue saved in store.
func Open(store *localstore.Store) (*Queue, error) {
	ops, err := localstore.LoadCollection[models.SyncOperation](store, localstore.KeyQueue)
	if err != nil {
		return nil, fmt.Errorf("restore sync queue: %w", err)
	}
	return &Queue{store: store, ops: ops}, nil
}

// Enqueue appends op at the tail.
func (q *Queue) Enqueue(ops ...models.SyncOperation) error {
	return q.EnqueueWith(nil, ops...)
}

// EnqueueWith appends ops and writes values under their store keys in the
// same store transaction, so a record change is never durable without the
// operations that ship it.
func (q *Queue) EnqueueWith(values map[string]any, ops ...models.SyncOperation) error {
	next := append(slices.Clip(q.ops), ops...)
	all := make(map[string]any, len(values)+1)
	for k, v := range values {
		all[k] = v
	}
	all[localstore.KeyQueue] = next
	if err := q.store.PutMany(all); err != nil {
		return fmt.Errorf("persist sync queue: %w", err)
	}
	q.ops = next
	return nil
}

// Drain returns the pending operations without removing them.
func (q *Queue) Drain() []models.SyncOperation {
	return slices.Clone(q.ops)
}

// Commit removes the first n operations. n larger than the queue empties it.
func (q *Queue) Commit(n int) error {
	if n <= 0 {
		return nil
	}
	n = min(n, len(q.ops))
	next := slices.Clone(q.ops[n:])
	if err := q.save(next); err != nil {
		return err
	}
	q.ops = next
	return nil
}

func (q *Queue) Len() int { return len(q.ops) }

func (q *Queue) save(ops []models.SyncOperation) error {
	if err := localstore.SaveCollection(q.store, localstore.KeyQueue, ops); err != nil {
		return fmt.Errorf("persist sync queue: %w", err)
	}
	return nil
}
