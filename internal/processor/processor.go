// Package processor applies peer mutations to the authoritative
// collections. Every operation is an idempotent upsert or delete so that
// at-least-once delivery from the peers converges.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go-pos-sync/internal/ledger"
	"go-pos-sync/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Processor is safe for concurrent use; each operation runs in its own
// database transaction.
type Processor struct {
	db     *gorm.DB
	log    *slog.Logger
	now    func() time.Time
	notify func(collections []string)
}

type Option func(*Processor)

func WithLogger(l *slog.Logger) Option { return func(p *Processor) { p.log = l } }

func WithClock(now func() time.Time) Option { return func(p *Processor) { p.now = now } }

// WithNotifier registers a callback fired after a batch changed data.
func WithNotifier(fn func(collections []string)) Option {
	return func(p *Processor) { p.notify = fn }
}

func New(db *gorm.DB, opts ...Option) *Processor {
	p := &Processor{db: db, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply runs every operation independently. A failing operation is logged
// and reported in its result but never stops the rest of the batch.
func (p *Processor) Apply(ctx context.Context, ops []models.SyncOperation) []models.OperationResult {
	results := make([]models.OperationResult, 0, len(ops))
	var touched []string

	for i, op := range ops {
		res := models.OperationResult{OpID: op.OpID, Index: i, Type: op.Type, Status: models.ResultOK}
		if res.OpID == "" {
			res.OpID = uuid.NewString()
		}

		collection, err := p.ApplyOne(ctx, op)
		if err != nil {
			res.Status = models.ResultFailed
			res.Error = err.Error()
			p.log.Warn("operation dropped", "index", i, "type", op.Type, "op_id", res.OpID, "err", err)
		} else if !slices.Contains(touched, collection) {
			touched = append(touched, collection)
		}
		results = append(results, res)
	}

	if len(touched) > 0 && p.notify != nil {
		p.notify(touched)
	}
	p.log.Info("batch applied", "operations", len(ops), "failed", len(ops)-countOK(results))
	return results
}

// ApplyOne applies a single operation and returns the collection it touched.
func (p *Processor) ApplyOne(ctx context.Context, op models.SyncOperation) (string, error) {
	r, ok := routes[op.Type]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op.Type)
	}
	pl, err := parsePayload(r, op.Data)
	if err != nil {
		return r.collection, err
	}
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return p.dispatch(tx, r, pl)
	})
	if err != nil {
		return r.collection, fmt.Errorf("%s %s: %w", op.Type, pl.id, err)
	}
	return r.collection, nil
}

func (p *Processor) dispatch(tx *gorm.DB, r route, pl payload) error {
	if r.action == actionDelete {
		switch r.collection {
		case models.CollectionProducts:
			return remove[models.Product](tx, pl.id)
		case models.CollectionUsers:
			return remove[models.User](tx, pl.id)
		case models.CollectionCreditCustomers:
			return remove[models.CreditCustomer](tx, pl.id)
		}
		return fmt.Errorf("%w: delete not supported for %s", ErrUnknownOperation, r.collection)
	}

	now := p.now().UTC()
	onInsert := map[string]any{"createdAt": now}
	if r.action == actionUpdate || r.action == actionSingleton {
		if _, ok := pl.fields["updatedAt"]; !ok {
			pl.fields["updatedAt"] = now
		}
	}

	switch r.collection {
	case models.CollectionProducts:
		c := change[models.Product]{id: pl.id, fields: pl.fields, onInsert: onInsert, stamp: now}
		if pl.stock != 0 {
			fresh, err := claimEntry(tx, pl.entry, r.collection, pl.id, now)
			if err != nil {
				return err
			}
			if fresh {
				c.mutate = func(prod *models.Product) error {
					prod.Stock += pl.stock
					bump(&prod.UpdatedAt, now)
					return nil
				}
			}
		}
		return upsert(tx, c)

	case models.CollectionUsers:
		onInsert["isActive"] = true
		return upsert(tx, change[models.User]{id: pl.id, fields: pl.fields, onInsert: onInsert, stamp: now})

	case models.CollectionExpenses:
		onInsert["date"] = now
		return upsert(tx, change[models.Expense]{id: pl.id, fields: pl.fields, onInsert: onInsert, stamp: now})

	case models.CollectionCreditCustomers:
		apply := !pl.credit.IsZero()
		moved := false
		if apply && (pl.credit.Paid != 0 || pl.credit.Credit != 0) {
			fresh, err := claimEntry(tx, pl.entry, r.collection, pl.id, now)
			if err != nil {
				return err
			}
			if !fresh {
				// Money already moved; the id append is still safe to repeat.
				pl.credit.Paid, pl.credit.Credit = 0, 0
			}
			moved = fresh
		}
		return upsert(tx, change[models.CreditCustomer]{
			id: pl.id, fields: pl.fields, onInsert: onInsert, stamp: now,
			mutate: func(c *models.CreditCustomer) error {
				if apply {
					if err := ledger.Apply(c, pl.credit); err != nil {
						return err
					}
				}
				if moved {
					bump(&c.UpdatedAt, now)
				}
				ledger.Recompute(c)
				return nil
			},
		})

	case models.CollectionTransactions:
		onInsert["timestamp"] = now
		onInsert["status"] = models.StatusCompleted
		written, err := insertOnce(tx, change[models.Transaction]{id: pl.id, fields: pl.fields, onInsert: onInsert})
		if err == nil && !written {
			p.log.Debug("transaction already stored", "id", pl.id)
		}
		return err

	case models.CollectionBusinessSetup:
		return upsert(tx, change[models.BusinessConfig]{id: pl.id, fields: pl.fields, stamp: now})
	}
	return fmt.Errorf("%w: collection %s", ErrUnknownOperation, r.collection)
}

// ApplyFull routes every record of a full-sync bundle through the same
// upsert path as the matching add operation.
func (p *Processor) ApplyFull(ctx context.Context, bundle *models.FullSyncBundle) ([]models.OperationResult, error) {
	var ops []models.SyncOperation
	add := func(kind models.OperationKind, rec any) error {
		op, err := models.NewOperation(kind, rec)
		if err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	}

	if bundle.BusinessSetup != nil {
		if err := add(models.OpUpdateBusinessSetup, bundle.BusinessSetup); err != nil {
			return nil, err
		}
	}
	for _, r := range bundle.Products {
		if err := add(models.OpAddProduct, r); err != nil {
			return nil, err
		}
	}
	for _, r := range bundle.Users {
		if err := add(models.OpAddUser, r); err != nil {
			return nil, err
		}
	}
	for _, r := range bundle.Expenses {
		if err := add(models.OpAddExpense, r); err != nil {
			return nil, err
		}
	}
	for _, r := range bundle.Customers {
		if err := add(models.OpAddCreditCustomer, r); err != nil {
			return nil, err
		}
	}
	for _, r := range bundle.Transactions {
		if err := add(models.OpNewTransaction, r); err != nil {
			return nil, err
		}
	}

	p.log.Info("full sync received", "records", len(ops))
	return p.Apply(ctx, ops), nil
}

// bump moves a record's updatedAt up to now after a delta changed it. The
// result differs from every peer's copy, so it must win their next merge.
func bump(updatedAt *time.Time, now time.Time) {
	if now.After(*updatedAt) {
		*updatedAt = now
	}
}

func countOK(results []models.OperationResult) int {
	n := 0
	for _, r := range results {
		if r.Status == models.ResultOK {
			n++
		}
	}
	return n
}
