package terminal

import (
	"context"

	"go-pos-sync/internal/merge"
	"go-pos-sync/internal/models"
)

// The methods below let the sync engine reach the peer state through the
// state goroutine.

func (p *Peer) PendingOps(ctx context.Context) ([]models.SyncOperation, error) {
	var ops []models.SyncOperation
	err := p.do(ctx, func() error {
		ops = p.queue.Drain()
		return nil
	})
	return ops, err
}

func (p *Peer) CommitOps(ctx context.Context, n int) error {
	return p.do(ctx, func() error { return p.queue.Commit(n) })
}

// MergeSnapshot folds the authoritative snapshot into local state and
// writes every merged collection back to the store.
func (p *Peer) MergeSnapshot(ctx context.Context, server *models.Snapshot) (merge.Report, error) {
	var rep merge.Report
	err := p.mutate(ctx, func() error {
		merged, r := merge.Snapshots(p.state, server)
		p.state, rep = merged, r
		return p.save(
			models.CollectionProducts,
			models.CollectionUsers,
			models.CollectionExpenses,
			models.CollectionCreditCustomers,
			models.CollectionTransactions,
			models.CollectionBusinessSetup,
		)
	})
	return rep, err
}

// FullBundle copies every local collection for a full sync.
func (p *Peer) FullBundle(ctx context.Context) (*models.FullSyncBundle, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &models.FullSyncBundle{
		Products:      snap.Products,
		Users:         snap.Users,
		Expenses:      snap.Expenses,
		Customers:     snap.CreditCustomers,
		Transactions:  snap.Transactions,
		BusinessSetup: snap.BusinessSetup,
	}, nil
}

// Snapshot returns a copy of the local state.
func (p *Peer) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	var out *models.Snapshot
	err := p.do(ctx, func() error {
		out = cloneState(p.state)
		return nil
	})
	return out, err
}

func (p *Peer) QueueLen(ctx context.Context) (int, error) {
	var n int
	err := p.do(ctx, func() error {
		n = p.queue.Len()
		return nil
	})
	return n, err
}

// LowStock lists products at or under their reorder level.
func (p *Peer) LowStock(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	err := p.do(ctx, func() error {
		for _, prod := range p.state.Products {
			if prod.LowStock() {
				out = append(out, prod)
			}
		}
		return nil
	})
	return out, err
}
