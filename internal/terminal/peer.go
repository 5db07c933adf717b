// Package terminal holds a peer's application state. One goroutine owns
// the state; every read and mutation is a closure run on that goroutine.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go-pos-sync/internal/localstore"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/syncqueue"

	"github.com/google/uuid"
)

var (
	ErrClosed            = errors.New("terminal is closed")
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLedgerField       = errors.New("credit totals change only through payments and credit sales")
	ErrInvalidPin        = errors.New("invalid user or pin")
)

// Options configures a Peer.
type Options struct {
	PeerID  string
	Store   *localstore.Store
	Logger  *slog.Logger
	Clock   func() time.Time
	Printer Printer
}

// Printer prints receipts. It is never called from the state goroutine.
type Printer interface {
	PrintReceipt(ctx context.Context, tx models.Transaction) error
}

type Peer struct {
	id      string
	store   *localstore.Store
	queue   *syncqueue.Queue
	state   *models.Snapshot
	log     *slog.Logger
	now     func() time.Time
	printer Printer

	actions chan func()
	quit    chan struct{}
	stopped chan struct{}
}

// Open restores the peer's state from its store and starts the state loop.
func Open(opts Options) (*Peer, error) {
	if opts.Store == nil {
		return nil, errors.New("terminal: store is required")
	}
	p := &Peer{
		id:      opts.PeerID,
		store:   opts.Store,
		log:     opts.Logger,
		now:     opts.Clock,
		printer: opts.Printer,
		actions: make(chan func()),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.id == "" {
		p.id = "peer"
	}

	var err error
	if p.queue, err = syncqueue.Open(p.store); err != nil {
		return nil, err
	}
	if p.state, err = loadState(p.store); err != nil {
		return nil, err
	}
	p.log.Info("terminal state restored",
		"peer", p.id,
		"products", len(p.state.Products),
		"transactions", len(p.state.Transactions),
		"queued", p.queue.Len())

	go p.loop()
	return p, nil
}

func (p *Peer) ID() string { return p.id }

func (p *Peer) loop() {
	defer close(p.stopped)
	for {
		select {
		case fn := <-p.actions:
			fn()
		case <-p.quit:
			return
		}
	}
}

// do runs fn on the state goroutine and waits for it.
func (p *Peer) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case p.actions <- func() { errc <- fn() }:
	case <-p.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// mutate runs fn like do. When fn fails the in-memory state is put back
// as it was, so it keeps matching the store.
func (p *Peer) mutate(ctx context.Context, fn func() error) error {
	return p.do(ctx, func() error {
		saved := cloneState(p.state)
		if err := fn(); err != nil {
			p.state = saved
			return err
		}
		return nil
	})
}

// Close stops the state loop and closes the store.
func (p *Peer) Close() error {
	select {
	case <-p.quit:
		return nil
	default:
		close(p.quit)
	}
	<-p.stopped
	return p.store.Close()
}

func loadState(s *localstore.Store) (*models.Snapshot, error) {
	st := &models.Snapshot{}
	var err error
	if st.Products, err = localstore.LoadCollection[models.Product](s, models.CollectionProducts); err != nil {
		return nil, err
	}
	if st.Users, err = localstore.LoadCollection[models.User](s, models.CollectionUsers); err != nil {
		return nil, err
	}
	if st.Expenses, err = localstore.LoadCollection[models.Expense](s, models.CollectionExpenses); err != nil {
		return nil, err
	}
	if st.CreditCustomers, err = localstore.LoadCollection[models.CreditCustomer](s, models.CollectionCreditCustomers); err != nil {
		return nil, err
	}
	if st.Transactions, err = localstore.LoadCollection[models.Transaction](s, models.CollectionTransactions); err != nil {
		return nil, err
	}
	var cfg models.BusinessConfig
	found, err := s.Get(models.CollectionBusinessSetup, &cfg)
	if err != nil {
		return nil, err
	}
	if found {
		st.BusinessSetup = &cfg
	}
	return st, nil
}

// values collects the named collections keyed for the store.
func (p *Peer) values(collections ...string) (map[string]any, error) {
	out := make(map[string]any, len(collections))
	for _, c := range collections {
		switch c {
		case models.CollectionProducts:
			out[c] = nonNil(p.state.Products)
		case models.CollectionUsers:
			out[c] = nonNil(p.state.Users)
		case models.CollectionExpenses:
			out[c] = nonNil(p.state.Expenses)
		case models.CollectionCreditCustomers:
			out[c] = nonNil(p.state.CreditCustomers)
		case models.CollectionTransactions:
			out[c] = nonNil(p.state.Transactions)
		case models.CollectionBusinessSetup:
			if p.state.BusinessSetup != nil {
				out[c] = p.state.BusinessSetup
			}
		default:
			return nil, fmt.Errorf("unknown collection %q", c)
		}
	}
	return out, nil
}

// save writes the named collections back to the store in one transaction.
func (p *Peer) save(collections ...string) error {
	vals, err := p.values(collections...)
	if err != nil {
		return err
	}
	if err := p.store.PutMany(vals); err != nil {
		return fmt.Errorf("save %v: %w", collections, err)
	}
	return nil
}

// commit writes the named collections and queues the operations that ship
// them in one store transaction.
func (p *Peer) commit(collections []string, items ...queued) error {
	vals, err := p.values(collections...)
	if err != nil {
		return err
	}
	ops := make([]models.SyncOperation, 0, len(items))
	for _, it := range items {
		op, err := models.NewOperation(it.kind, it.data)
		if err != nil {
			return err
		}
		op.OpID = p.id + "-" + uuid.NewString()
		ops = append(ops, op)
	}
	return p.queue.EnqueueWith(vals, ops...)
}

type queued struct {
	kind models.OperationKind
	data any
}

// newID returns a timestamp-derived id such as "txn-1714560000000-3f2a9c1d".
func (p *Peer) newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, p.now().UnixMilli(), uuid.NewString()[:8])
}

func (p *Peer) stamp() time.Time { return p.now().UTC() }

func cloneState(st *models.Snapshot) *models.Snapshot {
	out := &models.Snapshot{
		Products:        slices.Clone(st.Products),
		Users:           slices.Clone(st.Users),
		Expenses:        slices.Clone(st.Expenses),
		CreditCustomers: slices.Clone(st.CreditCustomers),
		Transactions:    slices.Clone(st.Transactions),
	}
	if st.BusinessSetup != nil {
		cfg := *st.BusinessSetup
		out.BusinessSetup = &cfg
	}
	return out
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func indexOf[T models.Record](list []T, id string) int {
	return slices.IndexFunc(list, func(r T) bool { return r.RecordID() == id })
}

// patch overlays fields onto list[id], stamps updatedAt and validates. It
// returns the field map to ship, which includes the stamp.
func patch[T models.Record](list []T, id string, fields map[string]any, now time.Time) (int, T, map[string]any, error) {
	var zero T
	i := indexOf(list, id)
	if i < 0 {
		return -1, zero, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	fields = maps.Clone(fields)
	if fields == nil {
		fields = map[string]any{}
	}
	delete(fields, "id")
	fields["updatedAt"] = now
	rec, err := models.Overlay(list[i], fields)
	if err != nil {
		return -1, zero, nil, err
	}
	if err := rec.Validate(); err != nil {
		return -1, zero, nil, err
	}
	return i, rec, fields, nil
}
