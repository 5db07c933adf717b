// Package syncer moves a peer's queued operations to the back-office and
// folds the authoritative snapshot back into local state.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go-pos-sync/internal/client"
	"go-pos-sync/internal/merge"
	"go-pos-sync/internal/models"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNotConfigured  = errors.New("back-office address or access key not configured")
	ErrNotConfirmed   = errors.New("full sync overwrites back-office data and must be confirmed")
)

// maxAuthBackoff caps how many ticks are skipped after repeated 401s.
const maxAuthBackoff = 32

// Transport is the back-office API as seen by a peer.
type Transport interface {
	Push(ctx context.Context, ops []models.SyncOperation) (*models.BatchResponse, error)
	Snapshot(ctx context.Context) (*models.Snapshot, error)
	FullSync(ctx context.Context, bundle *models.FullSyncBundle) (*models.BatchResponse, error)
	Ping(ctx context.Context) error
}

// Replica is the peer state the engine reads and writes.
type Replica interface {
	PendingOps(ctx context.Context) ([]models.SyncOperation, error)
	CommitOps(ctx context.Context, n int) error
	MergeSnapshot(ctx context.Context, server *models.Snapshot) (merge.Report, error)
	FullBundle(ctx context.Context) (*models.FullSyncBundle, error)
}

// ReceiptPrinter is the local printing collaborator.
type ReceiptPrinter interface {
	PrintReceipt(ctx context.Context, tx models.Transaction) error
}

// Status is a point-in-time view of the engine for operators.
type Status struct {
	Online       bool
	AuthFailed   bool
	LastSync     time.Time
	LastError    string
	LastPushed   int
	LastFailed   int
	SkippedTicks int
}

type Engine struct {
	replica   Replica
	transport Transport
	printer   ReceiptPrinter
	interval  time.Duration
	log       *slog.Logger

	running atomic.Bool
	trigger chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	status  Status
	backoff int // ticks still to skip
	strikes int // consecutive auth failures
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithReceiptPrinter(p ReceiptPrinter) Option { return func(e *Engine) { e.printer = p } }

// New builds an engine. A nil transport means the peer has no resolved
// back-office yet; background syncs are then no-ops.
func New(replica Replica, transport Transport, interval time.Duration, opts ...Option) *Engine {
	e := &Engine{
		replica:   replica,
		transport: transport,
		interval:  interval,
		log:       slog.Default(),
		trigger:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) Online() bool { return e.Status().Online }

// Trigger asks Run for an early tick.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is cancelled. Each tick runs in its own goroutine so
// a slow network never delays the timer; overlapping ticks are skipped.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	e.log.Info("sync scheduler started", "interval", e.interval)

	e.spawnTick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			e.log.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			e.spawnTick(ctx)
		case <-e.trigger:
			e.spawnTick(ctx)
		}
	}
}

func (e *Engine) spawnTick(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.tick(ctx)
	}()
}

func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	if e.backoff > 0 {
		e.backoff--
		e.status.SkippedTicks++
		e.mu.Unlock()
		e.log.Debug("sync tick skipped after auth failure")
		return
	}
	e.mu.Unlock()

	err := e.SyncOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		e.log.Debug("sync tick skipped, previous sync still running")
	case errors.Is(err, context.Canceled):
	default:
		// Background failures are retried on the next tick.
		e.log.Warn("sync tick failed", "err", err)
	}
}

// SyncOnce runs Push then Pull under the single-flight guard.
func (e *Engine) SyncOnce(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer e.running.Store(false)

	if e.transport == nil {
		return nil
	}
	if err := e.connect(ctx); err != nil {
		return err
	}
	if _, err := e.push(ctx); err != nil {
		return err
	}
	_, err := e.pull(ctx)
	return err
}

// Push ships the queue now and, when anything was delivered, pulls
// straight away. It returns the number of operations delivered.
func (e *Engine) Push(ctx context.Context) (int, error) {
	if e.transport == nil {
		return 0, ErrNotConfigured
	}
	if !e.running.CompareAndSwap(false, true) {
		return 0, ErrSyncInProgress
	}
	defer e.running.Store(false)

	if err := e.connect(ctx); err != nil {
		return 0, err
	}
	n, err := e.push(ctx)
	if err != nil || n == 0 {
		return n, err
	}
	_, err = e.pull(ctx)
	return n, err
}

// Pull fetches the authoritative snapshot and merges it now.
func (e *Engine) Pull(ctx context.Context) (merge.Report, error) {
	if e.transport == nil {
		return merge.Report{}, ErrNotConfigured
	}
	if !e.running.CompareAndSwap(false, true) {
		return merge.Report{}, ErrSyncInProgress
	}
	defer e.running.Store(false)

	if err := e.connect(ctx); err != nil {
		return merge.Report{}, err
	}
	return e.pull(ctx)
}

// FullSync posts every local collection to the back-office. confirm must be
// true; the operator accepts that back-office records get overwritten.
func (e *Engine) FullSync(ctx context.Context, confirm bool) (*models.BatchResponse, error) {
	if !confirm {
		return nil, ErrNotConfirmed
	}
	if e.transport == nil {
		return nil, ErrNotConfigured
	}
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	bundle, err := e.replica.FullBundle(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := e.transport.FullSync(ctx, bundle)
	if err != nil {
		e.fail(err)
		return nil, err
	}
	e.log.Info("full sync pushed", "records", len(resp.Results), "failed", resp.Failed())
	return resp, nil
}

func (e *Engine) connect(ctx context.Context) error {
	if err := e.transport.Ping(ctx); err != nil {
		e.fail(err)
		return fmt.Errorf("back-office unreachable: %w", err)
	}
	e.mu.Lock()
	e.status.Online = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) push(ctx context.Context) (int, error) {
	ops, err := e.replica.PendingOps(ctx)
	if err != nil {
		return 0, fmt.Errorf("read sync queue: %w", err)
	}
	if len(ops) == 0 {
		return 0, nil
	}

	resp, err := e.transport.Push(ctx, ops)
	if err != nil {
		// The queue stays as it was; the same batch goes again next time.
		e.fail(err)
		return 0, fmt.Errorf("push %d operations: %w", len(ops), err)
	}
	if err := e.replica.CommitOps(ctx, len(ops)); err != nil {
		return 0, fmt.Errorf("commit pushed operations: %w", err)
	}

	failed := resp.Failed()
	for _, r := range resp.Results {
		if r.Status != models.ResultOK {
			e.log.Warn("operation rejected by back-office", "op_id", r.OpID, "type", r.Type, "err", r.Error)
		}
	}
	e.log.Info("sync queue pushed", "operations", len(ops), "failed", failed)

	e.mu.Lock()
	e.status.LastPushed = len(ops)
	e.status.LastFailed = failed
	e.mu.Unlock()

	e.printReceipts(ops)
	return len(ops), nil
}

func (e *Engine) pull(ctx context.Context) (merge.Report, error) {
	snap, err := e.transport.Snapshot(ctx)
	if err != nil {
		e.fail(err)
		return merge.Report{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	rep, err := e.replica.MergeSnapshot(ctx, snap)
	if err != nil {
		return rep, fmt.Errorf("merge snapshot: %w", err)
	}
	if n := rep.Discarded(); n > 0 {
		e.log.Warn("discarded server records without id", "count", n)
	}
	for name, st := range rep.Collections {
		if st.Changed() {
			e.log.Debug("collection merged", "collection", name, "stats", st.String())
		}
	}

	e.mu.Lock()
	e.status.LastSync = time.Now()
	e.status.LastError = ""
	e.status.AuthFailed = false
	e.strikes = 0
	e.mu.Unlock()
	return rep, nil
}

// fail records err. Unreachable servers mark the peer offline; rejected
// keys are reported as auth failures and back off exponentially.
func (e *Engine) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.LastError = err.Error()

	var se *client.StatusError
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		e.status.AuthFailed = true
		e.strikes++
		e.backoff = min(1<<min(e.strikes-1, 5), maxAuthBackoff)
		e.log.Error("auth_failed", "err", err, "skip_ticks", e.backoff)
	case errors.As(err, &se):
		e.log.Warn("back-office error", "status", se.Code, "path", se.Path)
	default:
		if e.status.Online {
			e.log.Warn("peer offline", "err", err)
		}
		e.status.Online = false
	}
}

func (e *Engine) printReceipts(ops []models.SyncOperation) {
	if e.printer == nil {
		return
	}
	for _, op := range ops {
		if op.Type != models.OpNewTransaction {
			continue
		}
		var tx models.Transaction
		if err := json.Unmarshal(op.Data, &tx); err != nil {
			continue
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.printer.PrintReceipt(ctx, tx); err != nil {
				e.log.Warn("receipt print failed", "transaction", tx.ID, "err", err)
			}
		}()
	}
}
