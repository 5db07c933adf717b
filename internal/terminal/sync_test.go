package terminal

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go-pos-sync/internal/ai"
	"go-pos-sync/internal/auth"
	"go-pos-sync/internal/cache"
	"go-pos-sync/internal/client"
	"go-pos-sync/internal/database"
	"go-pos-sync/internal/handlers"
	"go-pos-sync/internal/localstore"
	"go-pos-sync/internal/logging"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/processor"
	"go-pos-sync/internal/server"
	"go-pos-sync/internal/storage"
	"go-pos-sync/internal/syncer"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const officeKey = "office-key"

func init() { gin.SetMode(gin.TestMode) }

// startOffice runs a real back office on SQLite behind httptest.
func startOffice(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(dir, "office.db"))
	require.NoError(t, err)

	log := logging.Discard()
	proc := processor.New(db, processor.WithLogger(log))
	h := &handlers.Handler{
		DB:        db,
		Proc:      proc,
		Cache:     cache.Nop{},
		Uploader:  storage.Disk{Dir: filepath.Join(dir, "uploads")},
		Tokens:    auth.NewIssuer("secret", time.Hour),
		Assistant: ai.NewAssistant(db, proc, "", log),
		Log:       log,
	}
	srv := httptest.NewServer(server.NewRouter(h, server.Options{Keys: auth.NewKeyVerifier(officeKey, "")}))
	t.Cleanup(srv.Close)
	return srv, db
}

type station struct {
	peer   *Peer
	engine *syncer.Engine
}

// newStation opens a peer whose clock is fixed at clock and whose engine
// talks to url.
func newStation(t *testing.T, id, url, key string, clock time.Time) *station {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), id+".db"))
	require.NoError(t, err)
	p, err := Open(Options{PeerID: id, Store: store, Logger: logging.Discard(), Clock: func() time.Time { return clock }})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	c := client.New(url, key, client.WithTimeout(5*time.Second))
	return &station{peer: p, engine: syncer.New(p, c, time.Hour, syncer.WithLogger(logging.Discard()))}
}

func (s *station) queueLen(t *testing.T) int {
	t.Helper()
	n, err := s.peer.QueueLen(context.Background())
	require.NoError(t, err)
	return n
}

func (s *station) snapshot(t *testing.T) *models.Snapshot {
	t.Helper()
	snap, err := s.peer.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestSaleOnOnePeerReachesTheOther(t *testing.T) {
	srv, db := startOffice(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, db.Create(&models.Product{ID: "p1", Name: "Sugar 1kg", Price: 250, Stock: 10, UpdatedAt: base.Add(-time.Hour)}).Error)

	a := newStation(t, "mobile", srv.URL, officeKey, base)
	b := newStation(t, "desktop", srv.URL, officeKey, base.Add(time.Minute))
	require.NoError(t, a.engine.SyncOnce(ctx))
	require.NoError(t, b.engine.SyncOnce(ctx))

	// Peer A sells while the back office is unreachable.
	down := httptest.NewServer(nil)
	down.Close()
	offline := syncer.New(a.peer, client.New(down.URL, officeKey, client.WithTimeout(time.Second)), time.Hour, syncer.WithLogger(logging.Discard()))

	t1, err := a.peer.RecordSale(ctx, Sale{Lines: []CartLine{{ProductID: "p1", Quantity: 2}}, PaymentMethod: models.PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, 500.0, t1.Total)
	assert.Equal(t, 2, a.queueLen(t), "transaction plus its stock movement")

	assert.Error(t, offline.SyncOnce(ctx))
	assert.False(t, offline.Online())
	assert.Equal(t, 2, a.queueLen(t), "nothing is dropped while offline")

	// Back online: one tick delivers the queue.
	require.NoError(t, a.engine.SyncOnce(ctx))
	assert.Zero(t, a.queueLen(t))

	var stored models.Transaction
	require.NoError(t, db.First(&stored, "id = ?", t1.ID).Error)
	assert.Equal(t, 500.0, stored.Total)

	// Peer B only pulls.
	_, err = b.engine.Pull(ctx)
	require.NoError(t, err)
	snapB := b.snapshot(t)
	require.Len(t, snapB.Transactions, 1)
	assert.Equal(t, t1.ID, snapB.Transactions[0].ID)
	assert.Equal(t, 8, snapB.Products[0].Stock)
}

func TestConcurrentCreditPaymentsConverge(t *testing.T) {
	srv, db := startOffice(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, db.Create(&models.CreditCustomer{
		ID: "c1", Name: "Amina", TotalCredit: 1000, Balance: 1000, Transactions: []string{}, UpdatedAt: base.Add(-time.Hour),
	}).Error)

	a := newStation(t, "mobile", srv.URL, officeKey, base)
	b := newStation(t, "desktop", srv.URL, officeKey, base.Add(time.Minute))
	require.NoError(t, a.engine.SyncOnce(ctx))
	require.NoError(t, b.engine.SyncOnce(ctx))

	// Both peers take a payment before either syncs.
	_, err := a.peer.RecordCreditPayment(ctx, "c1", 400)
	require.NoError(t, err)
	_, err = b.peer.RecordCreditPayment(ctx, "c1", 700)
	require.NoError(t, err)

	require.NoError(t, a.engine.SyncOnce(ctx))
	var c models.CreditCustomer
	require.NoError(t, db.First(&c, "id = ?", "c1").Error)
	assert.Equal(t, 400.0, c.PaidAmount)
	assert.Equal(t, 600.0, c.Balance)

	require.NoError(t, b.engine.SyncOnce(ctx))
	require.NoError(t, db.First(&c, "id = ?", "c1").Error)
	assert.Equal(t, 1100.0, c.PaidAmount)
	assert.Equal(t, 0.0, c.Balance)

	// Both peers end on the office's totals.
	_, err = a.engine.Pull(ctx)
	require.NoError(t, err)
	for _, s := range []*station{a, b} {
		got := s.snapshot(t).CreditCustomers[0]
		assert.Equal(t, 1100.0, got.PaidAmount)
		assert.Equal(t, 0.0, got.Balance)
	}
}

func TestEditDeliveredAfterConcurrentSaleConverges(t *testing.T) {
	srv, db := startOffice(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, db.Create(&models.Product{ID: "p1", Name: "Sugar 1kg", Price: 250, Stock: 10, UpdatedAt: base.Add(-time.Hour)}).Error)

	a := newStation(t, "mobile", srv.URL, officeKey, base)
	b := newStation(t, "desktop", srv.URL, officeKey, base.Add(time.Minute))
	require.NoError(t, a.engine.SyncOnce(ctx))
	require.NoError(t, b.engine.SyncOnce(ctx))

	// A reprices while offline; B sells and syncs first.
	_, err := a.peer.UpdateProduct(ctx, "p1", map[string]any{"price": 300.0})
	require.NoError(t, err)
	_, err = b.peer.RecordSale(ctx, Sale{Lines: []CartLine{{ProductID: "p1", Quantity: 2}}, PaymentMethod: models.PaymentCash})
	require.NoError(t, err)
	require.NoError(t, b.engine.SyncOnce(ctx))

	require.NoError(t, a.engine.SyncOnce(ctx))
	require.NoError(t, b.engine.SyncOnce(ctx))

	var office models.Product
	require.NoError(t, db.First(&office, "id = ?", "p1").Error)
	assert.Equal(t, 300.0, office.Price)
	assert.Equal(t, 8, office.Stock)

	for name, s := range map[string]*station{"A": a, "B": b} {
		got := s.snapshot(t).Products
		require.Len(t, got, 1, name)
		assert.Equal(t, 300.0, got[0].Price, name)
		assert.Equal(t, 8, got[0].Stock, name)
	}
}

func TestCreditSaleSurvivesRedelivery(t *testing.T) {
	srv, db := startOffice(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, db.Create(&models.Product{ID: "p1", Name: "Rice", Price: 100, Stock: 20, UpdatedAt: base.Add(-time.Hour)}).Error)
	require.NoError(t, db.Create(&models.CreditCustomer{ID: "c1", Name: "Amina", Transactions: []string{}, UpdatedAt: base.Add(-time.Hour)}).Error)

	a := newStation(t, "desktop", srv.URL, officeKey, base)
	require.NoError(t, a.engine.SyncOnce(ctx))

	tx, err := a.peer.RecordSale(ctx, Sale{
		Lines:            []CartLine{{ProductID: "p1", Quantity: 3}},
		PaymentMethod:    models.PaymentCredit,
		CreditCustomerID: "c1",
	})
	require.NoError(t, err)

	// Deliver the same batch twice, as a lost response would.
	ops, err := a.peer.PendingOps(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 4)
	c := client.New(srv.URL, officeKey)
	for range 2 {
		resp, err := c.Push(ctx, ops)
		require.NoError(t, err)
		assert.Zero(t, resp.Failed())
	}

	var cust models.CreditCustomer
	require.NoError(t, db.First(&cust, "id = ?", "c1").Error)
	assert.Equal(t, 300.0, cust.TotalCredit)
	assert.Equal(t, 300.0, cust.Balance)
	assert.Equal(t, []string{tx.ID}, cust.Transactions)

	var prod models.Product
	require.NoError(t, db.First(&prod, "id = ?", "p1").Error)
	assert.Equal(t, 17, prod.Stock)

	var n int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestLocalEditsAndDeletesReachTheOffice(t *testing.T) {
	srv, db := startOffice(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	a := newStation(t, "desktop", srv.URL, officeKey, base)
	prod, err := a.peer.AddProduct(ctx, models.Product{Name: "Tea", Price: 30, Stock: 5})
	require.NoError(t, err)
	gone, err := a.peer.AddProduct(ctx, models.Product{Name: "Old stock", Price: 1})
	require.NoError(t, err)
	require.NoError(t, a.engine.SyncOnce(ctx))

	_, err = a.peer.UpdateProduct(ctx, prod.ID, map[string]any{"price": 35.0})
	require.NoError(t, err)
	require.NoError(t, a.peer.DeleteProduct(ctx, gone.ID))
	n, err := a.engine.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var products []models.Product
	require.NoError(t, db.Find(&products).Error)
	require.Len(t, products, 1)
	assert.Equal(t, 35.0, products[0].Price)
	assert.Len(t, a.snapshot(t).Products, 1, "the pull after push does not bring the deleted product back")
}

func TestFullSyncSeedsAnEmptyOffice(t *testing.T) {
	srv, db := startOffice(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	a := newStation(t, "desktop", srv.URL, officeKey, base)
	seed(t, a.peer, shop())

	_, err := a.engine.FullSync(ctx, false)
	assert.ErrorIs(t, err, syncer.ErrNotConfirmed)

	resp, err := a.engine.FullSync(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, resp.Failed())

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var cfg models.BusinessConfig
	require.NoError(t, db.First(&cfg, "id = ?", models.BusinessSetupID).Error)
	assert.Equal(t, "Duka", cfg.BusinessName)
}

func TestWrongKeyIsReportedAsAuthFailure(t *testing.T) {
	srv, _ := startOffice(t)
	ctx := context.Background()

	a := newStation(t, "desktop", srv.URL, "stale-key", time.Now().UTC())
	_, err := a.peer.AddExpense(ctx, models.Expense{Description: "Water", Amount: 50})
	require.NoError(t, err)

	err = a.engine.SyncOnce(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	st := a.engine.Status()
	assert.True(t, st.AuthFailed)
	assert.True(t, st.Online, "the office answered, it is only the key that is wrong")
	assert.Equal(t, 1, a.queueLen(t))
}
