package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-pos-sync/internal/ai"
	"go-pos-sync/internal/auth"
	"go-pos-sync/internal/database"
	"go-pos-sync/internal/handlers"
	"go-pos-sync/internal/logging"
	"go-pos-sync/internal/models"
	"go-pos-sync/internal/notify"
	"go-pos-sync/internal/processor"
	"go-pos-sync/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const syncKey = "sync-key"

var clock = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func init() { gin.SetMode(gin.TestMode) }

type memCache struct {
	mu       sync.Mutex
	products []models.Product
	warm     bool
}

func (m *memCache) Products(context.Context) ([]models.Product, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products, m.warm, nil
}

func (m *memCache) SetProducts(_ context.Context, p []models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products, m.warm = p, true
	return nil
}

func (m *memCache) Invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products, m.warm = nil, false
	return nil
}

type office struct {
	router http.Handler
	db     *gorm.DB
	hub    *notify.Hub
	cache  *memCache
	tokens *auth.Issuer
	dir    string
}

func newOffice(t *testing.T) *office {
	t.Helper()
	dir := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(dir, "office.db"))
	require.NoError(t, err)

	log := logging.Discard()
	hub := notify.NewHub(log)
	t.Cleanup(hub.Close)
	c := &memCache{}
	proc := processor.New(db,
		processor.WithLogger(log),
		processor.WithClock(func() time.Time { return clock }),
		processor.WithNotifier(handlers.ChangeNotifier(c, hub, log)),
	)
	tokens := auth.NewIssuer("jwt-secret", time.Hour)
	h := &handlers.Handler{
		DB:         db,
		Proc:       proc,
		Cache:      c,
		Uploader:   storage.Disk{Dir: filepath.Join(dir, "uploads"), BaseURL: "http://office:8080"},
		Tokens:     tokens,
		Assistant:  ai.NewAssistant(db, proc, "", log),
		Hub:        hub,
		InstanceID: "OFFICE-TEST",
		Log:        log,
		Now:        func() time.Time { return clock },
	}
	r := NewRouter(h, Options{
		Keys:      auth.NewKeyVerifier(syncKey, ""),
		UploadDir: filepath.Join(dir, "uploads"),
	})
	return &office{router: r, db: db, hub: hub, cache: c, tokens: tokens, dir: dir}
}

func (o *office) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	o.router.ServeHTTP(w, req)
	return w
}

func op(t *testing.T, kind models.OperationKind, data any) models.SyncOperation {
	t.Helper()
	o, err := models.NewOperation(kind, data)
	require.NoError(t, err)
	return o
}

func TestHealthIsPublic(t *testing.T) {
	o := newOffice(t)
	w := o.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"instanceId":"OFFICE-TEST"`)
	assert.Contains(t, w.Body.String(), `"status":"online"`)
}

func TestAPIRequiresKey(t *testing.T) {
	o := newOffice(t)
	assert.Equal(t, http.StatusUnauthorized, o.do(t, http.MethodGet, "/api/sync", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, o.do(t, http.MethodGet, "/api/sync", "wrong", nil).Code)
	assert.Equal(t, http.StatusOK, o.do(t, http.MethodGet, "/api/sync", syncKey, nil).Code)
}

func TestPushReportsPerOperationAndSucceeds(t *testing.T) {
	o := newOffice(t)
	batch := []models.SyncOperation{
		op(t, models.OpAddProduct, models.Product{ID: "p1", Name: "Milk", Price: 60, Stock: 10}),
		op(t, models.OpAddProduct, models.Product{ID: "p2", Name: "", Price: 10}), // no name
		op(t, models.OpAddExpense, models.Expense{ID: "e1", Description: "Rent", Amount: 5000, Date: clock}),
	}
	batch[0].OpID = "desktop-1"

	w := o.do(t, http.MethodPost, "/api/sync", syncKey, batch)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "desktop-1", resp.Results[0].OpID)
	assert.Equal(t, models.ResultFailed, resp.Results[1].Status)
	assert.Equal(t, 1, resp.Failed())

	w = o.do(t, http.MethodGet, "/api/sync", syncKey, nil)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "Milk", snap.Products[0].Name)
	require.Len(t, snap.Expenses, 1)
	assert.Empty(t, snap.Transactions)
}

func TestPushRejectsNonArrayBody(t *testing.T) {
	o := newOffice(t)
	w := o.do(t, http.MethodPost, "/api/sync", syncKey, `{"type":"add-product"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactionShortcut(t *testing.T) {
	o := newOffice(t)
	tx := models.Transaction{
		ID: "txn-1", Timestamp: clock, Items: []models.LineItem{{ProductID: "p1", Name: "Milk", Quantity: 2, Price: 60}},
		Subtotal: 120, Total: 120, PaymentMethod: models.PaymentCash, Status: models.StatusCompleted,
	}
	w := o.do(t, http.MethodPost, "/api/transaction", syncKey, tx)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, o.do(t, http.MethodPost, "/api/transaction", syncKey, tx).Code, "redelivery is harmless")

	var n int64
	require.NoError(t, o.db.Model(&models.Transaction{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	tx.ID, tx.PaymentMethod = "txn-2", "cheque"
	w = o.do(t, http.MethodPost, "/api/transaction", syncKey, tx)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusBadRequest, o.do(t, http.MethodPost, "/api/transaction", syncKey, "{").Code)
}

func TestFullSyncOverwrites(t *testing.T) {
	o := newOffice(t)
	require.NoError(t, o.db.Create(&models.Product{ID: "p1", Name: "Old", Price: 1}).Error)

	bundle := models.FullSyncBundle{
		Products:  []models.Product{{ID: "p1", Name: "Milk", Price: 60, UpdatedAt: clock}},
		Users:     []models.User{{ID: "u1", Name: "Wanjiru", Pin: "1234", Role: models.RoleAdmin, IsActive: true}},
		Customers: []models.CreditCustomer{{ID: "c1", Name: "Amina", TotalCredit: 100, Balance: 100}},
	}
	w := o.do(t, http.MethodPost, "/api/sync/full", syncKey, bundle)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 3)
	assert.Zero(t, resp.Failed())

	var p models.Product
	require.NoError(t, o.db.First(&p, "id = ?", "p1").Error)
	assert.Equal(t, "Milk", p.Name)
}

func TestLoginAndRoles(t *testing.T) {
	o := newOffice(t)
	require.NoError(t, o.db.Create(&[]models.User{
		{ID: "u1", Name: "Wanjiru", Pin: "1234", Role: models.RoleAdmin, IsActive: true},
		{ID: "u2", Name: "Otieno", Pin: "9999", Role: models.RoleCashier, IsActive: true},
	}).Error)

	w := o.do(t, http.MethodPost, "/login", "", gin.H{"user": "Wanjiru", "pin": "0000"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = o.do(t, http.MethodPost, "/login", "", gin.H{"user": "Wanjiru", "pin": "1234"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, models.RoleAdmin, login.Role)

	assert.Equal(t, http.StatusOK, o.do(t, http.MethodGet, "/api/reports?start=2026-05-01", login.Token, nil).Code)
	assert.Equal(t, http.StatusForbidden, o.do(t, http.MethodGet, "/api/reports", syncKey, nil).Code)

	cashier, err := o.tokens.GenerateToken("u2", models.RoleCashier)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, o.do(t, http.MethodGet, "/api/reports", cashier, nil).Code)
	assert.Equal(t, http.StatusForbidden, o.do(t, http.MethodPost, "/api/ask", cashier, gin.H{"message": "hi"}).Code)

	w = o.do(t, http.MethodPost, "/api/ask", login.Token, gin.H{"message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no Gemini key configured")
}

func TestReports(t *testing.T) {
	o := newOffice(t)
	admin, err := o.tokens.GenerateToken("u1", models.RoleAdmin)
	require.NoError(t, err)

	require.NoError(t, o.db.Create(&models.Product{ID: "p1", Name: "Bread", Category: "Bakery", Price: 55, Stock: 2, MinStock: 5}).Error)
	require.NoError(t, o.db.Create(&models.Transaction{
		ID: "t1", Timestamp: clock, Items: []models.LineItem{{ProductID: "p1", Name: "Bread", Quantity: 2, Price: 55}},
		Subtotal: 110, Total: 110, PaymentMethod: models.PaymentMpesa, Status: models.StatusCompleted,
	}).Error)

	w := o.do(t, http.MethodGet, "/api/reports?start=2026-05-01&end=2026-05-01", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report handlers.ReportData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 110.0, report.Sales.TotalRevenue)
	assert.Equal(t, 110.0, report.Sales.ByMethod[models.PaymentMpesa])
	require.Len(t, report.LowStock, 1)

	assert.Equal(t, http.StatusBadRequest, o.do(t, http.MethodGet, "/api/reports?start=2026-05-02&end=2026-05-01", admin, nil).Code)

	w = o.do(t, http.MethodGet, "/api/reports/valuation", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var val handlers.ValuationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &val))
	assert.Equal(t, 110.0, val.GrandTotal)
}

func TestProductsCacheAside(t *testing.T) {
	o := newOffice(t)
	require.NoError(t, o.db.Create(&models.Product{ID: "p1", Name: "Milk", Price: 60}).Error)

	w := o.do(t, http.MethodGet, "/api/products", syncKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	w = o.do(t, http.MethodGet, "/api/products", syncKey, nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	update := op(t, models.OpUpdateProduct, models.Update{ID: "p1", Updates: map[string]any{"price": 65}})
	require.Equal(t, http.StatusOK, o.do(t, http.MethodPost, "/api/sync", syncKey, []models.SyncOperation{update}).Code)

	w = o.do(t, http.MethodGet, "/api/products", syncKey, nil)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"), "product writes invalidate the cache")
	var products []models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	require.Len(t, products, 1)
	assert.Equal(t, 65.0, products[0].Price)
}

func upload(t *testing.T, o *office, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x89PNG fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("x-api-key", syncKey)
	w := httptest.NewRecorder()
	o.router.ServeHTTP(w, req)
	return w
}

func TestUploadImage(t *testing.T) {
	o := newOffice(t)

	w := upload(t, o, "milk.png")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.URL, "http://office:8080/uploads/"))

	// The stored file is served back under /uploads.
	path := strings.TrimPrefix(body.URL, "http://office:8080")
	assert.Equal(t, http.StatusOK, o.do(t, http.MethodGet, path, "", nil).Code)

	assert.Equal(t, http.StatusBadRequest, upload(t, o, "notes.txt").Code)
}

func TestChangeNotificationsReachSubscribers(t *testing.T) {
	o := newOffice(t)
	srv := httptest.NewServer(o.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan notify.Event, 4)
	go notify.Subscribe(ctx, notify.WebSocketURL(srv.URL), syncKey, func(ev notify.Event) { events <- ev })
	require.Eventually(t, func() bool { return o.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	add := op(t, models.OpAddProduct, models.Product{ID: "p9", Name: "Tea", Price: 30})
	require.Equal(t, http.StatusOK, o.do(t, http.MethodPost, "/api/sync", syncKey, []models.SyncOperation{add}).Code)

	select {
	case ev := <-events:
		assert.Equal(t, []string{models.CollectionProducts}, ev.Collections)
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}
