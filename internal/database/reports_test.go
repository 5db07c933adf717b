package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go-pos-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSalesReport(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "office.db"))
	require.NoError(t, err)
	ctx := context.Background()

	day := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	item := []models.LineItem{{ProductID: "p1", Name: "Milk", Quantity: 1, Price: 60}}
	txs := []models.Transaction{
		{ID: "t1", Timestamp: day, Items: item, Total: 500, Tax: 40, PaymentMethod: models.PaymentCash, Status: models.StatusCompleted},
		{ID: "t2", Timestamp: day.Add(2 * time.Hour), Items: item, Total: 250, PaymentMethod: models.PaymentMpesa, Status: models.StatusCompleted},
		{ID: "t3", Timestamp: day.AddDate(0, 0, 3), Items: item, Total: 999, PaymentMethod: models.PaymentCash, Status: models.StatusCompleted},
	}
	require.NoError(t, db.Create(&txs).Error)
	require.NoError(t, db.Create(&models.Expense{ID: "e1", Description: "Sugar", Amount: 120, Date: day}).Error)

	report, err := GetSalesReport(ctx, db, day.Add(-time.Hour), day.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.TotalCount)
	assert.Equal(t, 750.0, report.TotalRevenue)
	assert.Equal(t, 40.0, report.TotalTax)
	assert.Equal(t, 500.0, report.ByMethod[models.PaymentCash])
	assert.Equal(t, 250.0, report.ByMethod[models.PaymentMpesa])
	assert.Equal(t, 120.0, report.Expenses)
}

func TestLowStockAndOutstandingCredit(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "office.db"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, db.Create(&[]models.Product{
		{ID: "p1", Name: "Bread", Stock: 2, MinStock: 5},
		{ID: "p2", Name: "Soap", Stock: 40, MinStock: 5},
	}).Error)
	require.NoError(t, db.Create(&[]models.CreditCustomer{
		{ID: "c1", Name: "A", TotalCredit: 1000, PaidAmount: 400, Balance: 600},
		{ID: "c2", Name: "B", TotalCredit: 50, PaidAmount: 0, Balance: 50},
	}).Error)

	low, err := LowStockProducts(ctx, db)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "p1", low[0].ID)

	total, err := OutstandingCredit(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 650.0, total)
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	_, err := Dialector("oracle", "dsn")
	assert.Error(t, err)
}
