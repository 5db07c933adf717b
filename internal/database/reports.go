package database

import (
	"context"
	"time"

	"go-pos-sync/internal/models"

	"gorm.io/gorm"
)

// SalesReportResult summarises completed transactions in a window.
type SalesReportResult struct {
	TotalRevenue float64            `json:"totalRevenue"`
	TotalTax     float64            `json:"totalTax"`
	TotalCount   int64              `json:"totalCount"`
	ByMethod     map[string]float64 `json:"byMethod"`
	Expenses     float64            `json:"expenses"`
}

type methodTotal struct {
	PaymentMethod string
	Total         float64
}

// GetSalesReport calculates sales within a specific date range
func GetSalesReport(ctx context.Context, db *gorm.DB, start, end time.Time) (*SalesReportResult, error) {
	result := SalesReportResult{ByMethod: map[string]float64{}}
	window := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("timestamp BETWEEN ? AND ?", start, end)

	// COALESCE ensures we get 0 instead of NULL if no sales exist
	if err := window.Session(&gorm.Session{}).
		Select("COALESCE(SUM(total), 0)").Scan(&result.TotalRevenue).Error; err != nil {
		return nil, err
	}
	if err := window.Session(&gorm.Session{}).
		Select("COALESCE(SUM(tax), 0)").Scan(&result.TotalTax).Error; err != nil {
		return nil, err
	}
	if err := window.Session(&gorm.Session{}).Count(&result.TotalCount).Error; err != nil {
		return nil, err
	}

	var methods []methodTotal
	if err := window.Session(&gorm.Session{}).
		Select("payment_method, COALESCE(SUM(total), 0) AS total").
		Group("payment_method").Scan(&methods).Error; err != nil {
		return nil, err
	}
	for _, m := range methods {
		result.ByMethod[m.PaymentMethod] = m.Total
	}

	if err := db.WithContext(ctx).Model(&models.Expense{}).
		Where("date BETWEEN ? AND ?", start, end).
		Select("COALESCE(SUM(amount), 0)").Scan(&result.Expenses).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// LowStockProducts lists products at or below their reorder level.
func LowStockProducts(ctx context.Context, db *gorm.DB) ([]models.Product, error) {
	var products []models.Product
	err := db.WithContext(ctx).Where("stock <= min_stock").Order("name").Find(&products).Error
	return products, err
}

// OutstandingCredit sums the open balances of all credit customers.
func OutstandingCredit(ctx context.Context, db *gorm.DB) (float64, error) {
	var total float64
	err := db.WithContext(ctx).Model(&models.CreditCustomer{}).
		Select("COALESCE(SUM(balance), 0)").Scan(&total).Error
	return total, err
}
