package handlers

import (
	"net/http"
	"sort"
	"time"

	"go-pos-sync/internal/database"
	"go-pos-sync/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ReportData defines the shape of our analytics response
type ReportData struct {
	Start             string                      `json:"start"`
	End               string                      `json:"end"`
	Sales             *database.SalesReportResult `json:"sales"`
	LowStock          []models.Product            `json:"lowStock"`
	OutstandingCredit float64                     `json:"outstandingCredit"`
}

// GetSalesReport - GET /api/reports?start=YYYY-MM-DD&end=YYYY-MM-DD
// Both days are inclusive; missing dates default to today.
func (h *Handler) GetSalesReport(c *gin.Context) {
	today := h.now().Format(dateLayout)
	startStr := c.DefaultQuery("start", today)
	endStr := c.DefaultQuery("end", startStr)

	start, err1 := time.Parse(dateLayout, startStr)
	end, err2 := time.Parse(dateLayout, endStr)
	if err1 != nil || err2 != nil || end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dates must be YYYY-MM-DD with start <= end"})
		return
	}
	ctx := c.Request.Context()

	// 1. Sales, tax, payment split and expenses
	data := ReportData{Start: startStr, End: endStr}
	data.Sales, err1 = database.GetSalesReport(ctx, h.DB, start, end.Add(24*time.Hour-time.Nanosecond))
	if err1 != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to calculate revenue"})
		return
	}

	// 2. What needs reordering
	if data.LowStock, err1 = database.LowStockProducts(ctx, h.DB); err1 != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch low stock"})
		return
	}
	if data.LowStock == nil {
		data.LowStock = []models.Product{}
	}

	// 3. Money still owed
	if data.OutstandingCredit, err1 = database.OutstandingCredit(ctx, h.DB); err1 != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum credit"})
		return
	}

	c.JSON(http.StatusOK, data)
}

// ValuationItem is one product row of the stock valuation.
type ValuationItem struct {
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	TotalValue float64 `json:"totalValue"`
}

// CategoryGroup is one category table, e.g. "DRINKS".
type CategoryGroup struct {
	CategoryName string          `json:"categoryName"`
	Items        []ValuationItem `json:"items"`
	Subtotal     float64         `json:"subtotal"`
}

type ValuationResponse struct {
	Categories []CategoryGroup `json:"categories"`
	GrandTotal float64         `json:"grandTotal"`
}

// GetStockValuation - GET /api/reports/valuation
// Retail value of stock on hand, grouped by category.
func (h *Handler) GetStockValuation(c *gin.Context) {
	products, err := h.Proc.Products(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch inventory"})
		return
	}
	c.JSON(http.StatusOK, valuation(products))
}

func valuation(products []models.Product) ValuationResponse {
	type group struct {
		items    []ValuationItem
		subtotal decimal.Decimal
	}
	groups := map[string]*group{}
	grand := decimal.Zero

	for _, p := range products {
		cat := p.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		g, ok := groups[cat]
		if !ok {
			g = &group{subtotal: decimal.Zero}
			groups[cat] = g
		}
		// Negative stock (oversold offline) is not inventory.
		qty := max(p.Stock, 0)
		value := decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(qty))).Round(2)
		g.items = append(g.items, ValuationItem{Name: p.Name, Quantity: qty, Price: p.Price, TotalValue: value.InexactFloat64()})
		g.subtotal = g.subtotal.Add(value)
		grand = grand.Add(value)
	}

	resp := ValuationResponse{Categories: []CategoryGroup{}, GrandTotal: grand.InexactFloat64()}
	for name, g := range groups {
		resp.Categories = append(resp.Categories, CategoryGroup{CategoryName: name, Items: g.items, Subtotal: g.subtotal.InexactFloat64()})
	}
	sort.Slice(resp.Categories, func(i, j int) bool { return resp.Categories[i].CategoryName < resp.Categories[j].CategoryName })
	return resp
}
