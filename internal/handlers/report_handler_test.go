package handlers

import (
	"testing"

	"go-pos-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuationGroupsByCategory(t *testing.T) {
	got := valuation([]models.Product{
		{Name: "Soda", Category: "Drinks", Price: 0.1, Stock: 3},
		{Name: "Juice", Category: "Drinks", Price: 120, Stock: 2},
		{Name: "Nails", Price: 5, Stock: 10},
		{Name: "Bread", Category: "Bakery", Price: 55, Stock: -4},
	})

	require.Len(t, got.Categories, 3)
	assert.Equal(t, "Bakery", got.Categories[0].CategoryName)
	assert.Equal(t, 0.0, got.Categories[0].Subtotal, "oversold stock counts as zero")
	assert.Equal(t, "Drinks", got.Categories[1].CategoryName)
	assert.Equal(t, 240.3, got.Categories[1].Subtotal)
	assert.Equal(t, "Uncategorized", got.Categories[2].CategoryName)
	assert.Equal(t, 290.3, got.GrandTotal)
}

func TestValuationEmpty(t *testing.T) {
	got := valuation(nil)
	assert.NotNil(t, got.Categories)
	assert.Zero(t, got.GrandTotal)
}
