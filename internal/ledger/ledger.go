// Package ledger keeps credit customer accounts consistent. Payments and
// credit charges are always applied as deltas against the current totals,
// never as an absolute balance.
package ledger

import (
	"errors"
	"fmt"
	"slices"

	"go-pos-sync/internal/models"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("amount must be greater than zero")

// Delta is a credit-account movement as shipped inside an
// update-credit-customer operation.
type Delta struct {
	EntryID             string
	Paid                float64
	Credit              float64
	AppendTransactionID string
}

func (d Delta) IsZero() bool {
	return d.Paid == 0 && d.Credit == 0 && d.AppendTransactionID == ""
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Recompute restores balance == max(0, totalCredit - paidAmount).
func Recompute(c *models.CreditCustomer) {
	total := money(c.TotalCredit)
	paid := money(c.PaidAmount)
	balance := total.Sub(paid)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	c.TotalCredit = total.InexactFloat64()
	c.PaidAmount = paid.InexactFloat64()
	c.Balance = balance.InexactFloat64()
}

// ApplyPayment records a payment against the customer.
func ApplyPayment(c *models.CreditCustomer, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("payment for %s: %w", c.ID, ErrInvalidAmount)
	}
	c.PaidAmount = money(c.PaidAmount).Add(money(amount)).InexactFloat64()
	Recompute(c)
	return nil
}

// ApplyCredit charges a credit sale to the customer.
func ApplyCredit(c *models.CreditCustomer, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("credit for %s: %w", c.ID, ErrInvalidAmount)
	}
	c.TotalCredit = money(c.TotalCredit).Add(money(amount)).InexactFloat64()
	Recompute(c)
	return nil
}

// AppendTransaction adds a transaction id to the customer's history. It
// reports false when the id was already present.
func AppendTransaction(c *models.CreditCustomer, txID string) bool {
	if txID == "" || slices.Contains(c.Transactions, txID) {
		return false
	}
	c.Transactions = append(c.Transactions, txID)
	return true
}

// Apply runs every part of d against c.
func Apply(c *models.CreditCustomer, d Delta) error {
	if d.Paid != 0 {
		if err := ApplyPayment(c, d.Paid); err != nil {
			return err
		}
	}
	if d.Credit != 0 {
		if err := ApplyCredit(c, d.Credit); err != nil {
			return err
		}
	}
	AppendTransaction(c, d.AppendTransactionID)
	Recompute(c)
	return nil
}

// ApplyCreditSale charges total to the customer and records the sale id.
func ApplyCreditSale(c *models.CreditCustomer, txID string, total float64) error {
	if err := ApplyCredit(c, total); err != nil {
		return err
	}
	AppendTransaction(c, txID)
	return nil
}
