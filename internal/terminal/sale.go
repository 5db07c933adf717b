package terminal

import (
	"context"
	"errors"
	"fmt"

	"go-pos-sync/internal/ledger"
	"go-pos-sync/internal/models"

	"github.com/shopspring/decimal"
)

// CartLine is one product and quantity in a sale.
type CartLine struct {
	ProductID string
	Quantity  int
}

type Sale struct {
	Lines            []CartLine
	PaymentMethod    string
	Cashier          string
	CreditCustomerID string
}

// RecordSale completes a sale: it snapshots prices, decrements stock,
// charges a credit customer when paying on credit, and queues the
// operations that replay the same effects on the back-office.
//
// A credit sale queues three operations (the transaction, the credit
// charge and the transaction link); a zero total skips the charge. They are pushed together but applied
// independently.
func (p *Peer) RecordSale(ctx context.Context, s Sale) (models.Transaction, error) {
	var tx models.Transaction
	err := p.mutate(ctx, func() error {
		if len(s.Lines) == 0 {
			return errors.New("sale has no items")
		}

		// Quantities per product, in first-seen order.
		qty := map[string]int{}
		var order []string
		for _, l := range s.Lines {
			if l.Quantity <= 0 {
				return fmt.Errorf("product %s: quantity must be positive", l.ProductID)
			}
			if _, seen := qty[l.ProductID]; !seen {
				order = append(order, l.ProductID)
			}
			qty[l.ProductID] += l.Quantity
		}

		subtotal := decimal.Zero
		items := make([]models.LineItem, 0, len(s.Lines))
		for _, l := range s.Lines {
			i := indexOf(p.state.Products, l.ProductID)
			if i < 0 {
				return fmt.Errorf("product %s: %w", l.ProductID, ErrNotFound)
			}
			prod := p.state.Products[i]
			if prod.Stock < qty[l.ProductID] {
				return fmt.Errorf("%s has %d left, %d requested: %w", prod.Name, prod.Stock, qty[l.ProductID], ErrInsufficientStock)
			}
			items = append(items, models.LineItem{ProductID: prod.ID, Name: prod.Name, Quantity: l.Quantity, Price: prod.Price})
			subtotal = subtotal.Add(decimal.NewFromFloat(prod.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
		}

		rate := decimal.Zero
		if cfg := p.state.BusinessSetup; cfg != nil {
			rate = decimal.NewFromFloat(cfg.TaxRate)
		}
		subtotal = subtotal.Round(2)
		tax := subtotal.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)

		now := p.stamp()
		tx = models.Transaction{
			ID:            p.newID("txn"),
			Timestamp:     now,
			Items:         items,
			Subtotal:      subtotal.InexactFloat64(),
			Tax:           tax.InexactFloat64(),
			Total:         subtotal.Add(tax).InexactFloat64(),
			PaymentMethod: s.PaymentMethod,
			Cashier:       s.Cashier,
			Status:        models.StatusCompleted,
			CreatedAt:     now,
		}
		if s.PaymentMethod == models.PaymentCredit {
			tx.CreditCustomerID = s.CreditCustomerID
		}
		if err := tx.Validate(); err != nil {
			return err
		}

		ci := -1
		var customer models.CreditCustomer
		if tx.PaymentMethod == models.PaymentCredit {
			if ci = indexOf(p.state.CreditCustomers, tx.CreditCustomerID); ci < 0 {
				return fmt.Errorf("credit customer %s: %w", tx.CreditCustomerID, ErrNotFound)
			}
			customer = p.state.CreditCustomers[ci]
			if tx.Total > 0 {
				if err := ledger.ApplyCreditSale(&customer, tx.ID, tx.Total); err != nil {
					return err
				}
			} else {
				// Nothing owed; the sale is only linked to the customer.
				ledger.AppendTransaction(&customer, tx.ID)
			}
			customer.UpdatedAt = now
		}

		// All checks passed; apply locally.
		ops := []queued{{models.OpNewTransaction, tx}}
		for _, id := range order {
			i := indexOf(p.state.Products, id)
			p.state.Products[i].Stock -= qty[id]
			p.state.Products[i].UpdatedAt = now
			ops = append(ops, queued{models.OpUpdateProduct, models.Update{
				ID:         id,
				EntryID:    tx.ID + ":" + id,
				StockDelta: -qty[id],
				Updates:    map[string]any{"updatedAt": now},
			}})
		}
		p.state.Transactions = append(p.state.Transactions, tx)
		dirty := []string{models.CollectionTransactions, models.CollectionProducts}

		if ci >= 0 {
			p.state.CreditCustomers[ci] = customer
			dirty = append(dirty, models.CollectionCreditCustomers)
			if tx.Total > 0 {
				ops = append(ops, queued{models.OpUpdateCreditCustomer, models.Update{
					ID:          customer.ID,
					EntryID:     "credit-" + tx.ID,
					CreditDelta: tx.Total,
					Updates:     map[string]any{"updatedAt": now},
				}})
			}
			ops = append(ops, queued{models.OpUpdateCreditCustomer, models.Update{
				ID:                  customer.ID,
				AppendTransactionID: tx.ID,
			}})
		}

		return p.commit(dirty, ops...)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	p.log.Info("sale recorded", "transaction", tx.ID, "total", tx.Total, "method", tx.PaymentMethod)
	return tx, nil
}

// Reprint sends a stored transaction to the printer again. The stored
// record is not touched.
func (p *Peer) Reprint(ctx context.Context, txID string) (models.Transaction, error) {
	var tx models.Transaction
	err := p.do(ctx, func() error {
		i := indexOf(p.state.Transactions, txID)
		if i < 0 {
			return fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
		}
		tx = p.state.Transactions[i]
		return nil
	})
	if err != nil {
		return tx, err
	}
	if p.printer == nil {
		return tx, errors.New("no receipt printer configured")
	}
	return tx, p.printer.PrintReceipt(ctx, tx)
}
