package terminal

import (
	"context"
	"fmt"
	"slices"

	"go-pos-sync/internal/ledger"
	"go-pos-sync/internal/models"
)

// Every action changes the local copy and queues the matching operation
// for the back-office. Both are written in one store transaction.

func (p *Peer) AddProduct(ctx context.Context, prod models.Product) (models.Product, error) {
	err := p.mutate(ctx, func() error {
		now := p.stamp()
		if prod.ID == "" {
			prod.ID = p.newID("prod")
		}
		if indexOf(p.state.Products, prod.ID) >= 0 {
			return fmt.Errorf("product %s already exists", prod.ID)
		}
		prod.CreatedAt, prod.UpdatedAt = now, now
		if err := prod.Validate(); err != nil {
			return err
		}
		p.state.Products = append(p.state.Products, prod)
		return p.commit([]string{models.CollectionProducts}, queued{models.OpAddProduct, prod})
	})
	return prod, err
}

func (p *Peer) UpdateProduct(ctx context.Context, id string, fields map[string]any) (models.Product, error) {
	var out models.Product
	err := p.mutate(ctx, func() error {
		i, rec, shipped, err := patch(p.state.Products, id, fields, p.stamp())
		if err != nil {
			return err
		}
		p.state.Products[i], out = rec, rec
		return p.commit([]string{models.CollectionProducts}, queued{models.OpUpdateProduct, models.Update{ID: id, Updates: shipped}})
	})
	return out, err
}

func (p *Peer) DeleteProduct(ctx context.Context, id string) error {
	return p.mutate(ctx, func() error {
		i := indexOf(p.state.Products, id)
		if i < 0 {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		p.state.Products = slices.Delete(p.state.Products, i, i+1)
		return p.commit([]string{models.CollectionProducts}, queued{models.OpDeleteProduct, map[string]string{"id": id}})
	})
}

func (p *Peer) AddUser(ctx context.Context, u models.User) (models.User, error) {
	err := p.mutate(ctx, func() error {
		now := p.stamp()
		if u.ID == "" {
			u.ID = p.newID("user")
		}
		if indexOf(p.state.Users, u.ID) >= 0 {
			return fmt.Errorf("user %s already exists", u.ID)
		}
		u.CreatedAt, u.UpdatedAt = now, now
		if err := u.Validate(); err != nil {
			return err
		}
		p.state.Users = append(p.state.Users, u)
		return p.commit([]string{models.CollectionUsers}, queued{models.OpAddUser, u})
	})
	return u, err
}

func (p *Peer) UpdateUser(ctx context.Context, id string, fields map[string]any) (models.User, error) {
	var out models.User
	err := p.mutate(ctx, func() error {
		i, rec, shipped, err := patch(p.state.Users, id, fields, p.stamp())
		if err != nil {
			return err
		}
		p.state.Users[i], out = rec, rec
		return p.commit([]string{models.CollectionUsers}, queued{models.OpUpdateUser, models.Update{ID: id, Updates: shipped}})
	})
	return out, err
}

func (p *Peer) DeleteUser(ctx context.Context, id string) error {
	return p.mutate(ctx, func() error {
		i := indexOf(p.state.Users, id)
		if i < 0 {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		p.state.Users = slices.Delete(p.state.Users, i, i+1)
		return p.commit([]string{models.CollectionUsers}, queued{models.OpDeleteUser, map[string]string{"id": id}})
	})
}

// Login checks a pin against the local user list, so it works offline.
func (p *Peer) Login(ctx context.Context, idOrName, pin string) (models.User, error) {
	var out models.User
	err := p.do(ctx, func() error {
		for _, u := range p.state.Users {
			if (u.ID == idOrName || u.Name == idOrName) && u.Pin == pin && u.IsActive {
				out = u
				return nil
			}
		}
		return ErrInvalidPin
	})
	return out, err
}

func (p *Peer) AddExpense(ctx context.Context, e models.Expense) (models.Expense, error) {
	err := p.mutate(ctx, func() error {
		now := p.stamp()
		if e.ID == "" {
			e.ID = p.newID("exp")
		}
		if e.Date.IsZero() {
			e.Date = now
		}
		e.CreatedAt, e.UpdatedAt = now, now
		if err := e.Validate(); err != nil {
			return err
		}
		p.state.Expenses = append(p.state.Expenses, e)
		return p.commit([]string{models.CollectionExpenses}, queued{models.OpAddExpense, e})
	})
	return e, err
}

func (p *Peer) AddCreditCustomer(ctx context.Context, c models.CreditCustomer) (models.CreditCustomer, error) {
	err := p.mutate(ctx, func() error {
		now := p.stamp()
		if c.ID == "" {
			c.ID = p.newID("cust")
		}
		if indexOf(p.state.CreditCustomers, c.ID) >= 0 {
			return fmt.Errorf("credit customer %s already exists", c.ID)
		}
		if c.Transactions == nil {
			c.Transactions = []string{}
		}
		ledger.Recompute(&c)
		c.CreatedAt, c.UpdatedAt = now, now
		if err := c.Validate(); err != nil {
			return err
		}
		p.state.CreditCustomers = append(p.state.CreditCustomers, c)
		return p.commit([]string{models.CollectionCreditCustomers}, queued{models.OpAddCreditCustomer, c})
	})
	return c, err
}

// UpdateCreditCustomer edits contact details. Money fields are rejected;
// use RecordCreditPayment or a credit sale.
func (p *Peer) UpdateCreditCustomer(ctx context.Context, id string, fields map[string]any) (models.CreditCustomer, error) {
	for _, k := range []string{"totalCredit", "paidAmount", "balance", "transactions"} {
		if _, ok := fields[k]; ok {
			return models.CreditCustomer{}, fmt.Errorf("%s: %w", k, ErrLedgerField)
		}
	}
	var out models.CreditCustomer
	err := p.mutate(ctx, func() error {
		i, rec, shipped, err := patch(p.state.CreditCustomers, id, fields, p.stamp())
		if err != nil {
			return err
		}
		p.state.CreditCustomers[i], out = rec, rec
		return p.commit([]string{models.CollectionCreditCustomers}, queued{models.OpUpdateCreditCustomer, models.Update{ID: id, Updates: shipped}})
	})
	return out, err
}

func (p *Peer) DeleteCreditCustomer(ctx context.Context, id string) error {
	return p.mutate(ctx, func() error {
		i := indexOf(p.state.CreditCustomers, id)
		if i < 0 {
			return fmt.Errorf("credit customer %s: %w", id, ErrNotFound)
		}
		p.state.CreditCustomers = slices.Delete(p.state.CreditCustomers, i, i+1)
		return p.commit([]string{models.CollectionCreditCustomers}, queued{models.OpDeleteCreditCustomer, map[string]string{"id": id}})
	})
}

// RecordCreditPayment applies a payment locally and ships it as a delta
// so a payment taken on another peer is never overwritten.
func (p *Peer) RecordCreditPayment(ctx context.Context, customerID string, amount float64) (models.CreditCustomer, error) {
	var out models.CreditCustomer
	err := p.mutate(ctx, func() error {
		i := indexOf(p.state.CreditCustomers, customerID)
		if i < 0 {
			return fmt.Errorf("credit customer %s: %w", customerID, ErrNotFound)
		}
		c := p.state.CreditCustomers[i]
		if err := ledger.ApplyPayment(&c, amount); err != nil {
			return err
		}
		now := p.stamp()
		c.UpdatedAt = now
		p.state.CreditCustomers[i], out = c, c
		return p.commit([]string{models.CollectionCreditCustomers}, queued{models.OpUpdateCreditCustomer, models.Update{
			ID:        customerID,
			EntryID:   p.newID("pay"),
			PaidDelta: amount,
			Updates:   map[string]any{"updatedAt": now},
		}})
	})
	return out, err
}

// UpdateBusinessSetup merges fields into the singleton and ships the
// whole record.
func (p *Peer) UpdateBusinessSetup(ctx context.Context, fields map[string]any) (models.BusinessConfig, error) {
	var out models.BusinessConfig
	err := p.mutate(ctx, func() error {
		base := models.BusinessConfig{ID: models.BusinessSetupID}
		if p.state.BusinessSetup != nil {
			base = *p.state.BusinessSetup
		}
		cfg, err := models.Overlay(base, fields)
		if err != nil {
			return err
		}
		cfg.ID = models.BusinessSetupID
		cfg.UpdatedAt = p.stamp()
		if err := cfg.Validate(); err != nil {
			return err
		}
		p.state.BusinessSetup, out = &cfg, cfg
		return p.commit([]string{models.CollectionBusinessSetup}, queued{models.OpUpdateBusinessSetup, cfg})
	})
	return out, err
}
