package processor

import (
	"context"
	"fmt"

	"go-pos-sync/internal/models"
)

// Snapshot returns every authoritative collection in full. There is no
// cursor; peers merge the whole thing each pull.
func (p *Processor) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	db := p.db.WithContext(ctx)
	snap := &models.Snapshot{
		Products:        []models.Product{},
		Users:           []models.User{},
		Expenses:        []models.Expense{},
		CreditCustomers: []models.CreditCustomer{},
		Transactions:    []models.Transaction{},
	}

	if err := db.Order("id").Find(&snap.Products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	if err := db.Order("id").Find(&snap.Users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if err := db.Order("id").Find(&snap.Expenses).Error; err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	if err := db.Order("id").Find(&snap.CreditCustomers).Error; err != nil {
		return nil, fmt.Errorf("load credit customers: %w", err)
	}
	if err := db.Order("timestamp").Find(&snap.Transactions).Error; err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	cfg, err := p.BusinessSetup(ctx)
	if err != nil {
		return nil, err
	}
	snap.BusinessSetup = cfg
	return snap, nil
}

// BusinessSetup returns the singleton, or nil when no peer has set it up.
func (p *Processor) BusinessSetup(ctx context.Context) (*models.BusinessConfig, error) {
	var cfg models.BusinessConfig
	res := p.db.WithContext(ctx).Where("id = ?", models.BusinessSetupID).Limit(1).Find(&cfg)
	if res.Error != nil {
		return nil, fmt.Errorf("load business setup: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &cfg, nil
}

// Products lists the product collection for lightweight readers.
func (p *Processor) Products(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	if err := p.db.WithContext(ctx).Order("name").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return products, nil
}
