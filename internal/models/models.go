package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Collection names. They double as local store keys and snapshot field names.
const (
	CollectionProducts        = "products"
	CollectionUsers           = "users"
	CollectionExpenses        = "expenses"
	CollectionCreditCustomers = "creditCustomers"
	CollectionTransactions    = "transactions"
	CollectionBusinessSetup   = "businessSetup"
)

// BusinessSetupID is the fixed key of the BusinessConfig singleton.
const BusinessSetupID = "business-setup"

// Roles a User may hold.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

// Payment methods accepted on a Transaction.
const (
	PaymentCash   = "cash"
	PaymentMpesa  = "mpesa"
	PaymentCredit = "credit"
)

const StatusCompleted = "completed"

var ErrInvalidRecord = errors.New("invalid record")

// Record is implemented by every synchronized entity.
type Record interface {
	RecordID() string
	ModifiedAt() time.Time
	Validate() error
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}

// latest returns updated, or created when updated was never set.
func latest(updated, created time.Time) time.Time {
	if !updated.IsZero() {
		return updated
	}
	return created
}

// Product - The Inventory
type Product struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:200" json:"name"`
	Category  string    `gorm:"index;size:100" json:"category"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	MinStock  int       `json:"minStock"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"createdAt,omitzero"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updatedAt,omitzero"`
}

func (p Product) RecordID() string      { return p.ID }
func (p Product) ModifiedAt() time.Time { return latest(p.UpdatedAt, p.CreatedAt) }

func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return invalid("product id is required")
	case p.Name == "":
		return invalid("product %s: name is required", p.ID)
	case p.Price < 0:
		return invalid("product %s: price must not be negative", p.ID)
	case p.MinStock < 0:
		return invalid("product %s: minStock must not be negative", p.ID)
	}
	return nil
}

// LowStock reports whether stock has fallen to the reorder level.
func (p Product) LowStock() bool { return p.Stock <= p.MinStock }

// User - a person allowed to operate a terminal. Pin is the shared-secret
// login code and travels with the record so peers can log in offline.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:100" json:"name"`
	Pin       string    `gorm:"size:32" json:"pin"`
	Role      string    `gorm:"size:16" json:"role"` // 'admin', 'manager', 'cashier'
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"createdAt,omitzero"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updatedAt,omitzero"`
}

func (u User) RecordID() string      { return u.ID }
func (u User) ModifiedAt() time.Time { return latest(u.UpdatedAt, u.CreatedAt) }

func (u User) Validate() error {
	switch {
	case u.ID == "":
		return invalid("user id is required")
	case u.Name == "":
		return invalid("user %s: name is required", u.ID)
	case u.Pin == "":
		return invalid("user %s: pin is required", u.ID)
	}
	switch u.Role {
	case RoleAdmin, RoleManager, RoleCashier:
		return nil
	default:
		return invalid("user %s: role %q (allowed: admin, manager, cashier)", u.ID, u.Role)
	}
}

type Expense struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Category    string    `gorm:"size:100" json:"category"`
	RecordedBy  string    `gorm:"size:100" json:"recordedBy"`
	Date        time.Time `json:"date,omitzero"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false" json:"createdAt,omitzero"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false" json:"updatedAt,omitzero"`
}

func (e Expense) RecordID() string      { return e.ID }
func (e Expense) ModifiedAt() time.Time { return latest(latest(e.UpdatedAt, e.CreatedAt), e.Date) }

func (e Expense) Validate() error {
	switch {
	case e.ID == "":
		return invalid("expense id is required")
	case e.Description == "":
		return invalid("expense %s: description is required", e.ID)
	case e.Amount <= 0:
		return invalid("expense %s: amount must be greater than zero", e.ID)
	}
	return nil
}

// CreditCustomer carries a running credit account. Balance is derived:
// balance == max(0, totalCredit - paidAmount).
type CreditCustomer struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Name         string    `gorm:"size:100" json:"name"`
	Phone        string    `gorm:"size:32" json:"phone"`
	TotalCredit  float64   `json:"totalCredit"`
	PaidAmount   float64   `json:"paidAmount"`
	Balance      float64   `json:"balance"`
	Transactions []string  `gorm:"serializer:json;type:text" json:"transactions"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false" json:"createdAt,omitzero"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false" json:"updatedAt,omitzero"`
}

func (c CreditCustomer) RecordID() string      { return c.ID }
func (c CreditCustomer) ModifiedAt() time.Time { return latest(c.UpdatedAt, c.CreatedAt) }

func (c CreditCustomer) Validate() error {
	switch {
	case c.ID == "":
		return invalid("credit customer id is required")
	case c.Name == "":
		return invalid("credit customer %s: name is required", c.ID)
	case c.TotalCredit < 0 || c.PaidAmount < 0:
		return invalid("credit customer %s: totals must not be negative", c.ID)
	}
	want := math.Max(0, c.TotalCredit-c.PaidAmount)
	if math.Abs(c.Balance-want) > 0.005 {
		return invalid("credit customer %s: balance %.2f does not match %.2f", c.ID, c.Balance, want)
	}
	return nil
}

// LineItem - a cart line. Price is a snapshot taken at sale time.
type LineItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Transaction - a completed sale. Immutable once created.
type Transaction struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	Timestamp        time.Time  `gorm:"index" json:"timestamp"`
	Items            []LineItem `gorm:"serializer:json;type:text" json:"items"`
	Subtotal         float64    `json:"subtotal"`
	Tax              float64    `json:"tax"`
	Total            float64    `json:"total"`
	PaymentMethod    string     `gorm:"size:16" json:"paymentMethod"`
	Cashier          string     `gorm:"size:100" json:"cashier"`
	CreditCustomerID string     `gorm:"size:64" json:"creditCustomerId,omitempty"`
	Status           string     `gorm:"size:16" json:"status"`
	CreatedAt        time.Time  `gorm:"autoCreateTime:false" json:"createdAt,omitzero"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime:false" json:"updatedAt,omitzero"`
}

func (t Transaction) RecordID() string { return t.ID }

func (t Transaction) ModifiedAt() time.Time {
	return latest(latest(t.UpdatedAt, t.CreatedAt), t.Timestamp)
}

func (t Transaction) Validate() error {
	switch {
	case t.ID == "":
		return invalid("transaction id is required")
	case len(t.Items) == 0:
		return invalid("transaction %s: at least one line item is required", t.ID)
	case t.Total < 0:
		return invalid("transaction %s: total must not be negative", t.ID)
	}
	switch t.PaymentMethod {
	case PaymentCash, PaymentMpesa:
	case PaymentCredit:
		if t.CreditCustomerID == "" {
			return invalid("transaction %s: credit sale needs creditCustomerId", t.ID)
		}
	default:
		return invalid("transaction %s: paymentMethod %q (allowed: cash, mpesa, credit)", t.ID, t.PaymentMethod)
	}
	return nil
}

// BusinessConfig is the singleton shop setup shared by every peer.
type BusinessConfig struct {
	ID            string          `gorm:"primaryKey;size:64" json:"id"`
	BusinessName  string          `json:"businessName"`
	ReceiptHeader string          `json:"receiptHeader"`
	ReceiptFooter string          `json:"receiptFooter"`
	TaxRate       float64         `json:"taxRate"`
	MpesaTill     string          `gorm:"size:32" json:"mpesaTill"`
	MpesaPaybill  string          `gorm:"size:32" json:"mpesaPaybill"`
	MpesaAccount  string          `gorm:"size:64" json:"mpesaAccount"`
	Features      map[string]bool `gorm:"serializer:json;type:text" json:"features"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime:false" json:"updatedAt,omitzero"`
}

func (BusinessConfig) TableName() string { return "business_setup" }

func (b BusinessConfig) RecordID() string      { return b.ID }
func (b BusinessConfig) ModifiedAt() time.Time { return b.UpdatedAt }

func (b BusinessConfig) Validate() error {
	if b.TaxRate < 0 || b.TaxRate > 100 {
		return invalid("business setup: taxRate %.2f out of range", b.TaxRate)
	}
	return nil
}

// Enabled reports whether a feature flag is switched on.
func (b BusinessConfig) Enabled(feature string) bool { return b.Features[feature] }

// AppliedEntry marks a delta (payment, credit charge, stock movement) as
// already applied so redelivery of the same operation is harmless.
type AppliedEntry struct {
	EntryID    string    `gorm:"primaryKey;size:128"`
	Collection string    `gorm:"size:32"`
	RecordID   string    `gorm:"size:64"`
	AppliedAt  time.Time `gorm:"autoCreateTime:false"`
}
