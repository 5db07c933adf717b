package models

import (
	"encoding/json"
	"fmt"
)

// OperationKind names a mutation shipped from a peer to the back-office.
type OperationKind string

const (
	OpUpdateBusinessSetup  OperationKind = "update-business-setup"
	OpNewTransaction       OperationKind = "new-transaction"
	OpAddProduct           OperationKind = "add-product"
	OpUpdateProduct        OperationKind = "update-product"
	OpDeleteProduct        OperationKind = "delete-product"
	OpAddExpense           OperationKind = "add-expense"
	OpAddUser              OperationKind = "add-user"
	OpUpdateUser           OperationKind = "update-user"
	OpDeleteUser           OperationKind = "delete-user"
	OpAddCreditCustomer    OperationKind = "add-credit-customer"
	OpUpdateCreditCustomer OperationKind = "update-credit-customer"
	OpDeleteCreditCustomer OperationKind = "delete-credit-customer"
)

// SyncOperation is one queued mutation. OpID is optional and only echoed
// back in results for diagnostics.
type SyncOperation struct {
	OpID string          `json:"opId,omitempty"`
	Type OperationKind   `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewOperation encodes data into an operation of the given kind.
func NewOperation(kind OperationKind, data any) (SyncOperation, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return SyncOperation{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return SyncOperation{Type: kind, Data: raw}, nil
}

// Update is the data shape of update-type operations: the record id plus a
// partial field map. Delta fields are applied against the authoritative
// record instead of overwriting it.
type Update struct {
	ID                  string         `json:"id"`
	Updates             map[string]any `json:"updates,omitempty"`
	EntryID             string         `json:"entryId,omitempty"`
	PaidDelta           float64        `json:"paidDelta,omitempty"`
	CreditDelta         float64        `json:"creditDelta,omitempty"`
	StockDelta          int            `json:"stockDelta,omitempty"`
	AppendTransactionID string         `json:"appendTransactionId,omitempty"`
}

// Snapshot is the full authoritative state served by GET /api/sync.
type Snapshot struct {
	Products        []Product        `json:"products"`
	Users           []User           `json:"users"`
	Expenses        []Expense        `json:"expenses"`
	CreditCustomers []CreditCustomer `json:"creditCustomers"`
	Transactions    []Transaction    `json:"transactions"`
	BusinessSetup   *BusinessConfig  `json:"businessSetup"`
}

// FullSyncBundle is the body of POST /api/sync/full.
type FullSyncBundle struct {
	Products      []Product        `json:"products"`
	Users         []User           `json:"users"`
	Expenses      []Expense        `json:"expenses"`
	Customers     []CreditCustomer `json:"customers"`
	Transactions  []Transaction    `json:"transactions"`
	BusinessSetup *BusinessConfig  `json:"businessSetup"`
}

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

type OperationResult struct {
	OpID   string        `json:"opId"`
	Index  int           `json:"index"`
	Type   OperationKind `json:"type"`
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
}

type BatchResponse struct {
	Success bool              `json:"success"`
	Results []OperationResult `json:"results"`
}

// Failed counts results that did not apply.
func (b BatchResponse) Failed() int {
	n := 0
	for _, r := range b.Results {
		if r.Status != ResultOK {
			n++
		}
	}
	return n
}

// Overlay merges a partial field map into base, keyed by JSON field name.
// Unknown fields are ignored.
func Overlay[T any](base T, fields map[string]any) (T, error) {
	var out T
	doc := map[string]any{}
	raw, err := json.Marshal(base)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return out, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	raw, err = json.Marshal(doc)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return out, nil
}
