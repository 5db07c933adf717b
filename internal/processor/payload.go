package processor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go-pos-sync/internal/ledger"
	"go-pos-sync/internal/models"
)

var (
	ErrUnknownOperation = errors.New("unknown operation type")
	ErrInvalidPayload   = errors.New("invalid operation data")
)

type action int

const (
	actionAdd action = iota
	actionUpdate
	actionDelete
	actionInsertOnce
	actionSingleton
)

type route struct {
	collection string
	action     action
}

var routes = map[models.OperationKind]route{
	models.OpUpdateBusinessSetup:  {models.CollectionBusinessSetup, actionSingleton},
	models.OpNewTransaction:       {models.CollectionTransactions, actionInsertOnce},
	models.OpAddProduct:           {models.CollectionProducts, actionAdd},
	models.OpUpdateProduct:        {models.CollectionProducts, actionUpdate},
	models.OpDeleteProduct:        {models.CollectionProducts, actionDelete},
	models.OpAddExpense:           {models.CollectionExpenses, actionAdd},
	models.OpAddUser:              {models.CollectionUsers, actionAdd},
	models.OpUpdateUser:           {models.CollectionUsers, actionUpdate},
	models.OpDeleteUser:           {models.CollectionUsers, actionDelete},
	models.OpAddCreditCustomer:    {models.CollectionCreditCustomers, actionAdd},
	models.OpUpdateCreditCustomer: {models.CollectionCreditCustomers, actionUpdate},
	models.OpDeleteCreditCustomer: {models.CollectionCreditCustomers, actionDelete},
}

// Peers have historically sent the record id under several names; the
// authoritative key is always "id".
var idAliases = map[string][]string{
	models.CollectionProducts:        {"_id", "productId"},
	models.CollectionUsers:           {"_id", "userId"},
	models.CollectionExpenses:        {"_id", "expenseId"},
	models.CollectionCreditCustomers: {"_id", "customerId"},
	models.CollectionTransactions:    {"_id", "transactionId"},
	models.CollectionBusinessSetup:   {"_id"},
}

var fieldAliases = map[string]map[string]string{
	models.CollectionProducts:        {"imageUrl": "image", "minimumStock": "minStock"},
	models.CollectionTransactions:    {"creditCustomer": "creditCustomerId", "customerId": "creditCustomerId"},
	models.CollectionCreditCustomers: {"transactionIds": "transactions"},
}

// Keys of an update payload that steer the operation rather than name fields.
var controlKeys = []string{"updates", "entryId", "paidDelta", "creditDelta", "stockDelta", "appendTransactionId"}

type payload struct {
	id     string
	fields map[string]any
	entry  string
	stock  int
	credit ledger.Delta
}

func parsePayload(r route, raw json.RawMessage) (payload, error) {
	var pl payload
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return pl, fmt.Errorf("%w: data is empty", ErrInvalidPayload)
	}

	// Deletes may carry a bare id.
	if trimmed[0] != '{' {
		if r.action != actionDelete {
			return pl, fmt.Errorf("%w: data must be an object", ErrInvalidPayload)
		}
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return pl, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		id, ok := idString(v)
		if !ok {
			return pl, fmt.Errorf("%w: id is required", ErrInvalidPayload)
		}
		pl.id = id
		return pl, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return pl, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	normalize(r.collection, doc)

	if updates, ok := doc["updates"].(map[string]any); ok {
		pl.fields = updates
		normalize(r.collection, pl.fields)
	} else {
		pl.fields = make(map[string]any, len(doc))
		for k, v := range doc {
			pl.fields[k] = v
		}
		for _, k := range controlKeys {
			delete(pl.fields, k)
		}
	}

	if r.action == actionSingleton {
		pl.id = models.BusinessSetupID
	} else {
		id, ok := idString(doc["id"])
		if !ok {
			id, ok = idString(pl.fields["id"])
		}
		if !ok {
			return pl, fmt.Errorf("%w: id is required", ErrInvalidPayload)
		}
		pl.id = id
	}
	if r.action != actionDelete {
		pl.fields["id"] = pl.id
	}

	pl.entry, _ = doc["entryId"].(string)
	pl.stock = int(number(doc["stockDelta"]))
	pl.credit = ledger.Delta{
		EntryID: pl.entry,
		Paid:    number(doc["paidDelta"]),
		Credit:  number(doc["creditDelta"]),
	}
	if v, ok := idString(doc["appendTransactionId"]); ok {
		pl.credit.AppendTransactionID = v
	}
	return pl, nil
}

// normalize rewrites alias keys to their authoritative names in place.
func normalize(collection string, doc map[string]any) {
	for _, alias := range idAliases[collection] {
		if v, ok := doc[alias]; ok {
			if _, has := doc["id"]; !has {
				doc["id"] = v
			}
			delete(doc, alias)
		}
	}
	for alias, canonical := range fieldAliases[collection] {
		v, ok := doc[alias]
		if !ok {
			continue
		}
		delete(doc, alias)
		if _, has := doc[canonical]; has {
			continue
		}
		// A reference may arrive as the embedded record.
		if ref, isObj := v.(map[string]any); isObj {
			v = ref["id"]
		}
		doc[canonical] = v
	}
	if id, ok := idString(doc["id"]); ok {
		doc["id"] = id
	}
}

// idString accepts string ids and the numeric ids some peers derive from
// timestamps.
func idString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), t != ""
	default:
		return "", false
	}
}

func number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
