// Package merge folds an authoritative snapshot into a peer's local
// collections using last-write-wins on the record's modification time.
package merge

import (
	"fmt"
	"strings"

	"go-pos-sync/internal/models"
)

// Stats counts what happened to one collection.
type Stats struct {
	Adopted   int // server-only records taken in
	Replaced  int // local records overwritten by a strictly newer server copy
	KeptLocal int // records where the local copy stayed
	Discarded int // server records without an id
}

func (s Stats) Changed() bool { return s.Adopted+s.Replaced > 0 }

func (s Stats) String() string {
	return fmt.Sprintf("adopted=%d replaced=%d kept=%d discarded=%d", s.Adopted, s.Replaced, s.KeptLocal, s.Discarded)
}

// Report is the outcome of merging a whole snapshot.
type Report struct {
	Collections   map[string]Stats
	ConfigUpdated bool
}

func (r Report) Discarded() int {
	n := 0
	for _, s := range r.Collections {
		n += s.Discarded
	}
	return n
}

// Collection merges server into local by id. Local order is preserved and
// server-only records are appended in server order.
//
// A record present on both sides is replaced only when the server copy is
// strictly newer; ties keep the local copy.
func Collection[T models.Record](local, server []T) ([]T, Stats) {
	var st Stats
	merged := make([]T, len(local))
	copy(merged, local)

	index := make(map[string]int, len(local))
	for i, rec := range merged {
		if id := rec.RecordID(); id != "" {
			if _, dup := index[id]; !dup {
				index[id] = i
			}
		}
	}

	seen := make(map[string]bool, len(server))
	for _, rec := range server {
		id := rec.RecordID()
		if strings.TrimSpace(id) == "" {
			st.Discarded++
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		i, ok := index[id]
		switch {
		case !ok:
			index[id] = len(merged)
			merged = append(merged, rec)
			st.Adopted++
		case rec.ModifiedAt().After(merged[i].ModifiedAt()):
			merged[i] = rec
			st.Replaced++
		default:
			st.KeptLocal++
		}
	}
	// Local-only records stay as they are until the next push.
	st.KeptLocal += len(index) - st.Adopted - st.Replaced - st.KeptLocal
	return merged, st
}

// Config returns the BusinessConfig to keep. A server copy replaces the
// local one when the local copy is missing or strictly older.
func Config(local, server *models.BusinessConfig) (*models.BusinessConfig, bool) {
	switch {
	case server == nil:
		return local, false
	case local == nil:
		cfg := *server
		cfg.ID = models.BusinessSetupID
		return &cfg, true
	case server.ModifiedAt().After(local.ModifiedAt()):
		cfg := *server
		cfg.ID = models.BusinessSetupID
		return &cfg, true
	default:
		return local, false
	}
}

// Snapshots merges every collection of server into local and returns the
// merged state. Neither argument is modified.
func Snapshots(local, server *models.Snapshot) (*models.Snapshot, Report) {
	rep := Report{Collections: make(map[string]Stats, 5)}
	out := &models.Snapshot{}
	var st Stats

	out.Products, st = Collection(local.Products, server.Products)
	rep.Collections[models.CollectionProducts] = st
	out.Users, st = Collection(local.Users, server.Users)
	rep.Collections[models.CollectionUsers] = st
	out.Expenses, st = Collection(local.Expenses, server.Expenses)
	rep.Collections[models.CollectionExpenses] = st
	out.CreditCustomers, st = Collection(local.CreditCustomers, server.CreditCustomers)
	rep.Collections[models.CollectionCreditCustomers] = st
	out.Transactions, st = Collection(local.Transactions, server.Transactions)
	rep.Collections[models.CollectionTransactions] = st

	out.BusinessSetup, rep.ConfigUpdated = Config(local.BusinessSetup, server.BusinessSetup)
	return out, rep
}
