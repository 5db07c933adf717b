package processor

import (
	"time"

	"go-pos-sync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// change describes one idempotent write to a collection.
type change[T models.Record] struct {
	id       string
	fields   map[string]any
	onInsert map[string]any // applied only when the record does not exist yet
	mutate   func(*T) error
	stamp    time.Time // office clock at apply time
}

// upsert merges the supplied fields into the stored record, inserting it
// when absent. Repeating the same change leaves the same record.
//
// Writing over a stored record stamps it with the latest of the supplied
// updatedAt, the stored one and the office clock. The merged record then
// wins the next pull on every peer, the sender included, and updatedAt
// never moves backwards.
func upsert[T models.Record](tx *gorm.DB, c change[T]) error {
	var current T
	res := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", c.id).Limit(1).Find(&current)
	if res.Error != nil {
		return res.Error
	}
	existed := res.RowsAffected > 0
	stored := current.ModifiedAt()
	if !existed && len(c.onInsert) > 0 {
		seeded, err := models.Overlay(current, c.onInsert)
		if err != nil {
			return err
		}
		current = seeded
	}

	merged, err := models.Overlay(current, c.fields)
	if err != nil {
		return err
	}
	if c.mutate != nil {
		if err := c.mutate(&merged); err != nil {
			return err
		}
	}
	if existed {
		at := latest(merged.ModifiedAt(), stored, c.stamp)
		if !at.Equal(merged.ModifiedAt()) {
			if merged, err = models.Overlay(merged, map[string]any{"updatedAt": at}); err != nil {
				return err
			}
		}
	}
	if err := merged.Validate(); err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&merged).Error
}

func latest(times ...time.Time) time.Time {
	var out time.Time
	for _, t := range times {
		if t.After(out) {
			out = t
		}
	}
	return out
}

// insertOnce stores the record unless one with the same id exists. It
// reports whether a row was written.
func insertOnce[T models.Record](tx *gorm.DB, c change[T]) (bool, error) {
	var zero T
	rec, err := models.Overlay(zero, c.onInsert)
	if err != nil {
		return false, err
	}
	if rec, err = models.Overlay(rec, c.fields); err != nil {
		return false, err
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	return res.RowsAffected == 1, res.Error
}

// remove deletes by id. Deleting a missing id is not an error.
func remove[T models.Record](tx *gorm.DB, id string) error {
	return tx.Where("id = ?", id).Delete(new(T)).Error
}

// claimEntry records a delta's entry id. It returns false when the entry
// was applied before, in which case the delta must be skipped.
func claimEntry(tx *gorm.DB, entryID, collection, recordID string, now time.Time) (bool, error) {
	if entryID == "" {
		return true, nil
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.AppliedEntry{
		EntryID:    entryID,
		Collection: collection,
		RecordID:   recordID,
		AppliedAt:  now,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
