// Package localstore is a peer's durable key/value record set. Each key
// holds one whole collection encoded as JSON.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Keys used by a peer besides the collection names.
const (
	KeyQueue = "syncQueue"
	KeyMeta  = "meta"
)

var ErrClosed = errors.New("local store is closed")

type record struct {
	Key       string `gorm:"column:record_key;primaryKey;size:64"`
	Value     []byte
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (record) TableName() string { return "local_records" }

// Store is not safe for concurrent writers; a peer mutates it from its run
// loop only.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite file at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the record table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Get decodes the value under key into v. It reports false when the key
// has never been written.
func (s *Store) Get(key string, v any) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	var rec record
	res := s.db.Where("record_key = ?", key).Limit(1).Find(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("read %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := json.Unmarshal(rec.Value, v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Put replaces the value under key.
func (s *Store) Put(key string, v any) error {
	if s.db == nil {
		return ErrClosed
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	rec := record{Key: key, Value: raw, UpdatedAt: s.now().UTC()}
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// PutMany replaces the values under several keys in one transaction:
// either every key is written or none is.
func (s *Store) PutMany(values map[string]any) error {
	if s.db == nil {
		return ErrClosed
	}
	if len(values) == 0 {
		return nil
	}
	now := s.now().UTC()
	recs := make([]record, 0, len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		raw, err := json.Marshal(values[key])
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		recs = append(recs, record{Key: key, Value: raw, UpdatedAt: now})
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := range recs {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&recs[i]).Error; err != nil {
				return fmt.Errorf("write %s: %w", recs[i].Key, err)
			}
		}
		return nil
	})
	return err
}

// Keys lists every stored key in order.
func (s *Store) Keys() ([]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var keys []string
	if err := s.db.Model(&record{}).Order("record_key").Pluck("record_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

func (s *Store) Delete(key string) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Where("record_key = ?", key).Delete(&record{}).Error
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadCollection reads a collection; a missing key yields an empty slice.
func LoadCollection[T any](s *Store, key string) ([]T, error) {
	items := []T{}
	if _, err := s.Get(key, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// SaveCollection writes the whole collection back under key.
func SaveCollection[T any](s *Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return s.Put(key, items)
}
