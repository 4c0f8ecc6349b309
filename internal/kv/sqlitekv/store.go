// Package sqlitekv provides a durable kv.Store backed by a SQLite database
// through GORM. Conditional updates use an optimistic version column, so two
// writers racing on the same key cannot silently overwrite each other.
package sqlitekv

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mediauqi/money-tracker/internal/kv"
)

// record maps to the kv_records table.
type record struct {
	Key     string `gorm:"column:key;primaryKey"`
	Value   []byte `gorm:"column:value"`
	Version int64  `gorm:"column:version;not null"`
}

func (record) TableName() string {
	return "kv_records"
}

// Store is a SQLite-backed implementation of kv.Store.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var rec record
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return rec.Value, rec.Version, nil
}

// Put implements kv.Store. It upserts the row, bumping the version on update.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":   value,
			"version": gorm.Expr("version + 1"),
		}),
	}).Create(&record{Key: key, Value: value, Version: 1}).Error
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// CompareAndSwap implements kv.Store. Creation races surface the driver's
// duplicate-key error; update races show up as zero affected rows. Both map
// to kv.ErrVersionMismatch.
func (s *Store) CompareAndSwap(ctx context.Context, key string, value []byte, expectedVersion int64) error {
	if expectedVersion == 0 {
		err := s.db.WithContext(ctx).Create(&record{Key: key, Value: value, Version: 1}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return kv.ErrVersionMismatch
		}
		if err != nil {
			return fmt.Errorf("failed to create key %q: %w", key, err)
		}
		return nil
	}

	res := s.db.WithContext(ctx).Model(&record{}).
		Where("key = ? AND version = ?", key, expectedVersion).
		Updates(map[string]interface{}{"value": value, "version": expectedVersion + 1})
	if res.Error != nil {
		return fmt.Errorf("failed to update key %q: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return kv.ErrVersionMismatch
	}
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	res := s.db.WithContext(ctx).Where("key = ?", key).Delete(&record{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return kv.ErrKeyNotFound
	}
	return nil
}

// ScanPrefix implements kv.Store.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]kv.Entry, error) {
	var recs []record
	err := s.db.WithContext(ctx).
		Where("key LIKE ?", prefix+"%").
		Order("key").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan prefix %q: %w", prefix, err)
	}
	entries := make([]kv.Entry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, kv.Entry{Key: rec.Key, Value: rec.Value, Version: rec.Version})
	}
	return entries, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure Store implements the kv.Store interface.
var _ kv.Store = (*Store)(nil)
