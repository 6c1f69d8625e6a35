package storage

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Saisumanthklv/weapp-starter-template/internal/errors"
	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

// kvEntry is the single table backing SQLiteStore.
type kvEntry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (kvEntry) TableName() string { return "kv_entries" }

// SQLiteStore persists values in a SQLite database through gorm so they
// survive restarts.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral store.
func OpenSQLite(path string, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: NewGormLoggerAdapter(log, 200*time.Millisecond),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryStorage).
			Context("operation", "open").
			Build()
	}
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryStorage).
			Context("operation", "migrate").
			Build()
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string, dst any) (bool, error) {
	var entry kvEntry
	result := s.db.Where("key = ?", key).Limit(1).Find(&entry)
	if result.Error != nil {
		return false, storageError(result.Error, "get", key)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if err := decode(key, entry.Value, dst); err != nil {
		return true, err
	}
	return true, nil
}

func (s *SQLiteStore) Set(key string, value any) error {
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	entry := &kvEntry{Key: key, Value: data, UpdatedAt: time.Now()}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		return storageError(err, "set", key)
	}
	return nil
}

func (s *SQLiteStore) Remove(key string) error {
	if err := s.db.Where("key = ?", key).Delete(&kvEntry{}).Error; err != nil {
		return storageError(err, "remove", key)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func storageError(err error, op, key string) error {
	return errors.New(err).
		Component("storage").
		Category(errors.CategoryStorage).
		Context("operation", op).
		Context("key", key).
		Build()
}
