package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// kvEntry is one row of the kv_entries table
type kvEntry struct {
	Namespace string    `gorm:"primaryKey;size:64"`
	Key       string    `gorm:"column:entry_key;primaryKey;size:255"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (kvEntry) TableName() string {
	return "kv_entries"
}

type gormKVStore struct {
	db *gorm.DB
}

// NewGormKVStore keeps the records in the kv_entries table of db
func NewGormKVStore(db *gorm.DB) KVStore {
	return &gormKVStore{db: db}
}

// OpenPostgres connects to the database at dsn
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(ErrIO, err.Error())
	}
	return db, nil
}

// Start migrates the kv_entries table
func (g *gormKVStore) Start(ctx context.Context) error {
	if err := g.db.WithContext(ctx).AutoMigrate(&kvEntry{}); err != nil {
		return errors.Wrapf(ErrIO, "migrate kv_entries: %v", err)
	}
	return nil
}

func (g *gormKVStore) Stop(_ context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}

func (g *gormKVStore) Get(ctx context.Context, namespace string, key []byte) ([]byte, error) {
	var e kvEntry
	// Find with Limit keeps a missing key out of the gorm error log
	res := g.db.WithContext(ctx).
		Where("namespace = ? AND entry_key = ?", namespace, string(key)).
		Limit(1).Find(&e)
	if res.Error != nil {
		return nil, errors.Wrap(ErrIO, res.Error.Error())
	}
	if res.RowsAffected == 0 {
		return nil, errors.Wrapf(ErrNotExist, "key = %s/%s doesn't exist", namespace, key)
	}
	return e.Value, nil
}

// Commit applies the batch in one database transaction, upserting puts
func (g *gormKVStore) Commit(ctx context.Context, b *Batch) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range b.writes {
			switch w.Type {
			case Put:
				e := kvEntry{Namespace: w.Namespace, Key: string(w.Key), Value: w.Value}
				if err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "namespace"}, {Name: "entry_key"}},
					DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
				}).Create(&e).Error; err != nil {
					return err
				}
			case Delete:
				if err := tx.Where("namespace = ? AND entry_key = ?", w.Namespace, string(w.Key)).
					Delete(&kvEntry{}).Error; err != nil {
					return err
				}
			default:
				return errors.Errorf("unexpected write type %d", w.Type)
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(ErrIO, err.Error())
	}
	return nil
}
