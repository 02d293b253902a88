package kvstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Record struct {
	Key       string         `gorm:"column:record_key;primaryKey;type:varchar(191)"`
	Value     datatypes.JSON `gorm:"column:value;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (Record) TableName() string {
	return "kv_records"
}

type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore migrates the kv_records table and returns a store on it.
func NewDatabaseStore(db *gorm.DB) (*DatabaseStore, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &DatabaseStore{db: db}, nil
}

func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("record_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(rec.Value), nil
}

func (s *DatabaseStore) SetMany(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			rec := Record{Key: e.Key, Value: datatypes.JSON(e.Value), UpdatedAt: now}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "record_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&rec).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
