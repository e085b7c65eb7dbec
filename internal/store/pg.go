package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seatrail/ticket-ledger/internal/keys"
)

// Record is one ledger record row
type Record struct {
	Key       string         `gorm:"primaryKey;type:text;column:key"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null;column:value"`
	CreatedAt time.Time      `gorm:"autoCreateTime;column:created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime;column:updated_at"`
}

func (Record) TableName() string {
	return "ledger_records"
}

type pgStore struct {
	db *gorm.DB
}

// NewPG creates a postgres-backed ledger store
func NewPG(db *gorm.DB) KV {
	return &pgStore{db: db}
}

// Migrate creates the ledger_records table
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// ConfigureConnectionPool sets pool limits on the underlying sql.DB,
// applying defaults for zero values.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// Postgres text cannot hold NUL bytes, so the key separator is translated
// to U+0001 at this boundary. Segments reject control characters, so the
// translation is collision-free and order-preserving.
func encodeKey(k keys.Key) string {
	return strings.ReplaceAll(k.String(), "\x00", "\x01")
}

func decodeKey(s string) (keys.Key, error) {
	return keys.Parse(strings.ReplaceAll(s, "\x01", "\x00"))
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func (s *pgStore) Get(ctx context.Context, key keys.Key) ([]byte, error) {
	if err := key.Valid(); err != nil {
		return nil, err
	}
	var record Record
	err := s.db.WithContext(ctx).Where("key = ?", encodeKey(key)).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return []byte(record.Value), nil
}

func (s *pgStore) Put(ctx context.Context, key keys.Key, value []byte) error {
	if err := key.Valid(); err != nil {
		return err
	}
	record := Record{Key: encodeKey(key), Value: datatypes.JSON(value)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (s *pgStore) Delete(ctx context.Context, key keys.Key) error {
	if err := key.Valid(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Where("key = ?", encodeKey(key)).Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *pgStore) List(ctx context.Context, prefix keys.Key) ([]Entry, error) {
	var records []Record
	pattern := escapeLike(encodeKey(prefix)) + "%"
	err := s.db.WithContext(ctx).
		Where(`key LIKE ? ESCAPE '\'`, pattern).
		Order("key").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		k, err := decodeKey(record.Key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: k, Value: []byte(record.Value)})
	}
	return entries, nil
}
