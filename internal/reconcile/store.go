package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/pkg/exception"
)

// PositionRecord is the locally cached view of one open position.
type PositionRecord struct {
	Symbol     string          `gorm:"primaryKey;size:32"`
	Qty        decimal.Decimal `gorm:"type:numeric"`
	EntryPrice decimal.Decimal `gorm:"type:numeric"`
	UpdatedAt  time.Time
}

// Store persists the cached position view between process restarts.
type Store interface {
	List(ctx context.Context) ([]PositionRecord, error)
	Upsert(ctx context.Context, rec PositionRecord) error
	Delete(ctx context.Context, symbol string) error
}

// DBStore keeps the cached view in PostgreSQL.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore migrates the schema and wraps the connection.
func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if db == nil {
		return nil, exception.ErrNilInstance
	}
	if err := db.AutoMigrate(&PositionRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate position cache")
	}
	return &DBStore{db: db}, nil
}

func (s *DBStore) List(ctx context.Context) ([]PositionRecord, error) {
	var records []PositionRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "list positions")
	}
	return records, nil
}

func (s *DBStore) Upsert(ctx context.Context, rec PositionRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
	return errors.Wrap(err, "upsert position")
}

func (s *DBStore) Delete(ctx context.Context, symbol string) error {
	err := s.db.WithContext(ctx).Delete(&PositionRecord{}, "symbol = ?", symbol).Error
	return errors.Wrap(err, "delete position")
}

// MemoryStore is an in-process store for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]PositionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]PositionRecord)}
}

func (s *MemoryStore) List(context.Context) ([]PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]PositionRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	return records, nil
}

func (s *MemoryStore) Upsert(_ context.Context, rec PositionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	s.records[rec.Symbol] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, symbol)
	return nil
}
