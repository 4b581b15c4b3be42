// Package eventlog archives emitted pool events in SQLite so operators can
// query recent activity after the in-memory buffers have been flushed.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"liquidstake/core/events"
)

// ErrPathRequired is returned when no database path is configured.
var ErrPathRequired = errors.New("eventlog: path must be configured")

// DefaultLimit bounds Recent when the caller passes a non-positive limit.
const DefaultLimit = 100

// Record is one archived event.
type Record struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64            `gorm:"uniqueIndex;not null" json:"seq"`
	Type       string            `gorm:"size:64;index" json:"type"`
	Height     uint64            `gorm:"index" json:"height"`
	Attributes map[string]string `gorm:"serializer:json" json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Store persists events through gorm. It implements events.Emitter.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	mu  sync.Mutex
	seq uint64
}

// Open initialises the archive at path. Tests may pass an in-memory DSN such
// as "file:<name>?mode=memory&cache=shared".
func Open(path string, log *slog.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&Record{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("eventlog: load sequence: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, logger: log.With(slog.String("component", "eventlog")), seq: last}, nil
}

// Emit implements events.Emitter. Failures are logged; the chain state has
// already committed by the time events reach the archive.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	if err := s.Append(context.Background(), evt); err != nil {
		s.logger.Error("archive event", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append stores evt and returns any database error.
func (s *Store) Append(ctx context.Context, evt events.Event) error {
	payload := evt.Event()
	if payload == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record := Record{
		ID:         uuid.New(),
		Seq:        s.seq + 1,
		Type:       payload.Type,
		Height:     payload.Height,
		Attributes: payload.Attributes,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("eventlog: insert: %w", err)
	}
	s.seq = record.Seq
	return nil
}

// Recent returns up to limit events, newest first. An empty eventType matches
// every type.
func (s *Store) Recent(ctx context.Context, eventType string, limit int) ([]Record, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	query := s.db.WithContext(ctx).Order("seq DESC").Limit(limit)
	if eventType = strings.TrimSpace(eventType); eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	return records, nil
}

// SinceHeight returns events at or above height in emission order.
func (s *Store) SinceHeight(ctx context.Context, height uint64, limit int) ([]Record, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	var records []Record
	err := s.db.WithContext(ctx).
		Where("height >= ?", height).
		Order("seq ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
