package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// handoffEntry is one key of the shared record. Values are JSON encoded.
type handoffEntry struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName overrides the GORM table name.
func (handoffEntry) TableName() string { return "handoff_entries" }

// recordKeys are the keys owned by the producer. The watermark is not among them.
var recordKeys = []string{
	KeySessionURL,
	KeyWallClock,
	KeyCaptureClock,
	KeyEventTypes,
	KeyUpdatedAt,
	KeySessionStartedAt,
}

// SQLStore keeps the handoff as key/value rows in a SQL database.
type SQLStore struct {
	db      *gorm.DB
	dialect string
}

// OpenSQLite opens or creates the SQLite database at path.
func OpenSQLite(path string, debug bool) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeError(err, "sqlite", "create-directory")
		}
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger(debug)})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open SQLite handoff database: %w", err)).
			Component("handoff").
			Category(errors.CategoryDatabase).
			FileContext(path).
			Build()
	}
	return NewSQLStore(db)
}

// OpenMySQL connects to the MySQL database described by dsn.
func OpenMySQL(dsn string, debug bool) (*SQLStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger(debug)})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open MySQL handoff database: %w", err)).
			Component("handoff").
			Category(errors.CategoryDatabase).
			Build()
	}
	return NewSQLStore(db)
}

// NewSQLStore migrates the handoff table on db.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&handoffEntry{}); err != nil {
		return nil, errors.New(fmt.Errorf("failed to migrate handoff table: %w", err)).
			Component("handoff").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &SQLStore{db: db, dialect: db.Dialector.Name()}, nil
}

func gormLogger(debug bool) gorm_logger.Interface {
	if !debug {
		return gorm_logger.Default.LogMode(gorm_logger.Silent)
	}
	return logger.NewGormAdapter(GetLogger().Module("sql"), 200*time.Millisecond)
}

// Name implements Store.
func (s *SQLStore) Name() string { return s.dialect }

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context) (Record, bool, error) {
	var entries []handoffEntry
	if err := s.db.WithContext(ctx).Where("`key` IN ?", recordKeys).Find(&entries).Error; err != nil {
		return Record{}, false, storeError(err, s.Name(), "load")
	}
	if len(entries) == 0 {
		return Record{}, false, nil
	}

	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}

	var rec Record
	targets := map[string]any{
		KeySessionURL:   &rec.SessionURL,
		KeyWallClock:    &rec.WallClock,
		KeyCaptureClock: &rec.CaptureClock,
		KeyEventTypes:   &rec.EventTypes,
		KeyUpdatedAt:    &rec.UpdatedAt,
	}
	for key, target := range targets {
		raw, ok := values[key]
		if !ok {
			return Record{}, true, corrupt(fmt.Errorf("key %s is missing", key), key)
		}
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			return Record{}, true, corrupt(err, key)
		}
	}
	if raw, ok := values[KeySessionStartedAt]; ok {
		if err := json.Unmarshal([]byte(raw), &rec.StartedAt); err != nil {
			return Record{}, true, corrupt(err, KeySessionStartedAt)
		}
	}
	return rec, true, nil
}

// Save implements Store. All keys are replaced in one transaction.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	fields := map[string]any{
		KeySessionURL:       rec.SessionURL,
		KeyWallClock:        nonNil(rec.WallClock),
		KeyCaptureClock:     nonNil(rec.CaptureClock),
		KeyEventTypes:       nonNil(rec.EventTypes),
		KeyUpdatedAt:        rec.UpdatedAt,
		KeySessionStartedAt: rec.StartedAt,
	}
	now := time.Now()
	entries := make([]handoffEntry, 0, len(fields))
	for _, key := range recordKeys {
		data, err := json.Marshal(fields[key])
		if err != nil {
			return storeError(err, s.Name(), "encode")
		}
		entries = append(entries, handoffEntry{Key: key, Value: string(data), UpdatedAt: now})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entries).Error
	})
	if err != nil {
		return storeError(err, s.Name(), "save")
	}
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("`key` IN ?", recordKeys).Delete(&handoffEntry{}).Error; err != nil {
		return storeError(err, s.Name(), "delete")
	}
	return nil
}

// Watermark implements Store.
func (s *SQLStore) Watermark(ctx context.Context) (float64, error) {
	var entry handoffEntry
	err := s.db.WithContext(ctx).Where("`key` = ?", KeyWatermark).Limit(1).Find(&entry).Error
	if err != nil {
		return 0, storeError(err, s.Name(), "watermark")
	}
	if entry.Key == "" {
		return 0, nil
	}
	wm, err := strconv.ParseFloat(entry.Value, 64)
	if err != nil {
		return 0, corrupt(err, KeyWatermark)
	}
	return wm, nil
}

// SetWatermark implements Store.
func (s *SQLStore) SetWatermark(ctx context.Context, publishedAt float64) error {
	entry := handoffEntry{
		Key:       KeyWatermark,
		Value:     strconv.FormatFloat(publishedAt, 'f', -1, 64),
		UpdatedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return storeError(err, s.Name(), "set-watermark")
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeError(err, s.Name(), "close")
	}
	return sqlDB.Close()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
