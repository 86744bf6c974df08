package handoff

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// Store is the shared location holding the pending record and the consumer watermark.
// Every write replaces a whole value; there are no partial updates.
type Store interface {
	// Name identifies the backend in logs.
	Name() string
	// Load returns the pending record. found is false when there is none. A record
	// that cannot be decoded yields a handoff-corruption error.
	Load(ctx context.Context) (rec Record, found bool, err error)
	// Save replaces the pending record.
	Save(ctx context.Context, rec Record) error
	// Delete removes the pending record. Deleting a missing record is not an error.
	Delete(ctx context.Context) error
	// Watermark returns the last processed publish timestamp, 0 when none.
	Watermark(ctx context.Context) (float64, error)
	// SetWatermark replaces the last processed publish timestamp.
	SetWatermark(ctx context.Context, publishedAt float64) error
	// Close releases backend resources.
	Close() error
}

// GetLogger returns the handoff package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("handoff")
}

// OpenStore opens the backend selected in settings.
func OpenStore(settings conf.HandoffSettings, debug bool) (Store, error) {
	switch settings.Backend {
	case conf.HandoffBackendFile, "":
		return NewFileStore(settings.Path)
	case conf.HandoffBackendSQLite:
		path := settings.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "handoff.db")
		}
		return OpenSQLite(path, debug)
	case conf.HandoffBackendMySQL:
		return OpenMySQL(settings.DSN, debug)
	case conf.HandoffBackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.New(fmt.Errorf("unsupported handoff backend %q", settings.Backend)).
			Component("handoff").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func storeError(err error, backend, operation string) error {
	return errors.New(err).
		Component("handoff").
		Category(errors.CategoryHandoff).
		Context("backend", backend).
		Context("operation", operation).
		Build()
}
