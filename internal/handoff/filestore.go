package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

const (
	pendingFileName   = "pending_session.json"
	watermarkFileName = "watermark"
	lockFileName      = ".handoff.lock"

	lockRetryDelay = 50 * time.Millisecond
)

// FileStore keeps the handoff in a shared directory. The record is a JSON object,
// the watermark a plain decimal number. Access from several processes is serialized
// with an advisory file lock and every write goes through a rename.
type FileStore struct {
	dir  string
	mu   sync.Mutex // flock does not exclude goroutines sharing one handle
	lock *flock.Flock
}

// NewFileStore creates dir when needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.ValidationError("file handoff store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("handoff").
			Category(errors.CategoryFileIO).
			FileContext(dir).
			Build()
	}
	return &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFileName)),
	}, nil
}

// Name implements Store.
func (s *FileStore) Name() string { return "file" }

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (Record, bool, error) {
	var data []byte
	err := s.withLock(ctx, false, func() error {
		var readErr error
		data, readErr = os.ReadFile(filepath.Join(s.dir, pendingFileName))
		return readErr
	})
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storeError(err, s.Name(), "load")
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, true, corrupt(err, pendingFileName)
	}
	return rec, true, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return storeError(err, s.Name(), "encode")
	}
	err = s.withLock(ctx, true, func() error {
		return s.writeAtomic(pendingFileName, data)
	})
	if err != nil {
		return storeError(err, s.Name(), "save")
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context) error {
	err := s.withLock(ctx, true, func() error {
		err := os.Remove(filepath.Join(s.dir, pendingFileName))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return storeError(err, s.Name(), "delete")
	}
	return nil
}

// Watermark implements Store.
func (s *FileStore) Watermark(ctx context.Context) (float64, error) {
	var data []byte
	err := s.withLock(ctx, false, func() error {
		var readErr error
		data, readErr = os.ReadFile(filepath.Join(s.dir, watermarkFileName))
		return readErr
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, storeError(err, s.Name(), "watermark")
	}
	wm, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, corrupt(err, KeyWatermark)
	}
	return wm, nil
}

// SetWatermark implements Store.
func (s *FileStore) SetWatermark(ctx context.Context, publishedAt float64) error {
	data := []byte(strconv.FormatFloat(publishedAt, 'f', -1, 64) + "\n")
	err := s.withLock(ctx, true, func() error {
		return s.writeAtomic(watermarkFileName, data)
	})
	if err != nil {
		return storeError(err, s.Name(), "set-watermark")
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return s.lock.Close()
}

func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("acquire handoff lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("handoff lock %s is held by another process", s.lock.Path())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			GetLogger().Warn("failed to release handoff lock", logger.Error(err))
		}
	}()
	return fn()
}

// writeAtomic replaces name with data so readers never observe a partial file.
func (s *FileStore) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}
