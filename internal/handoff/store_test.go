package handoff

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
)

func testRecord(publishedAt float64) Record {
	return Record{
		SessionURL:   "/videos/session.mp4",
		WallClock:    []float64{1700000001.5, 1700000003},
		CaptureClock: []float64{1.5, 3},
		EventTypes:   []string{"ELIMINATED", "KILL"},
		UpdatedAt:    publishedAt,
		StartedAt:    1700000000,
	}
}

// storeContract exercises the behavior every backend shares.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found, "fresh store has no record")

	wm, err := store.Watermark(ctx)
	require.NoError(t, err)
	assert.Zero(t, wm)

	rec := testRecord(1700000100.125)
	require.NoError(t, store.Save(ctx, rec))

	got, found, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)

	// Last writer wins.
	rec2 := testRecord(1700000200)
	rec2.EventTypes = []string{"KILL", "KILL"}
	require.NoError(t, store.Save(ctx, rec2))
	got, _, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec2, got)

	require.NoError(t, store.SetWatermark(ctx, 1700000200))
	require.NoError(t, store.SetWatermark(ctx, 1700000300.5))
	wm, err = store.Watermark(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1700000300.5, wm, 0)

	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Delete(ctx), "deleting a missing record")
	_, found, err = store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	wm, err = store.Watermark(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1700000300.5, wm, 0, "delete keeps the watermark")
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	storeContract(t, store)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	rec := testRecord(10)
	require.NoError(t, store.Save(ctx, rec))
	rec.EventTypes[0] = "MUTATED"

	got, _, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ELIMINATED", got.EventTypes[0])
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "handoff"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	storeContract(t, store)
}

func TestFileStoreWritesJSONKeys(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(context.Background(), testRecord(5)))

	data, err := os.ReadFile(filepath.Join(dir, pendingFileName))
	require.NoError(t, err)
	for _, key := range []string{KeySessionURL, KeyWallClock, KeyCaptureClock, KeyEventTypes, KeyUpdatedAt, KeySessionStartedAt} {
		assert.Contains(t, string(data), `"`+key+`"`)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "no temporary files left behind")
}

func TestFileStoreCorruptRecord(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, pendingFileName), []byte(`{"pending_session_url": 12`), 0o644))

	_, found, err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, found)
	assert.True(t, errors.IsCategory(err, errors.CategoryHandoffCorruption))
}

func TestCorruptWatermark(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		open    func(t *testing.T) Store
		corrupt func(t *testing.T, s Store)
	}{
		{
			name: "file",
			open: func(t *testing.T) Store {
				t.Helper()
				s, err := NewFileStore(t.TempDir())
				require.NoError(t, err)
				return s
			},
			corrupt: func(t *testing.T, s Store) {
				t.Helper()
				path := filepath.Join(s.(*FileStore).Dir(), watermarkFileName)
				require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o644))
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) Store {
				t.Helper()
				s, err := OpenSQLite(filepath.Join(t.TempDir(), "handoff.db"), false)
				require.NoError(t, err)
				return s
			},
			corrupt: func(t *testing.T, s Store) {
				t.Helper()
				db := s.(*SQLStore).db
				require.NoError(t, db.Model(&handoffEntry{}).
					Where("`key` = ?", KeyWatermark).
					Update("value", "garbage").Error)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := tt.open(t)
			t.Cleanup(func() { _ = store.Close() })

			require.NoError(t, store.SetWatermark(ctx, 100))
			tt.corrupt(t, store)

			_, err := store.Watermark(ctx)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryHandoffCorruption))

			// The channel resets it instead of failing.
			ch := NewChannel(store)
			wm, err := ch.Watermark(ctx)
			require.NoError(t, err)
			assert.Zero(t, wm)

			wm, err = store.Watermark(ctx)
			require.NoError(t, err, "watermark rewritten")
			assert.Zero(t, wm)

			tt.corrupt(t, store)
			rec, err := ch.Publish(ctx, testRecord(200))
			require.NoError(t, err, "publish proceeds over a corrupt watermark")
			assert.InDelta(t, 200.0, rec.UpdatedAt, 0)
		})
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "handoff.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, "sqlite", store.Name())
	storeContract(t, store)
}

func TestSQLiteStoreMissingKeyIsCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "handoff.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(ctx, testRecord(7)))
	require.NoError(t, store.db.Where("`key` = ?", KeyEventTypes).Delete(&handoffEntry{}).Error)

	_, found, err := store.Load(ctx)
	require.Error(t, err)
	assert.True(t, found)
	assert.True(t, errors.IsCategory(err, errors.CategoryHandoffCorruption))
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	store, err := OpenStore(conf.HandoffSettings{Backend: conf.HandoffBackendMemory}, false)
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Name())

	store, err = OpenStore(conf.HandoffSettings{Backend: conf.HandoffBackendFile, Path: t.TempDir()}, false)
	require.NoError(t, err)
	assert.Equal(t, "file", store.Name())
	require.NoError(t, store.Close())

	_, err = OpenStore(conf.HandoffSettings{Backend: "redis"}, false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
