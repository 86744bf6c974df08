package handoff

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/handoff"
	"github.com/tphakala/killclip/internal/session"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Handoff.Backend = conf.HandoffBackendFile
	s.Handoff.Path = t.TempDir()
	return s
}

func execute(t *testing.T, settings *conf.Settings, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := Command(settings)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func publish(t *testing.T, dir string) {
	t.Helper()
	store, err := handoff.NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	start := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	events := []session.KillEvent{
		{WallClock: start.Add(10 * time.Second), CaptureOffset: 10 * time.Second, Type: "KILL"},
		{WallClock: start.Add(12 * time.Second), CaptureOffset: 12 * time.Second, Type: "KILL"},
	}
	_, err = handoff.NewChannel(store).Publish(context.Background(),
		handoff.NewRecord("/recordings/match.mp4", start, events, start.Add(time.Minute)))
	require.NoError(t, err)
}

func TestStatusEmpty(t *testing.T) {
	t.Parallel()

	out, err := execute(t, testSettings(t), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "state:     IDLE")
	assert.Contains(t, out, "watermark: never")
	assert.Contains(t, out, "pending:   none")
}

func TestStatusPendingThenClear(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	publish(t, settings.Handoff.Path)

	out, err := execute(t, settings, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "state:     PUBLISHED")
	assert.Contains(t, out, "pending:   /recordings/match.mp4 (2 kills, published 2025-03-14T18:01:00")

	out, err = execute(t, settings, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "pending session cleared from the file handoff")

	out, err = execute(t, settings, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending:   none")
}

func TestStatusCorrupt(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	store, err := handoff.NewFileStore(settings.Handoff.Path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, os.WriteFile(filepath.Join(settings.Handoff.Path, "pending_session.json"), []byte("{garbage"), 0o600))

	out, err := execute(t, settings, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "corrupt record")
}
