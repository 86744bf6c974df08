package plan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/handoff"
)

// record holds three kills at 18:00:10, 18:00:12 and 18:01:00 UTC.
const record = `{
	"pending_session_url": "/recordings/match.mp4",
	"pending_kill_wallclock_timestamps": [1741975210, 1741975212, 1741975260],
	"pending_kill_capture_clock_seconds": [10, 12, 60],
	"pending_kill_event_types": ["ELIMINATED", "ELIMINATED", "KILL"],
	"session_updated_at": 1741975300
}`

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Main.TimeZone = "UTC"
	s.Detection.Preset = conf.PresetBalanced
	s.Handoff.Backend = conf.HandoffBackendFile
	s.Handoff.Path = t.TempDir()
	s.Processing.FFprobePath = filepath.Join(t.TempDir(), "no-ffprobe")
	return s
}

func writeRecord(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
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

func TestPlanFromRecordFile(t *testing.T) {
	t.Parallel()

	out, err := execute(t, testSettings(t), "--record", writeRecord(t, record), "--duration", "62s")
	require.NoError(t, err)

	assert.Contains(t, out, "session /recordings/match.mp4: 3 kills in 2 groups")
	assert.Contains(t, out, "Double Kill")
	assert.Contains(t, out, "killGroup_1_2025-03-14_18-00-10_multi_2.mp4")
	assert.Contains(t, out, "5.000s")
	assert.Contains(t, out, "15.000s")
	// postroll clamped to the end of the recording
	assert.Contains(t, out, "55.000s")
	assert.Contains(t, out, "62.000s")
	assert.Contains(t, out, "killGroup_2_2025-03-14_18-01-00.mp4")
}

func TestPlanFromStore(t *testing.T) {
	t.Parallel()

	settings := testSettings(t)
	store, err := handoff.NewFileStore(settings.Handoff.Path)
	require.NoError(t, err)
	rec, err := readRecord(writeRecord(t, record))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), rec))
	require.NoError(t, store.Close())

	out, err := execute(t, settings, "--duration", "90s")
	require.NoError(t, err)
	assert.Contains(t, out, "3 kills in 2 groups")
	assert.Contains(t, out, "63.000s")
}

func TestPlanUnknownDuration(t *testing.T) {
	t.Parallel()

	out, err := execute(t, testSettings(t), "--record", writeRecord(t, record))
	require.NoError(t, err)
	assert.Contains(t, out, "duration unknown")
	assert.NotContains(t, out, "killGroup_")
}

func TestPlanErrors(t *testing.T) {
	t.Parallel()

	t.Run("no pending session", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, testSettings(t), "--duration", "60s")
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
	})

	t.Run("corrupt record", func(t *testing.T) {
		t.Parallel()
		bad := `{"pending_session_url":"/v.mp4","pending_kill_wallclock_timestamps":[1],"pending_kill_capture_clock_seconds":[],"pending_kill_event_types":[],"session_updated_at":5}`
		_, err := execute(t, testSettings(t), "--record", writeRecord(t, bad))
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryHandoffCorruption))
	})

	t.Run("unreadable record", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, testSettings(t), "--record", filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
	})
}
