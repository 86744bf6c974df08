package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "main:\n  name: test-node\n")
	s, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "test-node", s.Main.Name)
	assert.Equal(t, PresetBalanced, s.Detection.Preset)
	assert.Equal(t, HandoffBackendFile, s.Handoff.Backend)
	assert.Equal(t, 2*time.Second, s.Handoff.PollInterval)
	assert.True(t, s.Processing.DeleteSource)
	assert.Equal(t, 24*time.Hour, s.Processing.ReportRetention)
	assert.True(t, s.Main.Log.Console.Enabled)

	dc, err := s.DetectionConfig()
	require.NoError(t, err)
	assert.Equal(t, dc.Cooldown(), s.GroupingGap(dc), "grouping gap falls back to the cooldown")
}

func TestLoad_EmbeddedDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	data, err := configFiles.ReadFile("config.yaml")
	require.NoError(t, err)

	s, err := load(viper.New(), writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, "killclip", s.Main.Name)
	assert.Equal(t, "local", s.Upload.Target)
}

func TestLoad_Overrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
detection:
  preset: conservative
handoff:
  backend: sqlite
  path: /tmp/handoff.db
  pollinterval: 500ms
processing:
  groupinggap: 7.5
  exporttimeout: 2m
`)
	s, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, HandoffBackendSQLite, s.Handoff.Backend)
	assert.Equal(t, 500*time.Millisecond, s.Handoff.PollInterval)
	assert.Equal(t, 2*time.Minute, s.Processing.ExportTimeout)

	dc, err := s.DetectionConfig()
	require.NoError(t, err)
	assert.InDelta(t, 0.75, dc.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 7500*time.Millisecond, s.GroupingGap(dc))
}

func TestLoad_InvalidSettingsFailFast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown preset", "detection:\n  preset: turbo\n", "detection.preset"},
		{"unknown backend", "handoff:\n  backend: redis\n", "handoff.backend"},
		{"mysql without dsn", "handoff:\n  backend: mysql\n", "handoff.dsn"},
		{"zero poll interval", "handoff:\n  pollinterval: 0s\n", "pollinterval"},
		{"bad timezone", "main:\n  timezone: Mars/Olympus\n", "main.timezone"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n  broker: \"\"\n", "mqtt.broker"},
		{"sftp without credentials", "upload:\n  enabled: true\n  target: sftp\n  sftp:\n    host: nas\n", "password or a key file"},
		{"notification without urls", "notification:\n  enabled: true\n", "notification.urls"},
		{"negative grouping gap", "processing:\n  groupinggap: -1\n", "groupinggap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(viper.New(), writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DetectionFileOverridesPreset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	detectionPath := filepath.Join(dir, "detect.toml")
	require.NoError(t, os.WriteFile(detectionPath, []byte(`
frameskipinterval = 1
cooldownseconds = 0.5
confidencethreshold = 0.9
targetkeywords = ["SLAIN"]
prerollseconds = 1.0
postrollseconds = 1.0

[regionofinterest]
x = 0.0
y = 0.0
width = 1.0
height = 1.0
`), 0o600))

	s, err := load(viper.New(), writeConfig(t, "detection:\n  file: "+detectionPath+"\n"))
	require.NoError(t, err)

	dc, err := s.DetectionConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"SLAIN"}, dc.TargetKeywords)
	assert.Equal(t, 1, dc.FrameSkipInterval)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// Not parallel: mutates process environment.
func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("KILLCLIP_DETECTION_PRESET", "sensitive")
	t.Setenv("KILLCLIP_HANDOFF_POLLINTERVAL", "3s")

	s, err := load(viper.New(), writeConfig(t, "main:\n  name: env\n"))
	require.NoError(t, err)
	assert.Equal(t, "sensitive", s.Detection.Preset)
	assert.Equal(t, 3*time.Second, s.Handoff.PollInterval)
}

func TestLoad_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("KILLCLIP_HANDOFF_BACKEND", "redis")

	_, err := load(viper.New(), writeConfig(t, "main:\n  name: env\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KILLCLIP_HANDOFF_BACKEND")
}
