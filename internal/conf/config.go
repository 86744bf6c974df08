// Package conf loads killclip settings with viper and owns the detection configuration model.
package conf

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for killclip.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name     string        // name of this killclip node, used in MQTT topics and notifications
		TimeZone string        // IANA zone used for clip names, "Local" for the system zone
		Log      logger.Config // logging configuration
	}

	Detection    DetectionSettings
	Handoff      HandoffSettings
	Processing   ProcessingSettings
	Upload       UploadSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Telemetry    TelemetrySettings
	Sentry       SentrySettings
	API          APISettings
}

// DetectionSettings selects the detection configuration.
type DetectionSettings struct {
	Preset string // built-in preset name: balanced, sensitive, conservative
	File   string // optional YAML or TOML file overriding the preset
}

// HandoffSettings configures the shared pending-session store.
type HandoffSettings struct {
	Backend      string        // file, sqlite, mysql or memory
	Path         string        // directory for the file backend, database file for sqlite
	DSN          string        // MySQL DSN for the mysql backend
	PollInterval time.Duration // consumer poll interval
}

// ProcessingSettings configures the consumer.
type ProcessingSettings struct {
	OutputDir       string        // directory where clips are written
	GroupingGap     float64       // seconds between kills that still join one group; 0 uses the preset cooldown
	DeleteSource    bool          // delete the session video once every clip was created
	FFmpegPath      string        // path to ffmpeg, looked up in PATH when empty
	FFprobePath     string        // path to ffprobe, looked up in PATH when empty
	ExportTimeout   time.Duration // per-clip export timeout, 0 disables
	LockFile        string        // single-instance lock for the consumer daemon
	ReportRetention time.Duration // how long session reports stay visible in the status API
}

// UploadSettings configures where created clips are copied.
type UploadSettings struct {
	Enabled      bool
	Target       string // local, ftp or sftp
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Local        LocalTargetSettings
	FTP          FTPTargetSettings
	SFTP         SFTPTargetSettings
}

// LocalTargetSettings configures the local directory target.
type LocalTargetSettings struct {
	Path string
}

// FTPTargetSettings configures the FTP target.
type FTPTargetSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	Path     string
	Timeout  time.Duration
}

// SFTPTargetSettings configures the SFTP target.
type SFTPTargetSettings struct {
	Host           string
	Port           int
	Username       string
	Password       string
	KeyFile        string
	KnownHostsFile string
	Path           string
	Timeout        time.Duration
}

// MQTTSettings contains settings for MQTT publishing.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:1883
	Topic    string // topic prefix
	ClientID string
	Username string
	Password string
	Retain   bool
}

// NotificationSettings configures shoutrrr notifications.
type NotificationSettings struct {
	Enabled bool
	URLs    []string // shoutrrr service URLs
	Timeout time.Duration
}

// TelemetrySettings configures the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string // host:port
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// APISettings configures the read-only status API.
type APISettings struct {
	Enabled bool
	Listen  string
}

// Location returns the configured clip-naming time zone.
func (s *Settings) Location() (*time.Location, error) {
	switch s.Main.TimeZone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(s.Main.TimeZone)
		if err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("timezone", s.Main.TimeZone).
				Build()
		}
		return loc, nil
	}
}

// DetectionConfig resolves the active detection configuration from the preset or file.
func (s *Settings) DetectionConfig() (DetectionConfig, error) {
	if s.Detection.File != "" {
		return LoadDetectionFile(s.Detection.File)
	}
	return Preset(s.Detection.Preset)
}

// GroupingGap returns the configured grouping gap, falling back to the detection cooldown.
func (s *Settings) GroupingGap(dc DetectionConfig) time.Duration {
	if s.Processing.GroupingGap > 0 {
		return secondsToDuration(s.Processing.GroupingGap)
	}
	return dc.Cooldown()
}

// Load reads the configuration file and environment variables.
// An empty configFile searches the default locations and writes a default file when none exists.
func Load(configFile string) (*Settings, error) {
	return load(viper.GetViper(), configFile)
}

func load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := configureEnvironmentVariables(v); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				FileContext(configFile).
				Build()
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back.
func createDefaultConfig(v *viper.Viper, dir string) error {
	data, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	return v.ReadInConfig()
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already contains a config file it is returned alone.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	if runtime.GOOS == "windows" {
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", "killclip"),
		}
	} else {
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "killclip"),
			"/etc/killclip",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	// Prefer the per-user directory for a freshly written default config.
	return append(configPaths[1:], configPaths[0]), nil
}

// configureEnvironmentVariables sets up KILLCLIP_* overrides.
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix("KILLCLIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars(v)
}
