// env.go - Environment variable configuration and validation for killclip
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.timezone", "KILLCLIP_TIMEZONE", validateEnvTimezone},
		{"debug", "KILLCLIP_DEBUG", validateEnvBool},

		{"detection.preset", "KILLCLIP_DETECTION_PRESET", validateEnvPreset},
		{"detection.file", "KILLCLIP_DETECTION_FILE", nil},

		{"handoff.backend", "KILLCLIP_HANDOFF_BACKEND", validateEnvHandoffBackend},
		{"handoff.path", "KILLCLIP_HANDOFF_PATH", nil},
		{"handoff.dsn", "KILLCLIP_HANDOFF_DSN", nil},
		{"handoff.pollinterval", "KILLCLIP_HANDOFF_POLLINTERVAL", validateEnvDuration},

		{"processing.outputdir", "KILLCLIP_OUTPUT_DIR", nil},
		{"processing.ffmpegpath", "KILLCLIP_FFMPEG_PATH", nil},
		{"processing.ffprobepath", "KILLCLIP_FFPROBE_PATH", nil},

		{"mqtt.broker", "KILLCLIP_MQTT_BROKER", validateEnvURL},
		{"mqtt.username", "KILLCLIP_MQTT_USERNAME", nil},
		{"mqtt.password", "KILLCLIP_MQTT_PASSWORD", nil},

		{"upload.ftp.password", "KILLCLIP_FTP_PASSWORD", nil},
		{"upload.sftp.password", "KILLCLIP_SFTP_PASSWORD", nil},

		{"sentry.dsn", "KILLCLIP_SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvTimezone(value string) error {
	if value == "Local" {
		return nil
	}
	_, err := time.LoadLocation(value)
	return err
}

func validateEnvPreset(value string) error {
	if !presetExists(value) {
		return fmt.Errorf("must be one of %s", strings.Join(PresetNames(), ", "))
	}
	return nil
}

func validateEnvHandoffBackend(value string) error {
	switch value {
	case HandoffBackendFile, HandoffBackendSQLite, HandoffBackendMySQL, HandoffBackendMemory:
		return nil
	default:
		return fmt.Errorf("must be file, sqlite, mysql or memory")
	}
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	return nil
}
