// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Handoff backends.
const (
	HandoffBackendFile   = "file"
	HandoffBackendSQLite = "sqlite"
	HandoffBackendMySQL  = "mysql"
	HandoffBackendMemory = "memory"
)

// Upload targets.
const (
	UploadTargetLocal = "local"
	UploadTargetFTP   = "ftp"
	UploadTargetSFTP  = "sftp"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, validate := range []func(*Settings) error{
		validateMainSettings,
		validateDetectionSettings,
		validateHandoffSettings,
		validateProcessingSettings,
		validateUploadSettings,
		validateMQTTSettings,
		validateNotificationSettings,
		validateListenSettings,
	} {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(s *Settings) error {
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("main.timezone: %w", err)
	}
	return nil
}

// validateDetectionSettings fails fast on a bad preset name or detection file so that
// no per-frame evaluation ever sees an invalid configuration.
func validateDetectionSettings(s *Settings) error {
	if s.Detection.File == "" && !presetExists(s.Detection.Preset) {
		return fmt.Errorf("detection.preset: unknown preset %q", s.Detection.Preset)
	}
	if _, err := s.DetectionConfig(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	return nil
}

func validateHandoffSettings(s *Settings) error {
	h := &s.Handoff
	switch h.Backend {
	case HandoffBackendFile, HandoffBackendSQLite:
		if h.Path == "" {
			return fmt.Errorf("handoff.path is required for the %s backend", h.Backend)
		}
	case HandoffBackendMySQL:
		if h.DSN == "" {
			return fmt.Errorf("handoff.dsn is required for the mysql backend")
		}
	case HandoffBackendMemory:
	default:
		return fmt.Errorf("handoff.backend: unsupported backend %q", h.Backend)
	}
	if h.PollInterval <= 0 {
		return fmt.Errorf("handoff.pollinterval must be positive, got %s", h.PollInterval)
	}
	return nil
}

func validateProcessingSettings(s *Settings) error {
	p := &s.Processing
	var errs []string
	if p.OutputDir == "" {
		errs = append(errs, "processing.outputdir is required")
	}
	if !isFinite(p.GroupingGap) || p.GroupingGap < 0 {
		errs = append(errs, fmt.Sprintf("processing.groupinggap must be non-negative, got %v", p.GroupingGap))
	}
	if p.ExportTimeout < 0 {
		errs = append(errs, "processing.exporttimeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, ", "))
	}
	return nil
}

func validateUploadSettings(s *Settings) error {
	u := &s.Upload
	if !u.Enabled {
		return nil
	}
	if u.MaxRetries < 0 {
		return fmt.Errorf("upload.maxretries must not be negative")
	}
	switch u.Target {
	case UploadTargetLocal:
		if u.Local.Path == "" {
			return fmt.Errorf("upload.local.path is required")
		}
	case UploadTargetFTP:
		if u.FTP.Host == "" {
			return fmt.Errorf("upload.ftp.host is required")
		}
		if u.FTP.Port <= 0 || u.FTP.Port > 65535 {
			return fmt.Errorf("upload.ftp.port out of range: %d", u.FTP.Port)
		}
	case UploadTargetSFTP:
		if u.SFTP.Host == "" {
			return fmt.Errorf("upload.sftp.host is required")
		}
		if u.SFTP.Port <= 0 || u.SFTP.Port > 65535 {
			return fmt.Errorf("upload.sftp.port out of range: %d", u.SFTP.Port)
		}
		if u.SFTP.Password == "" && u.SFTP.KeyFile == "" {
			return fmt.Errorf("upload.sftp requires a password or a key file")
		}
	default:
		return fmt.Errorf("upload.target: unsupported target %q", u.Target)
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	m := &s.MQTT
	if !m.Enabled {
		return nil
	}
	if m.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when MQTT is enabled")
	}
	u, err := url.Parse(m.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker is not a valid URL: %q", m.Broker)
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when MQTT is enabled")
	}
	return nil
}

func validateNotificationSettings(s *Settings) error {
	if s.Notification.Enabled && len(s.Notification.URLs) == 0 {
		return fmt.Errorf("notification.urls requires at least one URL when notifications are enabled")
	}
	return nil
}

func validateListenSettings(s *Settings) error {
	var errs []string
	if s.Telemetry.Enabled {
		if _, _, err := net.SplitHostPort(s.Telemetry.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("telemetry.listen: %v", err))
		}
	}
	if s.API.Enabled {
		if _, _, err := net.SplitHostPort(s.API.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("api.listen: %v", err))
		}
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "sentry.dsn is required when Sentry is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, ", "))
	}
	return nil
}
