// Package export cuts highlight clips out of session recordings.
package export

import (
	"context"
	"os/exec"
	"time"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// Exporter trims a time range of a recording into a clip file.
type Exporter interface {
	// Duration returns the total length of the recording at src.
	Duration(ctx context.Context, src string) (time.Duration, error)
	// Export writes the range [start, end] of src to dst. dst only appears once
	// the clip is complete.
	Export(ctx context.Context, src string, start, end time.Duration, dst string) error
}

// Config configures the FFmpeg exporter.
type Config struct {
	FFmpegPath  string        // ffmpeg binary, looked up in PATH when empty
	FFprobePath string        // ffprobe binary, looked up in PATH when empty
	Timeout     time.Duration // per-call timeout, 0 disables
	Reencode    bool          // re-encode instead of stream copy
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	}
}

// ValidateConfig resolves the binaries and rejects negative timeouts. The returned
// config carries absolute binary paths.
func ValidateConfig(cfg Config) (Config, error) {
	if cfg.Timeout < 0 {
		return cfg, errors.Newf("export timeout must not be negative, got %s", cfg.Timeout).
			Component("export").
			Category(errors.CategoryConfiguration).
			Build()
	}

	defaults := DefaultConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = defaults.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = defaults.FFprobePath
	}

	var err error
	if cfg.FFmpegPath, err = resolveBinary(cfg.FFmpegPath); err != nil {
		return cfg, err
	}
	if cfg.FFprobePath, err = resolveBinary(cfg.FFprobePath); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func resolveBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.New(err).
			Component("export").
			Category(errors.CategoryConfiguration).
			Context("binary", name).
			Build()
	}
	return path, nil
}

// GetLogger returns the export package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("export")
}
