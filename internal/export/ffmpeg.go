package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// tempExt marks a clip that is still being written.
const tempExt = ".tmp"

// maxStderr bounds the FFmpeg output kept in errors.
const maxStderr = 1024

// FFmpegExporter implements Exporter with the ffprobe and ffmpeg binaries.
type FFmpegExporter struct {
	cfg Config
}

// NewFFmpegExporter validates cfg and returns an exporter.
func NewFFmpegExporter(cfg Config) (*FFmpegExporter, error) {
	resolved, err := ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &FFmpegExporter{cfg: resolved}, nil
}

// probeOutput is the part of ffprobe's JSON output we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration implements Exporter.
func (e *FFmpegExporter) Duration(ctx context.Context, src string) (time.Duration, error) {
	if err := checkSource(src); err != nil {
		return 0, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.cfg.FFprobePath,
		"-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", src)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, durationUnknown(fmt.Errorf("ffprobe failed: %w: %s", err, tail(stderr.String())), src).
			Timing("ffprobe", time.Since(start)).
			Build()
	}

	d, err := parseDuration(out)
	if err != nil {
		return 0, durationUnknown(err, src).Build()
	}
	return d, nil
}

// parseDuration reads the container duration from ffprobe JSON.
func parseDuration(out []byte) (time.Duration, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("ffprobe output: %w", err)
	}
	raw := strings.TrimSpace(probe.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, errors.NewStd("ffprobe reported no duration")
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", raw, err)
	}
	if sec <= 0 {
		return 0, fmt.Errorf("ffprobe duration %q is not positive", raw)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// Export implements Exporter. The clip is written to dst+".tmp" and renamed into
// place when FFmpeg succeeds.
func (e *FFmpegExporter) Export(ctx context.Context, src string, start, end time.Duration, dst string) error {
	if err := checkSource(src); err != nil {
		return err
	}
	if end <= start {
		return errors.Newf("empty clip range %s to %s", start, end).
			Component("export").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			FileContext(dst).
			Build()
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	tmp := dst + tempExt
	began := time.Now()
	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, buildFFmpegArgs(src, start, end, tmp, e.cfg.Reencode)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		category := errors.CategoryExport
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			category = errors.CategoryTimeout
		}
		return errors.New(fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String()))).
			Component("export").
			Category(category).
			FileContext(dst).
			Timing("ffmpeg-export", time.Since(began)).
			Build()
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return errors.New(fmt.Errorf("failed to finalize clip: %w", err)).
			Component("export").
			Category(errors.CategoryFileIO).
			FileContext(dst).
			Build()
	}

	GetLogger().Debug("clip exported",
		logger.String("output", filepath.Base(dst)),
		logger.Duration("start", start),
		logger.Duration("end", end),
		logger.Duration("elapsed", time.Since(began)))
	return nil
}

// buildFFmpegArgs seeks on the input and cuts length end-start. Stream copy cuts
// on keyframes.
func buildFFmpegArgs(src string, start, end time.Duration, out string, reencode bool) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(end - start),
	}
	if reencode {
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac")
	} else {
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	}
	return append(args, "-movflags", "+faststart", "-f", "mp4", out)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (e *FFmpegExporter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, e.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// checkSource reports a missing-source error when src is not a readable file.
func checkSource(src string) error {
	info, err := os.Stat(src)
	if err == nil && info.Mode().IsRegular() {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("%s is not a regular file", filepath.Base(src))
	}
	return errors.New(err).
		Component("export").
		Category(errors.CategoryMissingSource).
		FileContext(src).
		Build()
}

func durationUnknown(err error, src string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("export").
		Category(errors.CategoryDurationUnknown).
		FileContext(src)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return "..." + s[len(s)-maxStderr:]
	}
	return s
}
