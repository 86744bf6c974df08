// Package upload copies created clips to their final destination.
package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// Default connection settings for remote targets.
const (
	DefaultFTPPort  = 21
	DefaultSFTPPort = 22
	DefaultTimeout  = 30 * time.Second
)

// Target receives clip files.
type Target interface {
	// Name identifies the target in logs and metrics.
	Name() string
	// Upload copies the file at localPath and returns its remote location.
	Upload(ctx context.Context, localPath string) (string, error)
	// Validate checks that the target is reachable and writable.
	Validate(ctx context.Context) error
}

// GetLogger returns the upload package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("upload")
}

// NewTarget builds the target selected in settings.
func NewTarget(settings conf.UploadSettings) (Target, error) {
	switch settings.Target {
	case conf.UploadTargetLocal:
		return NewLocalTarget(settings.Local.Path)
	case conf.UploadTargetFTP:
		return NewFTPTarget(FTPConfig{
			Host:     settings.FTP.Host,
			Port:     settings.FTP.Port,
			Username: settings.FTP.Username,
			Password: settings.FTP.Password,
			BasePath: settings.FTP.Path,
			Timeout:  settings.FTP.Timeout,
		})
	case conf.UploadTargetSFTP:
		return NewSFTPTarget(SFTPConfig{
			Host:           settings.SFTP.Host,
			Port:           settings.SFTP.Port,
			Username:       settings.SFTP.Username,
			Password:       settings.SFTP.Password,
			KeyFile:        settings.SFTP.KeyFile,
			KnownHostsFile: settings.SFTP.KnownHostsFile,
			BasePath:       settings.SFTP.Path,
			Timeout:        settings.SFTP.Timeout,
		})
	default:
		return nil, configError(fmt.Sprintf("unsupported upload target %q", settings.Target))
	}
}

// remoteName returns the file name used on the target.
func remoteName(localPath string) (string, error) {
	name := filepath.Base(localPath)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", errors.Newf("invalid clip file name %q", name).
			Component("upload").
			Category(errors.CategoryValidation).
			Build()
	}
	return name, nil
}

// openClip opens a clip for reading.
func openClip(localPath string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("upload").
			Category(errors.CategoryFileIO).
			FileContext(localPath).
			Build()
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.New(err).
			Component("upload").
			Category(errors.CategoryFileIO).
			FileContext(localPath).
			Build()
	}
	return f, info, nil
}

func uploadError(err error, target, operation string) error {
	return errors.New(err).
		Component("upload").
		Category(errors.CategoryUpload).
		Context("target", target).
		Context("operation", operation).
		Build()
}

func configError(msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component("upload").
		Category(errors.CategoryConfiguration).
		Build()
}
