package handoff

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// VideoRemover deletes the session recording once every clip was created.
type VideoRemover interface {
	Remove(ctx context.Context, sessionURL string) error
}

// RemoverFunc adapts a function to VideoRemover.
type RemoverFunc func(ctx context.Context, sessionURL string) error

// Remove calls f.
func (f RemoverFunc) Remove(ctx context.Context, sessionURL string) error {
	return f(ctx, sessionURL)
}

// FileRemover removes local session recordings. A recording that is already gone
// is not an error.
type FileRemover struct{}

// Remove implements VideoRemover.
func (FileRemover) Remove(_ context.Context, sessionURL string) error {
	path, err := LocalPath(sessionURL)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.New(err).
			Component("handoff").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Context("operation", "remove-session-video").
			Build()
	}
	GetLogger().Info("removed session video", logger.String("path", path))
	return nil
}

// KeepRemover never deletes anything.
type KeepRemover struct{}

// Remove implements VideoRemover.
func (KeepRemover) Remove(context.Context, string) error { return nil }

// LocalPath resolves a session reference to a filesystem path. Plain paths and
// file:// URLs are accepted.
func LocalPath(sessionURL string) (string, error) {
	if !strings.Contains(sessionURL, "://") {
		return sessionURL, nil
	}
	u, err := url.Parse(sessionURL)
	if err != nil {
		return "", errors.New(err).
			Component("handoff").
			Category(errors.CategoryValidation).
			Build()
	}
	if u.Scheme != "file" {
		return "", errors.New(fmt.Errorf("unsupported session reference scheme %q", u.Scheme)).
			Component("handoff").
			Category(errors.CategoryValidation).
			Build()
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", errors.New(fmt.Errorf("session reference on remote host %q", u.Host)).
			Component("handoff").
			Category(errors.CategoryValidation).
			Build()
	}
	return u.Path, nil
}
