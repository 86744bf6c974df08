package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/tphakala/killclip/internal/logger"
)

// LocalTarget copies clips into a directory, for example a synced or mounted share.
type LocalTarget struct {
	dir string
}

// NewLocalTarget returns a target writing into dir.
func NewLocalTarget(dir string) (*LocalTarget, error) {
	if dir == "" {
		return nil, configError("local upload target requires a path")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, configError("local upload target path is invalid: " + err.Error())
	}
	return &LocalTarget{dir: abs}, nil
}

// Name implements Target.
func (t *LocalTarget) Name() string { return "local" }

// Upload implements Target. The copy is written under a temporary name and renamed.
func (t *LocalTarget) Upload(ctx context.Context, localPath string) (string, error) {
	name, err := remoteName(localPath)
	if err != nil {
		return "", err
	}
	src, _, err := openClip(localPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", uploadError(err, t.Name(), "create-directory")
	}

	tmp, err := os.CreateTemp(t.dir, ".upload-*")
	if err != nil {
		return "", uploadError(err, t.Name(), "create-temp")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: src}); err != nil {
		_ = tmp.Close()
		return "", uploadError(err, t.Name(), "copy")
	}
	if err := tmp.Close(); err != nil {
		return "", uploadError(err, t.Name(), "close")
	}

	dst := filepath.Join(t.dir, name)
	if err := os.Rename(tmpName, dst); err != nil {
		return "", uploadError(err, t.Name(), "rename")
	}
	GetLogger().Debug("clip copied", logger.String("target", t.Name()), logger.String("file", name))
	return dst, nil
}

// Validate implements Target.
func (t *LocalTarget) Validate(_ context.Context) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return uploadError(err, t.Name(), "create-directory")
	}
	probe, err := os.CreateTemp(t.dir, ".write-test-*")
	if err != nil {
		return uploadError(err, t.Name(), "write-test")
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
