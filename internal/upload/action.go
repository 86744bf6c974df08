package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/logger"
)

// Result describes one finished upload.
type Result struct {
	LocalPath string
	Remote    string
	Target    string
	Duration  time.Duration
}

// UploadAction is the job queue action that uploads one clip. The job data is the
// local clip path.
type UploadAction struct {
	Target    Target
	OnSuccess func(Result)
}

// Execute implements jobqueue.Action.
func (a *UploadAction) Execute(ctx context.Context, data any) error {
	localPath, ok := data.(string)
	if !ok || localPath == "" {
		return errors.New(fmt.Errorf("upload job data must be a clip path, got %T", data)).
			Component("upload").
			Category(errors.CategoryValidation).
			Build()
	}

	start := time.Now()
	remote, err := a.Target.Upload(ctx, localPath)
	if err != nil {
		return err
	}
	res := Result{LocalPath: localPath, Remote: remote, Target: a.Target.Name(), Duration: time.Since(start)}
	GetLogger().Info("clip uploaded",
		logger.String("target", res.Target),
		logger.String("remote", res.Remote),
		logger.Duration("elapsed", res.Duration))
	if a.OnSuccess != nil {
		a.OnSuccess(res)
	}
	return nil
}

// GetDescription implements jobqueue.Action.
func (a *UploadAction) GetDescription() string {
	return "upload clip to " + a.Target.Name()
}
