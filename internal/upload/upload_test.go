package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/killclip/internal/conf"
	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/jobqueue"
)

var _ jobqueue.Action = (*UploadAction)(nil)

func writeClip(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLocalTargetUpload(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "nested", "clips")
	target, err := NewLocalTarget(dest)
	require.NoError(t, err)

	clip := writeClip(t, "2025-03-14_18-02-11_kill1_DOUBLE_KILL.mp4", "video-bytes")
	remote, err := target.Upload(t.Context(), clip)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "2025-03-14_18-02-11_kill1_DOUBLE_KILL.mp4"), remote)

	got, err := os.ReadFile(remote)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(got))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")
}

func TestLocalTargetUploadErrors(t *testing.T) {
	t.Parallel()

	target, err := NewLocalTarget(t.TempDir())
	require.NoError(t, err)

	_, err = target.Upload(t.Context(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	_, err = target.Upload(t.Context(), writeClip(t, ".hidden.mp4", "x"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = target.Upload(ctx, writeClip(t, "clip.mp4", "x"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryUpload))
}

func TestLocalTargetValidate(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	target, err := NewLocalTarget(dir)
	require.NoError(t, err)
	require.NoError(t, target.Validate(t.Context()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings conf.UploadSettings
		wantName string
		wantErr  bool
	}{
		{
			name:     "local",
			settings: conf.UploadSettings{Target: conf.UploadTargetLocal, Local: conf.LocalTargetSettings{Path: "/tmp/clips"}},
			wantName: "local",
		},
		{
			name:     "local without path",
			settings: conf.UploadSettings{Target: conf.UploadTargetLocal},
			wantErr:  true,
		},
		{
			name:     "ftp",
			settings: conf.UploadSettings{Target: conf.UploadTargetFTP, FTP: conf.FTPTargetSettings{Host: "nas.local"}},
			wantName: "ftp",
		},
		{
			name:     "ftp without host",
			settings: conf.UploadSettings{Target: conf.UploadTargetFTP},
			wantErr:  true,
		},
		{
			name: "sftp",
			settings: conf.UploadSettings{Target: conf.UploadTargetSFTP, SFTP: conf.SFTPTargetSettings{
				Host: "nas.local", Username: "clips", Password: "secret",
			}},
			wantName: "sftp",
		},
		{
			name: "sftp without credentials",
			settings: conf.UploadSettings{Target: conf.UploadTargetSFTP, SFTP: conf.SFTPTargetSettings{
				Host: "nas.local", Username: "clips",
			}},
			wantErr: true,
		},
		{
			name:     "unknown",
			settings: conf.UploadSettings{Target: "s3"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			target, err := NewTarget(tt.settings)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, target.Name())
		})
	}
}

func TestRemoteTargetDefaults(t *testing.T) {
	t.Parallel()

	ftpTarget, err := NewFTPTarget(FTPConfig{Host: "nas.local", BasePath: "/clips/"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFTPPort, ftpTarget.config.Port)
	assert.Equal(t, DefaultTimeout, ftpTarget.config.Timeout)
	assert.Equal(t, "/clips", ftpTarget.config.BasePath)

	sftpTarget, err := NewSFTPTarget(SFTPConfig{Host: "nas.local", Username: "u", Password: "p", KnownHostsFile: "/etc/ssh/known"})
	require.NoError(t, err)
	assert.Equal(t, DefaultSFTPPort, sftpTarget.config.Port)
	assert.Equal(t, ".", sftpTarget.config.BasePath)
	assert.Equal(t, "/etc/ssh/known", sftpTarget.config.KnownHostsFile)
}

func TestSFTPClientConfigRequiresKnownHosts(t *testing.T) {
	t.Parallel()

	target, err := NewSFTPTarget(SFTPConfig{
		Host: "nas.local", Username: "u", Password: "p",
		KnownHostsFile: filepath.Join(t.TempDir(), "missing_known_hosts"),
	})
	require.NoError(t, err)

	_, err = target.clientConfig()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestUploadAction(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	target, err := NewLocalTarget(dest)
	require.NoError(t, err)

	var results []Result
	action := &UploadAction{Target: target, OnSuccess: func(r Result) { results = append(results, r) }}
	assert.Equal(t, "upload clip to local", action.GetDescription())

	clip := writeClip(t, "clip.mp4", "data")
	require.NoError(t, action.Execute(t.Context(), clip))
	require.Len(t, results, 1)
	assert.Equal(t, clip, results[0].LocalPath)
	assert.Equal(t, filepath.Join(dest, "clip.mp4"), results[0].Remote)
	assert.Equal(t, "local", results[0].Target)

	err = action.Execute(t.Context(), 42)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Len(t, results, 1)
}

func TestUploadActionThroughQueue(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	target, err := NewLocalTarget(dest)
	require.NoError(t, err)

	done := make(chan Result, 1)
	q := jobqueue.NewJobQueue(jobqueue.WithProcessingInterval(10 * time.Millisecond))
	q.Start(t.Context())
	job, err := q.Enqueue(&UploadAction{Target: target, OnSuccess: func(r Result) { done <- r }},
		writeClip(t, "queued.mp4", "q"), jobqueue.GetDefaultRetryConfig(false))
	require.NoError(t, err)
	require.NotNil(t, job)

	select {
	case r := <-done:
		assert.Equal(t, filepath.Join(dest, "queued.mp4"), r.Remote)
	case <-time.After(5 * time.Second):
		t.Fatal("upload action did not run")
	}
	require.NoError(t, q.Stop(time.Second))
	assert.Equal(t, 1, q.GetStats().SuccessfulJobs)
}
