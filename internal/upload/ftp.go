package upload

import (
	"context"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/tphakala/killclip/internal/logger"
)

// FTPConfig configures the FTP target.
type FTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	BasePath string
	Timeout  time.Duration
}

// FTPTarget uploads clips to an FTP server.
type FTPTarget struct {
	config FTPConfig
	log    logger.Logger
}

// NewFTPTarget validates config and returns a target. No connection is made.
func NewFTPTarget(config FTPConfig) (*FTPTarget, error) {
	if config.Host == "" {
		return nil, configError("ftp: host is required")
	}
	if config.Port == 0 {
		config.Port = DefaultFTPPort
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	config.BasePath = strings.TrimRight(config.BasePath, "/")
	if config.BasePath == "" {
		config.BasePath = "."
	}
	return &FTPTarget{config: config, log: GetLogger().Module("ftp")}, nil
}

// Name implements Target.
func (t *FTPTarget) Name() string { return "ftp" }

func (t *FTPTarget) connect(ctx context.Context) (*ftp.ServerConn, error) {
	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(t.config.Timeout))
	if err != nil {
		return nil, uploadError(fmt.Errorf("ftp: connection failed: %w", err), t.Name(), "connect")
	}
	if t.config.Username != "" {
		if err := conn.Login(t.config.Username, t.config.Password); err != nil {
			t.quit(conn)
			return nil, uploadError(fmt.Errorf("ftp: login failed: %w", err), t.Name(), "login")
		}
	}
	return conn, nil
}

func (t *FTPTarget) quit(conn *ftp.ServerConn) {
	if err := conn.Quit(); err != nil {
		t.log.Debug("failed to close FTP connection", logger.Error(err))
	}
}

// makeDirs creates every component of dir, ignoring components that already exist.
func (t *FTPTarget) makeDirs(conn *ftp.ServerConn, dir string) {
	if dir == "." || dir == "/" {
		return
	}
	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for part := range strings.SplitSeq(strings.Trim(dir, "/"), "/") {
		current = path.Join(current, part)
		_ = conn.MakeDir(current)
	}
}

// Upload implements Target. The file is stored under a temporary name and renamed.
func (t *FTPTarget) Upload(ctx context.Context, localPath string) (string, error) {
	name, err := remoteName(localPath)
	if err != nil {
		return "", err
	}
	src, _, err := openClip(localPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	conn, err := t.connect(ctx)
	if err != nil {
		return "", err
	}
	defer t.quit(conn)

	t.makeDirs(conn, t.config.BasePath)

	remote := path.Join(t.config.BasePath, name)
	tmp := path.Join(t.config.BasePath, fmt.Sprintf(".upload-%d-%s", time.Now().UnixNano(), name))
	if err := conn.Stor(tmp, &ctxReader{ctx: ctx, r: src}); err != nil {
		_ = conn.Delete(tmp)
		return "", uploadError(fmt.Errorf("ftp: failed to store file: %w", err), t.Name(), "store")
	}
	if err := conn.Rename(tmp, remote); err != nil {
		_ = conn.Delete(tmp)
		return "", uploadError(fmt.Errorf("ftp: failed to rename temporary file: %w", err), t.Name(), "rename")
	}

	t.log.Debug("clip uploaded", logger.String("file", name), logger.String("host", t.config.Host))
	return "ftp://" + net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port)) + "/" + strings.TrimPrefix(remote, "/"), nil
}

// Validate implements Target.
func (t *FTPTarget) Validate(ctx context.Context) error {
	conn, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer t.quit(conn)

	t.makeDirs(conn, t.config.BasePath)
	testDir := path.Join(t.config.BasePath, ".write_test")
	if err := conn.MakeDir(testDir); err != nil {
		return uploadError(fmt.Errorf("ftp: base path is not writable: %w", err), t.Name(), "validate")
	}
	if err := conn.RemoveDir(testDir); err != nil {
		t.log.Warn("failed to remove FTP write test directory", logger.Error(err))
	}
	return nil
}
