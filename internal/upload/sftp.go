package upload

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tphakala/killclip/internal/logger"
)

// SFTPConfig configures the SFTP target.
type SFTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	KeyFile        string
	KnownHostsFile string // defaults to ~/.ssh/known_hosts
	BasePath       string
	Timeout        time.Duration
}

// SFTPTarget uploads clips over SFTP. Host keys are verified against a known_hosts file.
type SFTPTarget struct {
	config SFTPConfig
	log    logger.Logger
}

// NewSFTPTarget validates config and returns a target. No connection is made.
func NewSFTPTarget(config SFTPConfig) (*SFTPTarget, error) {
	if config.Host == "" {
		return nil, configError("sftp: host is required")
	}
	if config.Username == "" {
		return nil, configError("sftp: username is required")
	}
	if config.KeyFile == "" && config.Password == "" {
		return nil, configError("sftp: a key file or a password is required")
	}
	if config.Port == 0 {
		config.Port = DefaultSFTPPort
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.KnownHostsFile == "" {
		config.KnownHostsFile = defaultKnownHostsFile()
	}
	config.BasePath = strings.TrimRight(config.BasePath, "/")
	if config.BasePath == "" {
		config.BasePath = "."
	}
	return &SFTPTarget{config: config, log: GetLogger().Module("sftp")}, nil
}

func defaultKnownHostsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// Name implements Target.
func (t *SFTPTarget) Name() string { return "sftp" }

func (t *SFTPTarget) clientConfig() (*ssh.ClientConfig, error) {
	if t.config.KnownHostsFile == "" {
		return nil, configError("sftp: known_hosts file could not be determined")
	}
	hostKeyCallback, err := knownhosts.New(t.config.KnownHostsFile)
	if err != nil {
		return nil, configError(fmt.Sprintf("sftp: failed to load known_hosts: %v", err))
	}

	cfg := &ssh.ClientConfig{
		User:            t.config.Username,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.config.Timeout,
	}
	if t.config.KeyFile != "" {
		key, err := os.ReadFile(t.config.KeyFile)
		if err != nil {
			return nil, configError(fmt.Sprintf("sftp: failed to read private key: %v", err))
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, configError(fmt.Sprintf("sftp: failed to parse private key: %v", err))
		}
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signer))
	}
	if t.config.Password != "" {
		cfg.Auth = append(cfg.Auth, ssh.Password(t.config.Password))
	}
	return cfg, nil
}

// connect dials the server. The dial honors ctx; the SSH handshake is bounded by the timeout.
func (t *SFTPTarget) connect(ctx context.Context) (*sftp.Client, error) {
	cfg, err := t.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	dialer := net.Dialer{Timeout: t.config.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, uploadError(fmt.Errorf("sftp: failed to connect: %w", err), t.Name(), "connect")
	}
	_ = netConn.SetDeadline(time.Now().Add(t.config.Timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		_ = netConn.Close()
		return nil, uploadError(fmt.Errorf("sftp: handshake failed: %w", err), t.Name(), "handshake")
	}
	_ = netConn.SetDeadline(time.Time{})

	client, err := sftp.NewClient(ssh.NewClient(sshConn, chans, reqs))
	if err != nil {
		_ = sshConn.Close()
		return nil, uploadError(fmt.Errorf("sftp: failed to create client: %w", err), t.Name(), "client")
	}
	return client, nil
}

// Upload implements Target. The file is written under a temporary name and renamed.
func (t *SFTPTarget) Upload(ctx context.Context, localPath string) (string, error) {
	name, err := remoteName(localPath)
	if err != nil {
		return "", err
	}
	src, _, err := openClip(localPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	client, err := t.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	if err := client.MkdirAll(t.config.BasePath); err != nil {
		return "", uploadError(fmt.Errorf("sftp: failed to create directory: %w", err), t.Name(), "mkdir")
	}

	remote := path.Join(t.config.BasePath, name)
	tmp := path.Join(t.config.BasePath, ".upload-"+name)
	dst, err := client.Create(tmp)
	if err != nil {
		return "", uploadError(fmt.Errorf("sftp: failed to create file: %w", err), t.Name(), "create")
	}
	if _, err := dst.ReadFrom(&ctxReader{ctx: ctx, r: src}); err != nil {
		_ = dst.Close()
		_ = client.Remove(tmp)
		return "", uploadError(fmt.Errorf("sftp: failed to write file: %w", err), t.Name(), "write")
	}
	if err := dst.Close(); err != nil {
		_ = client.Remove(tmp)
		return "", uploadError(fmt.Errorf("sftp: failed to close file: %w", err), t.Name(), "close")
	}
	if err := client.PosixRename(tmp, remote); err != nil {
		_ = client.Remove(tmp)
		return "", uploadError(fmt.Errorf("sftp: failed to rename file: %w", err), t.Name(), "rename")
	}

	t.log.Debug("clip uploaded", logger.String("file", name), logger.String("host", t.config.Host))
	return "sftp://" + net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port)) + "/" + strings.TrimPrefix(remote, "/"), nil
}

// Validate implements Target.
func (t *SFTPTarget) Validate(ctx context.Context) error {
	client, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	testDir := path.Join(t.config.BasePath, ".write_test")
	if err := client.MkdirAll(testDir); err != nil {
		return uploadError(fmt.Errorf("sftp: base path is not writable: %w", err), t.Name(), "validate")
	}
	if err := client.RemoveDirectory(testDir); err != nil {
		t.log.Warn("failed to remove SFTP write test directory", logger.Error(err))
	}
	return nil
}
