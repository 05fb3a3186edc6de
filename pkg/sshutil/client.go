package sshutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/kevinburke/ssh_config"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// DefaultTimeout 連線逾時預設值
const DefaultTimeout = 30 * time.Second

// Target 描述遠端部署目標
type Target struct {
	Host           string // Hostname, IP or ~/.ssh/config alias
	Port           string
	User           string
	Password       string
	KeyPath        string
	KnownHostsFile string
	HostKey        string // Pinned SHA256 fingerprint, overrides KnownHostsFile
	Timeout        time.Duration
}

// Addr returns host:port
func (t Target) Addr() string {
	port := t.Port
	if port == "" {
		port = "22"
	}
	return net.JoinHostPort(t.Host, port)
}

// Resolve 從 ssh config 補齊未設定的欄位 (HostName, User, Port, IdentityFile)
// 找不到設定檔時原樣回傳
func (t Target) Resolve(configPath string) Target {
	f, err := os.Open(configPath)
	if err != nil {
		return t.withDefaults()
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		slog.Warn("Ignoring unparsable ssh config", "path", configPath, "err", err)
		return t.withDefaults()
	}

	alias := t.Host
	if host, _ := cfg.Get(alias, "HostName"); host != "" {
		t.Host = host
	}
	if t.User == "" {
		t.User, _ = cfg.Get(alias, "User")
	}
	if t.Port == "" {
		t.Port, _ = cfg.Get(alias, "Port")
	}
	if t.KeyPath == "" {
		key, _ := cfg.Get(alias, "IdentityFile")
		if key != "~/.ssh/identity" {
			t.KeyPath = key
		}
	}
	return t.withDefaults()
}

func (t Target) withDefaults() Target {
	if t.Port == "" {
		t.Port = "22"
	}
	if t.User == "" {
		t.User = os.Getenv("USER") // 預設使用當前使用者
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultTimeout
	}
	if t.KeyPath != "" {
		t.KeyPath = expandPath(t.KeyPath)
	}
	if t.KnownHostsFile != "" {
		t.KnownHostsFile = expandPath(t.KnownHostsFile)
	}
	return t
}

// DefaultSSHConfigPath returns ~/.ssh/config
func DefaultSSHConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".ssh", "config")
}

// Result 遠端指令執行結果
type Result struct {
	Command    string
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Success reports whether the remote process exited with status 0.
// Stderr is not considered.
func (r *Result) Success() bool {
	return r.ExitStatus == 0
}

// Client 封裝 SSH 連線與 SFTP 子通道
type Client struct {
	Target Target

	// Progress 若不為 nil，上傳時在此輸出進度條
	Progress io.Writer

	client    *ssh.Client
	sftp      *sftp.Client
	agentConn net.Conn // ssh-agent socket, kept open for the session
	closed    bool
}

// NewClient 建立 Client，尚未連線
func NewClient(t Target) *Client {
	return &Client{Target: t.withDefaults()}
}

// Connect 建立已驗證的 SSH 連線
func (c *Client) Connect() error {
	addr := c.Target.Addr()

	hostKeyCallback, err := HostKeyCallback(c.Target)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}

	authMethods, agentConn, err := authMethodsFor(c.Target)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}

	config := &ssh.ClientConfig{
		User:            c.Target.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.Target.Timeout,
	}

	slog.Debug("Dialing SSH", "addr", addr, "user", c.Target.User, "auth_methods", len(authMethods))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		if agentConn != nil {
			agentConn.Close()
		}
		return &ConnectionError{Addr: addr, Err: err}
	}
	c.client = client
	c.agentConn = agentConn
	c.closed = false
	return nil
}

// Close 關閉 SFTP、SSH 與 agent 連線，可重複呼叫
func (c *Client) Close() error {
	if c.closed || c.client == nil {
		return nil
	}
	c.closed = true

	var errs []error
	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			errs = append(errs, err)
		}
		c.sftp = nil
	}
	if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, err)
	}
	c.client = nil
	if c.agentConn != nil {
		if err := c.agentConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		c.agentConn = nil
	}
	return errors.Join(errs...)
}

func (c *Client) sftpClient() (*sftp.Client, error) {
	if c.client == nil {
		return nil, errNotConnected
	}
	if c.sftp == nil {
		s, err := sftp.NewClient(c.client)
		if err != nil {
			return nil, fmt.Errorf("open sftp subsystem: %w", err)
		}
		c.sftp = s
	}
	return c.sftp, nil
}

// Upload 以 SFTP 將本地檔案完整複製到遠端 (覆寫)，回傳寫入位元組數
func (c *Client) Upload(localPath, remotePath string) (int64, error) {
	fail := func(err error) (int64, error) {
		return 0, &TransferError{Local: localPath, Remote: remotePath, Err: err}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fail(err)
	}
	if info.IsDir() {
		return fail(fmt.Errorf("%s is a directory", localPath))
	}

	s, err := c.sftpClient()
	if err != nil {
		return fail(err)
	}

	remote, err := s.Create(remotePath)
	if err != nil {
		return fail(fmt.Errorf("create remote file: %w", err))
	}

	var src io.Reader = f
	if c.Progress != nil {
		bar := pb.New64(info.Size())
		bar.Set(pb.Bytes, true)
		bar.SetWriter(c.Progress)
		bar.Start()
		defer bar.Finish()
		src = bar.NewProxyReader(f)
	}

	n, err := io.Copy(remote, src)
	if err != nil {
		remote.Close()
		return fail(fmt.Errorf("write remote file: %w", err))
	}
	if err := remote.Close(); err != nil {
		return fail(fmt.Errorf("close remote file: %w", err))
	}
	return n, nil
}

// RemoteSize 取得遠端檔案大小
func (c *Client) RemoteSize(remotePath string) (int64, error) {
	s, err := c.sftpClient()
	if err != nil {
		return 0, &TransferError{Remote: remotePath, Err: err}
	}
	info, err := s.Stat(remotePath)
	if err != nil {
		return 0, &TransferError{Remote: remotePath, Err: err}
	}
	return info.Size(), nil
}

// RunCommand 同步執行單一指令，完整收集 stdout/stderr
// 非零結束碼透過 Result.ExitStatus 回報，不視為錯誤
func (c *Client) RunCommand(cmd string) (*Result, error) {
	if c.client == nil {
		return nil, &ExecutionError{Command: cmd, Err: errNotConnected}
	}

	session, err := c.client.NewSession()
	if err != nil {
		return nil, &ExecutionError{Command: cmd, Err: fmt.Errorf("open session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	res := &Result{Command: cmd}
	err = session.Run(cmd)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitStatus = exitErr.ExitStatus()
	default:
		return res, &ExecutionError{Command: cmd, Err: err}
	}
	return res, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(os.Getenv("HOME"), path[2:])
	}
	return path
}
