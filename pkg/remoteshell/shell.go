package remoteshell

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/sluicehq/sluice/pkg/log"
)

// Config describes how to reach the GPU host.
type Config struct {
	Host           string
	Port           int
	User           string
	PrivateKeyPath string
	DialTimeout    time.Duration
}

// Shell is a reconnecting SSH client. Connections are established lazily and
// re-established transparently on the next call after a drop; callers never
// need to know whether the underlying TCP connection is still alive.
type Shell struct {
	cfg    Config
	logger zerolog.Logger
	client *ssh.Client
}

// New creates a Shell for cfg. No network I/O happens until the first call.
func New(cfg Config) *Shell {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &Shell{cfg: cfg, logger: log.WithComponent("remoteshell")}
}

func (s *Shell) connect(ctx context.Context) (*ssh.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	keyData, err := os.ReadFile(s.cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // the GPU host is a single pinned deployment target, not reached over an untrusted network
		Timeout:         s.cfg.DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Cause: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, &Error{Kind: KindNetwork, Cause: err}
	}
	s.client = ssh.NewClient(sshConn, chans, reqs)
	return s.client, nil
}

// dropConnection discards the cached client so the next call reconnects.
func (s *Shell) dropConnection() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}

// ExecShell runs cmd on the remote host and returns its stdout. A non-zero
// exit is returned as an error wrapping the command's stderr; a network-level
// failure (dial, session creation) is classified KindNetwork so callers can
// apply the reconnect-with-backoff policy instead of treating it as fatal.
func (s *Shell) ExecShell(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		s.dropConnection()
		return "", &Error{Kind: KindNetwork, Cause: fmt.Errorf("new session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err := <-done:
		if err != nil {
			return stdout.String(), &Error{Kind: KindLaunch, Cause: fmt.Errorf("%s: %w (stderr: %s)", cmd, err, stderr.String())}
		}
		return stdout.String(), nil
	case <-time.After(timeout):
		_ = session.Signal(ssh.SIGKILL)
		return "", &Error{Kind: KindTimeout, Cause: fmt.Errorf("command timed out after %s: %s", timeout, cmd)}
	case <-ctx.Done():
		return "", &Error{Kind: KindNetwork, Cause: ctx.Err()}
	}
}

// ExecShellB64 base64-encodes payload and pipes it through `base64 -d` on the
// remote side before handing it to interpreter (e.g. "psql -f -" or "sh").
// This sidesteps shell-quoting entirely, which matters most for the
// coordination service's SQL introspection queries — the canonical,
// currently-maintained form per the spec's open question on the older
// non-base64 archival tool.
func (s *Shell) ExecShellB64(ctx context.Context, interpreter, payload string, timeout time.Duration) (string, error) {
	return s.ExecShell(ctx, buildB64Command(interpreter, payload), timeout)
}

// buildB64Command renders the base64-wrapped pipeline. Split out from
// ExecShellB64 so the encoding itself can be tested without a live SSH
// connection.
func buildB64Command(interpreter, payload string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("echo %s | base64 -d | %s", encoded, interpreter)
}

// UploadFile copies local to remotePath over SFTP-less SCP-style cat
// redirection: reading the local file and piping it through `cat >
// remotePath` avoids depending on a separate SFTP subsystem being enabled.
func (s *Shell) UploadFile(ctx context.Context, local, remotePath string, timeout time.Duration) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("read local file %s: %w", local, err)
	}
	cmd := fmt.Sprintf("cat > %s", remotePath)
	return s.pipeBytes(ctx, cmd, data, timeout)
}

// DownloadFile runs `cat remotePath` and writes its stdout to local.
func (s *Shell) DownloadFile(ctx context.Context, remotePath, local string, timeout time.Duration) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	session, err := client.NewSession()
	if err != nil {
		s.dropConnection()
		return &Error{Kind: KindNetwork, Cause: err}
	}
	defer session.Close()

	out, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", local, err)
	}
	defer out.Close()

	remoteOut, err := session.StdoutPipe()
	if err != nil {
		return &Error{Kind: KindNetwork, Cause: err}
	}
	if err := session.Start(fmt.Sprintf("cat %s", remotePath)); err != nil {
		return &Error{Kind: KindLaunch, Cause: err}
	}
	if _, err := io.Copy(out, remoteOut); err != nil {
		return fmt.Errorf("copy remote file: %w", err)
	}
	if err := session.Wait(); err != nil {
		return &Error{Kind: KindLaunch, Cause: err}
	}
	return nil
}

func (s *Shell) pipeBytes(ctx context.Context, cmd string, data []byte, timeout time.Duration) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	session, err := client.NewSession()
	if err != nil {
		s.dropConnection()
		return &Error{Kind: KindNetwork, Cause: err}
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return &Error{Kind: KindNetwork, Cause: err}
	}
	if err := session.Start(cmd); err != nil {
		return &Error{Kind: KindLaunch, Cause: err}
	}
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	stdin.Close()
	if err := session.Wait(); err != nil {
		return &Error{Kind: KindLaunch, Cause: err}
	}
	return nil
}

// Close releases the cached connection, if any.
func (s *Shell) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
