// Package sshexec implements the parallel SSH executor: connection
// handling, the per-host worker protocol, and the admission pool
// (spec.md §4.1).
//
// SSH transport and SFTP upload are grounded on
// other_examples/8592bdcb_purpleidea-mgmt__remote-remote.go.go (the
// client/sftp/session field layout) and
// other_examples/75b78a93_jbouey-msp-flake__appliance-internal-sshexec-executor.go.go
// and other_examples/d17f7108_zach-source-nix-fleet__cmd-nixfleet-internal-ssh-executor.go.go
// (parallel-fan-out-over-hosts shape), none of which are the teacher but
// are the only SSH-domain references in the retrieval pack.
package sshexec

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/xerrors"
)

// DefaultConnectTimeout is the default SSH dial timeout (spec.md §4.1).
const DefaultConnectTimeout = 30 * time.Second

// connectRetryBackoff is the pause before the single connection retry on
// a transient (refused/reset) failure (spec.md §4.1).
const connectRetryBackoff = 2 * time.Second

// Conn wraps one host's SSH transport plus the SFTP client layered on it,
// and is owned exclusively by the worker that opened it (spec.md §5
// "SSH sessions: exclusively owned by their worker").
type Conn struct {
	client *ssh.Client
	sftp   *sftp.Client

	RemoteDir string
}

// Dial opens an SSH transport to user@hostname using default credential
// discovery: the running ssh-agent (SSH_AUTH_SOCK) is tried first, then
// the user's default private key files, matching spec.md §4.1 step 2
// ("default credential discovery (agent/key)"). It retries exactly once
// on a transient (connection refused/reset) failure after a fixed
// backoff, per spec.md §4.1.
func Dial(ctx context.Context, user, hostname string, port int, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if port <= 0 {
		port = 22
	}
	auths, err := defaultAuthMethods()
	if err != nil {
		return nil, xerrors.Errorf("discover SSH credentials: %w", err)
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: known_hosts verification
		Timeout:         timeout,
	}
	addr := net.JoinHostPort(hostname, fmt.Sprintf("%d", port))

	client, err := dialOnce(ctx, addr, cfg)
	if err != nil && isTransient(err) {
		select {
		case <-time.After(connectRetryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		client, err = dialOnce(ctx, addr, cfg)
	}
	if err != nil {
		return nil, xerrors.Errorf("dial %s@%s: %w", user, hostname, err)
	}

	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, xerrors.Errorf("open sftp to %s@%s: %w", user, hostname, err)
	}
	return &Conn{client: client, sftp: sc}, nil
}

func dialOnce(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(rawConn, addr, cfg)
	if err != nil {
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func isTransient(err error) bool {
	return xerrors.Is(err, syscall.ECONNREFUSED) || xerrors.Is(err, syscall.ECONNRESET)
}

// defaultAuthMethods assembles AuthMethods from SSH_AUTH_SOCK and the
// user's default key files, never prompting interactively (spec.md §1
// "Non-goals: authentication flows beyond delegating to the SSH
// transport's own agent/key mechanisms").
func defaultAuthMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			ag := agent.NewClient(conn)
			methods = append(methods, ssh.PublicKeysCallback(ag.Signers))
		}
	}
	home, err := os.UserHomeDir()
	if err == nil {
		for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
			keyPath := path.Join(home, ".ssh", name)
			signer, err := loadSigner(keyPath)
			if err != nil {
				continue
			}
			methods = append(methods, ssh.PublicKeys(signer))
		}
	}
	return methods, nil
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	b, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(b)
}

// MakeWorkDir creates /tmp/build-<uuid> on the remote host and records it
// on the Conn for later cleanup (spec.md §4.1 step 3).
func (c *Conn) MakeWorkDir() (string, error) {
	dir := "/tmp/build-" + uuid.NewString()
	if err := c.sftp.MkdirAll(dir); err != nil {
		return "", xerrors.Errorf("mkdir %s: %w", dir, err)
	}
	c.RemoteDir = dir
	return dir, nil
}

// Upload copies localPath to dir/name on the remote host via SFTP,
// preserving the executable bit when mode requests it (spec.md §4.1 step
// 3, "Upload the tarball and the build-agent script via SFTP").
func (c *Conn) Upload(localPath, dir, name string, mode os.FileMode) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", xerrors.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()
	return c.uploadFrom(src, dir, name, mode)
}

// UploadBytes uploads an in-memory payload (the embedded default agent
// script) to dir/name.
func (c *Conn) UploadBytes(data []byte, dir, name string, mode os.FileMode) (string, error) {
	return c.uploadFrom(byteReader(data), dir, name, mode)
}

func (c *Conn) uploadFrom(src io.Reader, dir, name string, mode os.FileMode) (string, error) {
	remotePath := path.Join(dir, name)
	dst, err := c.sftp.Create(remotePath)
	if err != nil {
		return "", xerrors.Errorf("sftp create %s: %w", remotePath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", xerrors.Errorf("sftp write %s: %w", remotePath, err)
	}
	if err := c.sftp.Chmod(remotePath, mode); err != nil {
		return "", xerrors.Errorf("sftp chmod %s: %w", remotePath, err)
	}
	return remotePath, nil
}

func byteReader(b []byte) io.Reader {
	return &sliceReader{b: b}
}

// sliceReader is a minimal io.Reader over a byte slice, avoiding a
// bytes.Reader import purely for symmetry with Conn's other small helpers.
type sliceReader struct {
	b   []byte
	pos int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

// RemoveWorkDir best-effort removes the remote working directory,
// bounded by the caller's context deadline (spec.md §4.1 step 7,
// "best-effort").
func (c *Conn) RemoveWorkDir(ctx context.Context) error {
	if c.RemoteDir == "" {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- c.sftp.RemoveAll(c.RemoteDir) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session represents one remote command invocation with a combined
// stdout+stderr stream (spec.md §4.1 step 4).
type Session struct {
	sess *ssh.Session
	out  io.Reader
}

// Start invokes command on the remote host and returns a Session whose
// Output() streams the combined stdout+stderr. The command is wrapped in
// a shell redirection (2>&1) so the two descriptors are genuinely
// interleaved server-side rather than read from two separate pipes
// client-side, which would lose ordering between them.
func (c *Conn) Start(command string) (*Session, error) {
	sess, err := c.client.NewSession()
	if err != nil {
		return nil, xerrors.Errorf("new session: %w", err)
	}
	out, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, xerrors.Errorf("stdout pipe: %w", err)
	}
	combined := "(" + command + ") 2>&1"
	if err := sess.Start(combined); err != nil {
		sess.Close()
		return nil, xerrors.Errorf("start %q: %w", command, err)
	}
	return &Session{sess: sess, out: out}, nil
}

// Output returns the combined stdout+stderr reader.
func (s *Session) Output() io.Reader {
	return s.out
}

// Wait blocks for the remote command to exit and returns its exit status.
func (s *Session) Wait() (exitCode int, hasExitCode bool, err error) {
	err = s.sess.Wait()
	if err == nil {
		return 0, true, nil
	}
	var exitErr *ssh.ExitError
	if xerrors.As(err, &exitErr) {
		return exitErr.ExitStatus(), true, nil
	}
	return 0, false, err
}

// Close releases the session.
func (s *Session) Close() error {
	return s.sess.Close()
}

// Close releases the SFTP and SSH clients.
func (c *Conn) Close() error {
	if c.sftp != nil {
		c.sftp.Close()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
