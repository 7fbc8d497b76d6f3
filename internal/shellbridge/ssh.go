package shellbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/Raj-Manghani/terminus-prime/internal/logutil"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTerm is the terminal type requested when PTY.Term is empty.
const DefaultTerm = "xterm-256color"

// SSHDialer dials SSH servers using password and keyboard-interactive
// authentication with the target's secret.
type SSHDialer struct {
	timeout         time.Duration
	hostKeyCallback ssh.HostKeyCallback
}

// NewSSHDialer creates a dialer. When knownHostsPath is set, host keys are
// verified against that file; otherwise any host key is accepted.
func NewSSHDialer(timeout time.Duration, knownHostsPath string) (*SSHDialer, error) {
	d := &SSHDialer{timeout: timeout}
	if knownHostsPath != "" {
		cb, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", logutil.SanitizeForLog(knownHostsPath), err)
		}
		d.hostKeyCallback = cb
	} else {
		log.Printf("[ssh] WARNING: no known_hosts file configured, host keys are not verified")
		d.hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	return d, nil
}

// Dial connects and authenticates. The handshake is aborted when ctx is
// cancelled or the dialer's timeout elapses.
func (d *SSHDialer) Dial(ctx context.Context, target Target) (Conn, error) {
	if target.Host == "" {
		return nil, errors.New("host is empty")
	}
	port := target.Port
	if port == 0 {
		port = 22
	}

	secret := target.Secret
	config := &ssh.ClientConfig{
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(secret),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = secret
				}
				return answers, nil
			}),
		},
		HostKeyCallback: d.hostKeyCallback,
		Timeout:         d.timeout,
	}

	addr := net.JoinHostPort(target.Host, strconv.Itoa(int(port)))
	dialer := net.Dialer{Timeout: d.timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", logutil.SanitizeForLog(addr), err)
	}

	if d.timeout > 0 {
		netConn.SetDeadline(time.Now().Add(d.timeout))
	}
	stop := context.AfterFunc(ctx, func() { netConn.Close() })

	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if !stop() {
		if err == nil {
			c.Close()
		}
		return nil, fmt.Errorf("connect to %s: %w", logutil.SanitizeForLog(addr), ctx.Err())
	}
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("connect to %s: %w", logutil.SanitizeForLog(addr), err)
	}
	netConn.SetDeadline(time.Time{})

	log.Printf("[ssh] connected to %s", logutil.Target(target.Username, target.Host, port))
	return &sshConn{client: ssh.NewClient(c, chans, reqs)}, nil
}

type sshConn struct {
	client *ssh.Client
}

// OpenShell requests a PTY and starts the login shell.
func (c *sshConn) OpenShell(ctx context.Context, pty PTY) (Shell, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	term := pty.Term
	if term == "" {
		term = DefaultTerm
	}
	cols, rows := pty.Cols, pty.Rows
	if cols == 0 || rows == 0 {
		cols, rows = 80, 24
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(term, int(rows), int(cols), modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}
	if ctx.Err() != nil {
		session.Close()
		return nil, ctx.Err()
	}

	return &sshShell{session: session, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (c *sshConn) Close() error {
	return c.client.Close()
}

type sshShell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

func (s *sshShell) Stdout() io.Reader { return s.stdout }
func (s *sshShell) Stderr() io.Reader { return s.stderr }

func (s *sshShell) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Resize changes the terminal dimensions of the PTY.
func (s *sshShell) Resize(cols, rows uint16) error {
	return s.session.WindowChange(int(rows), int(cols))
}

// Close terminates the SSH session.
func (s *sshShell) Close() error {
	return s.session.Close()
}
