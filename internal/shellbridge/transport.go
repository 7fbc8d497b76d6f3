package shellbridge

import (
	"context"
	"io"
)

// Target is where and as whom to connect. Secret is used for authentication
// only and is never logged or persisted.
type Target struct {
	Host     string
	Port     uint16
	Username string
	Secret   string
}

// PTY describes the pseudo-terminal requested for the shell.
type PTY struct {
	Term string
	Cols uint16
	Rows uint16
}

// Dialer opens transport connections.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Conn, error)
}

// Conn is an established, authenticated transport connection.
type Conn interface {
	OpenShell(ctx context.Context, pty PTY) (Shell, error)
	Close() error
}

// Shell is an interactive shell channel. Stdout returning io.EOF means the
// channel closed. Stderr may return nil when the transport has none.
type Shell interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Write(p []byte) (int, error)
	Resize(cols, rows uint16) error
	Close() error
}
