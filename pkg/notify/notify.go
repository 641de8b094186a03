// Package notify implements the client side of the sd_notify readiness
// protocol: short "KEY=VALUE" datagrams sent to a supervisor over the unix
// socket named by the NOTIFY_SOCKET environment variable.
//
// The protocol is one way and best effort. A service running without a
// supervisor has nobody to talk to, and that must never break the service,
// so the default behavior of this package is to degrade to a quiet no-op.
// Construct the client with WithDebug during development to surface the
// failures instead.
package notify

import (
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	// ErrEmptyState is returned by Notify when the state payload is empty.
	// Unlike socket problems this is a caller bug and is never swallowed.
	ErrEmptyState = errors.New("empty notification state")

	// ErrUnsupportedAddress is returned for notification socket values that
	// name neither a filesystem path nor an abstract socket.
	ErrUnsupportedAddress = errors.New("unsupported notification socket address")
)

// Client sends service lifecycle notifications to a supervising process over
// a unix datagram socket.
//
// A Client is constructed once, holds a single connection for the lifetime of
// the process and never reconnects. Each Notify call is one datagram, so
// concurrent sends need no locking and never interleave. When no supervisor
// socket is available the Client is unconnected and every send quietly does
// nothing; once unconnected it stays that way.
type Client struct {
	addr  *Address
	conn  *net.UnixConn
	debug bool

	override string
	unsetEnv bool
}

// Option configures a Client during New.
type Option func(*Client)

// WithDebug surfaces resolution, connection and send failures to the caller
// instead of degrading to an unconnected no-op client.
func WithDebug() Option {
	return func(c *Client) { c.debug = true }
}

// WithAddress bypasses the NOTIFY_SOCKET environment lookup and uses the
// given value, in the same notation, as the socket address.
func WithAddress(addr string) Option {
	return func(c *Client) { c.override = addr }
}

// WithUnsetEnvironment clears NOTIFY_SOCKET from the process environment
// during New, keeping the supervisor socket from leaking into child
// processes that should not notify on our behalf.
func WithUnsetEnvironment() Option {
	return func(c *Client) { c.unsetEnv = true }
}

// New resolves the notification socket from the NOTIFY_SOCKET environment
// variable and connects to it. When the variable is unset or empty the
// returned Client is valid but unconnected and all sends are no-ops.
//
// Without WithDebug an unusable or unreachable socket also yields an
// unconnected Client and a nil error; with WithDebug those failures are
// returned.
func New(opts ...Option) (*Client, error) {
	client := &Client{}
	for _, opt := range opts {
		opt(client)
	}

	if client.unsetEnv {
		defer os.Unsetenv("NOTIFY_SOCKET")
	}

	raw := client.override
	if raw == "" {
		raw = os.Getenv("NOTIFY_SOCKET")
	}
	if raw == "" {
		return client, nil
	}

	addr, err := ResolveAddress(raw)
	if err != nil {
		if client.debug {
			return nil, err
		}
		return client, nil
	}
	client.addr = &addr

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: addr.Name, Net: "unixgram"})
	if err != nil {
		if client.debug {
			return nil, fmt.Errorf("failed to connect notification socket %s: %w", addr, err)
		}
		return client, nil
	}
	client.conn = conn

	return client, nil
}

// Notify sends state, one or more KEY=VALUE assignments separated by
// newlines, as a single datagram. There is no trailing newline on the wire.
//
// An empty state is always an error. When the Client is unconnected the
// state is dropped, and send failures are dropped too unless the Client was
// built with WithDebug.
func (c *Client) Notify(state string) error {
	if state == "" {
		return ErrEmptyState
	}
	if c.conn == nil {
		return nil
	}
	if _, err := c.conn.Write([]byte(state)); err != nil && c.debug {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// Connected reports whether a supervisor socket was successfully dialed and
// has not been closed.
func (c *Client) Connected() bool {
	return c.conn != nil
}

// Address returns the resolved socket address when resolution succeeded,
// even if the subsequent connect did not.
func (c *Client) Address() (Address, bool) {
	if c.addr == nil {
		return Address{}, false
	}
	return *c.addr, true
}

// Close releases the socket. The Client stays usable afterwards and behaves
// as unconnected; closing an unconnected Client is a no-op.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return conn.Close()
}
