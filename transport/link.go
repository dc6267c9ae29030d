// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"
)

// DefaultIdleTimeout is the idle window used when none is configured.
const DefaultIdleTimeout = 90 * time.Second

// ErrAlreadySecure is returned by StartTLS if the link is already encrypted.
var ErrAlreadySecure = errors.New("transport: link is already secure")

// Link is a connection to the server.
// Reads and writes may happen concurrently but StartTLS must not be called
// while a read or write is in progress.
type Link struct {
	mu     sync.Mutex
	conn   net.Conn
	secure bool
	idle   time.Duration

	health chan error
	once   sync.Once
}

// New wraps conn in a link.
// If conn is a *tls.Conn the link is considered secure.
// A non-positive idle disables the idle window.
func New(conn net.Conn, idle time.Duration) *Link {
	_, secure := conn.(*tls.Conn)
	return &Link{
		conn:   conn,
		secure: secure,
		idle:   idle,
		health: make(chan error, 1),
	}
}

func (l *Link) current() net.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// fail records the first failure on the health channel and classifies err.
func (l *Link) fail(err error) error {
	err = Classify(err)
	l.once.Do(func() {
		l.health <- err
		close(l.health)
	})
	return err
}

// Read reads from the connection.
// If no bytes arrive within the idle window the read fails with
// ErrConnectionTimeout.
func (l *Link) Read(p []byte) (int, error) {
	conn := l.current()
	if l.idle > 0 {
		err := conn.SetReadDeadline(time.Now().Add(l.idle))
		if err != nil {
			return 0, l.fail(err)
		}
	}
	n, err := conn.Read(p)
	if err != nil {
		return n, l.fail(err)
	}
	return n, nil
}

// Write writes to the connection.
func (l *Link) Write(p []byte) (int, error) {
	n, err := l.current().Write(p)
	if err != nil {
		return n, l.fail(err)
	}
	return n, nil
}

// Close closes the connection.
// The health channel reports ErrConnectionClosed unless an earlier failure
// was already reported.
func (l *Link) Close() error {
	err := l.current().Close()
	l.fail(net.ErrClosed)
	return err
}

// Health returns a channel that receives exactly one classified error when the
// link fails or is closed and is then closed itself.
func (l *Link) Health() <-chan error {
	return l.health
}

// Secure reports whether the link is encrypted.
func (l *Link) Secure() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.secure
}

// ConnectionState returns the TLS state of the underlying connection.
// It reports false if the link is not encrypted.
func (l *Link) ConnectionState() (tls.ConnectionState, bool) {
	tc, ok := l.current().(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tc.ConnectionState(), true
}

// StartTLS upgrades the link to TLS in place and performs the handshake.
// A failed handshake is reported as ErrConnectionRefused.
func (l *Link) StartTLS(ctx context.Context, config *tls.Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.secure {
		return ErrAlreadySecure
	}
	tc := tls.Client(l.conn, config)
	if err := tc.HandshakeContext(ctx); err != nil {
		return &Error{Class: ErrConnectionRefused, Err: err}
	}
	l.conn = tc
	l.secure = true
	return nil
}

// LocalAddr returns the local network address.
func (l *Link) LocalAddr() net.Addr { return l.current().LocalAddr() }

// RemoteAddr returns the remote network address.
func (l *Link) RemoteAddr() net.Addr { return l.current().RemoteAddr() }

// SetDeadline sets the read and write deadlines of the connection.
func (l *Link) SetDeadline(t time.Time) error { return l.current().SetDeadline(t) }

// SetReadDeadline sets the read deadline of the connection.
// It is overwritten by the next Read if an idle window is configured.
func (l *Link) SetReadDeadline(t time.Time) error { return l.current().SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline of the connection.
func (l *Link) SetWriteDeadline(t time.Time) error { return l.current().SetWriteDeadline(t) }
