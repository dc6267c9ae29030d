// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"mellium.im/chat/codec"
	"mellium.im/chat/internal/stream"
	"mellium.im/chat/stanza"
	"mellium.im/chat/transport"
)

// closeTimeout bounds the time spent flushing the writer on logout.
const closeTimeout = 5 * time.Second

// conn is an established, authenticated stream.
type conn struct {
	gen     uint64
	link    *transport.Link
	w       io.Writer
	out     chan<- stanza.Stanza
	dead    chan struct{}
	flushed chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

func newConn(gen uint64, link *transport.Link, w io.Writer, logger *slog.Logger) *conn {
	c := &conn{
		gen:     gen,
		link:    link,
		w:       w,
		dead:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	in, out := unbounded[stanza.Stanza](c.dead)
	c.out = in
	go c.write(out)
	return c
}

// write encodes every queued stanza in order.
// When the queue is closed the stream is closed and the link released.
func (c *conn) write(queue <-chan stanza.Stanza) {
	defer close(c.flushed)
	enc := codec.NewEncoder(c.w)
	var failed bool
	for st := range queue {
		if failed {
			continue
		}
		if err := enc.Encode(st); err != nil {
			c.logger.Debug("error writing stanza", "kind", st.Kind(), "err", err)
			failed = true
		}
	}
	if !failed {
		if err := stream.Close(c.w); err != nil {
			c.logger.Debug("error closing stream", "err", err)
		}
	}
	c.kill()
}

// read decodes stanzas until the stream ends and hands each one to deliver.
// Malformed stanzas are logged and skipped.
// The error that ended the stream is passed to lost.
func (c *conn) read(r xml.TokenReader, deliver func(stanza.Stanza) bool, lost func(error)) {
	dec := codec.NewDecoder(stream.Reader(r))
	for {
		st, err := dec.Next()
		switch {
		case errors.Is(err, codec.ErrMalformedStanza):
			c.logger.Warn("dropping malformed stanza", "err", err)
			continue
		case err != nil:
			lost(err)
			return
		}
		if !deliver(st) {
			return
		}
	}
}

// shutdown closes the stream after every queued stanza has been written and
// then calls done.
func (c *conn) shutdown(done func()) {
	close(c.out)
	go func() {
		defer done()
		t := time.NewTimer(closeTimeout)
		defer t.Stop()
		select {
		case <-c.flushed:
		case <-t.C:
			c.logger.Debug("timed out flushing stream")
		}
		c.kill()
	}()
}

// kill releases the link immediately, dropping any queued stanzas.
func (c *conn) kill() {
	c.once.Do(func() {
		close(c.dead)
		if err := c.link.Close(); err != nil {
			c.logger.Debug("error closing link", "err", err)
		}
	})
}

// connErr classifies the error that ended a stream.
func connErr(err error) error {
	var se stream.Error
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return wrapKind(ConnectionClosed, "connection", err)
	case errors.As(err, &se):
		if se.Condition == stream.ConnectionTimeout.Condition {
			return wrapKind(ConnectionTimeout, "connection", err)
		}
		return wrapKind(ConnectionClosed, "connection", err)
	}
	switch k := KindOf(err); k {
	case ConnectionRefused, ConnectionClosed, ConnectionTimeout:
		return wrapKind(k, "connection", err)
	}
	return wrapKind(ConnectionClosed, "connection", err)
}
