// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mellium.im/chat/internal/clock"
	"mellium.im/chat/jid"
	"mellium.im/chat/muc"
	"mellium.im/chat/roster"
	"mellium.im/chat/stanza"
	"mellium.im/chat/videochat"
)

// inboxSize bounds the number of requests waiting for the protocol loop.
const inboxSize = 64

// State is the connection state of a session.
type State uint32

// A list of session states.
const (
	Disconnected State = iota
	Connecting
	Authenticating
	Authenticated
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case ShuttingDown:
		return "shutting down"
	}
	return "unknown"
}

// A Session is a chat client.
//
// All protocol state is owned by a single goroutine.
// Methods enqueue a request for that goroutine and return once the request
// has been validated and any resulting stanzas queued for writing; their
// outcome is reported later as events.
// Methods are safe for concurrent use.
type Session struct {
	cfg    Config
	logger *slog.Logger
	clock  clock.Clock

	inbox     chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	eventsIn chan<- Event
	events   <-chan Event

	state atomic.Uint32
	mu    sync.Mutex
	user  *jid.JID

	// Everything below is owned by the protocol loop.
	gen       uint64
	cancel    context.CancelFunc
	conn      *conn
	accepting bool
	self      jid.JID
	status    string
	keepAlive *clock.Ticker
	pending   *iqTable
	roster    *roster.Engine
	rooms     *muc.Engine
	calls     *videochat.Multiplexer
	chats     map[uint64]*VideoChat
}

// New returns a disconnected session.
// It fails only if the configuration is invalid.
func New(cfg Config) (*Session, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		if err := validEndpoint(cfg.Endpoint); err != nil {
			return nil, err
		}
	}

	s := &Session{
		cfg:      cfg,
		logger:   cfg.Logger,
		clock:    cfg.clock,
		inbox:    make(chan func(), inboxSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		chats:    make(map[uint64]*VideoChat),
	}
	s.eventsIn, s.events = unbounded[Event](s.done)
	sender := loopSender{s: s}
	s.pending = newIQTable(s)
	s.roster = roster.New(sender, cfg.Domain, cfg.Logger.With("engine", "roster"))
	s.calls = videochat.New(sender, cfg.Domain, cfg.Logger.With("engine", "videochat"))
	s.wireRoster()
	s.wireCalls()

	go s.loop()
	return s, nil
}

// Events returns the channel on which all events are delivered in order.
// The channel is closed when the session is closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// IsLoggedIn reports whether the session is authenticated.
func (s *Session) IsLoggedIn() bool {
	return s.State() == Authenticated
}

// CurrentUser returns the address used by the last successful login.
// It reports false if the session never authenticated.
func (s *Session) CurrentUser() (jid.JID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return jid.JID{}, false
	}
	return *s.user, true
}

// Close logs out if necessary, releases every video chat and stops the
// session for good.
// Events still queued when Close is called are dropped and the events channel
// is closed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.loopDone
	return nil
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		var tick <-chan time.Time
		if s.keepAlive != nil {
			tick = s.keepAlive.C
		}
		select {
		case f := <-s.inbox:
			f()
		case <-tick:
			s.sendKeepAlive()
		case <-s.done:
			s.teardown()
			return
		}
	}
}

// teardown releases every resource held by the loop.
func (s *Session) teardown() {
	if s.State() != Disconnected {
		s.disconnect(true)
		s.setState(Disconnected)
	}
	s.calls.Close()
	for h, v := range s.chats {
		v.closed.Store(true)
		delete(s.chats, h)
	}
	close(s.eventsIn)
}

// enqueue hands f to the protocol loop.
// It reports false if the session is closed.
func (s *Session) enqueue(f func()) bool {
	select {
	case s.inbox <- f:
		return true
	case <-s.done:
		return false
	}
}

// do runs f on the protocol loop and waits for its result.
func (s *Session) do(ctx context.Context, op string, f func() error) error {
	result := make(chan error, 1)
	req := func() {
		result <- f()
	}
	select {
	case s.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return wrapKind(SessionClosed, op, nil)
	}
	select {
	case err := <-result:
		return wrap(op, err)
	case <-s.loopDone:
		return wrapKind(SessionClosed, op, nil)
	}
}

// authenticated runs f on the protocol loop if the session is logged in.
func (s *Session) authenticated(ctx context.Context, op string, f func() error) error {
	return s.do(ctx, op, func() error {
		if s.State() != Authenticated {
			return ErrNotAuthenticated
		}
		return f()
	})
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(uint32(to)))
	if from != to {
		s.logger.Debug("session state changed", "from", from, "to", to)
	}
}

// emit queues an event for the consumer unless the session is between a
// logout and the next login.
func (s *Session) emit(e Event) {
	if !s.accepting {
		s.logger.Debug("dropping event", "event", e)
		return
	}
	select {
	case s.eventsIn <- e:
	case <-s.done:
	}
}

// emitLast queues e and then stops delivering events until the next login.
func (s *Session) emitLast(e Event) {
	s.emit(e)
	s.accepting = false
}

// send queues a stanza on the current connection.
func (s *Session) send(st stanza.Stanza) error {
	if s.conn == nil {
		return ErrNotAuthenticated
	}
	select {
	case s.conn.out <- st:
		return nil
	case <-s.conn.dead:
		return ErrConnectionClosed
	}
}

// loopSender gives the engines access to the connection from the protocol
// loop.
type loopSender struct {
	s *Session
}

func (l loopSender) Send(st stanza.Stanza) error {
	return l.s.send(st)
}

func (l loopSender) SendIQ(iq stanza.IQ, f func(stanza.IQ, error)) error {
	return l.s.sendIQ(iq, f)
}
