// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"

	"mellium.im/chat/jid"
	"mellium.im/chat/muc"
	"mellium.im/chat/roster"
	"mellium.im/chat/stanza"
)

// Login connects and authenticates as user.
// It returns once the attempt has started; the outcome is reported by a
// LoginEvent or a LoginFailedEvent.
// Login fails with InvalidState unless the session is Disconnected.
func (s *Session) Login(ctx context.Context, user User) error {
	return s.do(ctx, "login", func() error {
		if s.State() != Disconnected {
			return ErrInvalidState
		}
		s.gen++
		gen := s.gen
		hctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.accepting = true
		s.status = ""
		s.setState(Connecting)
		s.logger.Debug("logging in", "user", user.ID)
		go s.connect(hctx, gen, user)
		return nil
	})
}

// Logout announces that the user is unavailable, closes the connection and
// cancels every pending request.
// A LogoutEvent is the last event delivered until the next login.
// Logout fails with NotAuthenticated if the session is Disconnected or
// ShuttingDown.
func (s *Session) Logout(ctx context.Context) error {
	return s.do(ctx, "logout", func() error {
		if st := s.State(); st == Disconnected || st == ShuttingDown {
			return ErrNotAuthenticated
		}
		s.disconnect(true)
		s.emitLast(LogoutEvent{})
		return nil
	})
}

// connected is called on the protocol loop when a login attempt ends.
func (s *Session) connected(gen uint64, hs *handshake, err error) {
	if gen != s.gen {
		if hs != nil {
			hs.link.Close()
		}
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err != nil {
		s.logger.Debug("login failed", "err", err)
		s.setState(Disconnected)
		s.emitLast(LoginFailedEvent{Err: err})
		return
	}

	sender := loopSender{s: s}
	rooms, err := muc.New(sender, hs.addr, s.cfg.ConferenceDomain, s.logger.With("engine", "muc"))
	if err != nil {
		hs.link.Close()
		s.setState(Disconnected)
		s.emitLast(LoginFailedEvent{Err: wrapKind(AuthFailed, "login", err)})
		return
	}
	s.rooms = rooms
	s.wireRooms()
	s.self = hs.addr
	s.mu.Lock()
	addr := hs.addr
	s.user = &addr
	s.mu.Unlock()

	c := newConn(gen, hs.link, hs.w, s.logger)
	s.conn = c
	s.setState(Authenticated)
	go c.read(hs.r, func(st stanza.Stanza) bool {
		return s.enqueue(func() {
			if s.gen == gen {
				s.route(st)
			}
		})
	}, func(err error) {
		s.enqueue(func() {
			s.lost(gen, err)
		})
	})
	s.emit(LoginEvent{User: hs.addr})

	if err := s.send(stanza.NewPresence(stanza.AvailablePresence, jid.JID{})); err != nil {
		s.logger.Debug("error sending initial presence", "err", err)
	}
	err = s.sendIQ(roster.FetchIQ(), func(res stanza.IQ, err error) {
		if err != nil {
			s.emit(RequestErrorEvent{Op: "roster", Err: wrap("roster", err)})
			return
		}
		if q, ok := res.Payload.(*roster.Query); ok {
			s.roster.Seed(*q)
			return
		}
		s.roster.Seed(roster.Query{})
	})
	if err != nil {
		s.logger.Debug("error fetching roster", "err", err)
	}
	s.keepAlive = s.clock.NewTicker(s.cfg.KeepAliveInterval)
}

// lost is called on the protocol loop when the stream of generation gen
// ends.
func (s *Session) lost(gen uint64, err error) {
	if gen != s.gen || s.conn == nil {
		return
	}
	err = connErr(err)
	s.logger.Debug("connection lost", "err", err)
	s.disconnect(false)
	s.emitLast(DisconnectEvent{Err: err})
}

// disconnect ends the current login attempt or connection.
// If graceful is set the user is announced unavailable and queued stanzas
// are flushed before the stream is closed; the session is ShuttingDown until
// the flush completes.
func (s *Session) disconnect(graceful bool) {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.keepAlive != nil {
		s.keepAlive.Stop()
		s.keepAlive = nil
	}
	if graceful && s.conn != nil {
		s.hangupAll()
		if err := s.send(stanza.NewPresence(stanza.UnavailablePresence, jid.JID{})); err != nil {
			s.logger.Debug("error sending unavailable presence", "err", err)
		}
	}
	flushing := graceful && s.conn != nil
	if c := s.conn; c != nil {
		s.conn = nil
		if flushing {
			s.setState(ShuttingDown)
			gen := s.gen
			c.shutdown(func() {
				s.enqueue(func() {
					if gen == s.gen && s.State() == ShuttingDown {
						s.setState(Disconnected)
					}
				})
			})
		} else {
			c.kill()
		}
	}
	s.hangupAll()
	s.pending.cancelAll(wrapKind(SessionClosed, "iq", nil))
	s.rooms = nil
	s.roster.Reset()
	if !flushing {
		s.setState(Disconnected)
	}
}

// sendKeepAlive repeats the last broadcast presence so that the server does
// not consider the session idle.
func (s *Session) sendKeepAlive() {
	if s.conn == nil {
		return
	}
	p := stanza.NewPresence(stanza.AvailablePresence, jid.JID{})
	p.Status = s.status
	if err := s.send(p); err != nil {
		s.logger.Debug("error sending keep-alive", "err", err)
		return
	}
	s.logger.Debug("keep-alive sent")
}
