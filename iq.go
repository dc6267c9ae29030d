// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"sort"
	"strconv"

	"mellium.im/chat/internal/attr"
	"mellium.im/chat/internal/clock"
	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

type pendingIQ struct {
	to    jid.JID
	f     func(stanza.IQ, error)
	timer *clock.Timer
}

// iqTable tracks the requests waiting for a reply.
// It is owned by the protocol loop.
type iqTable struct {
	s       *Session
	prefix  string
	next    uint64
	pending map[string]*pendingIQ
}

func newIQTable(s *Session) *iqTable {
	return &iqTable{
		s:       s,
		prefix:  attr.RandomID(),
		pending: make(map[string]*pendingIQ),
	}
}

// id returns an identifier that is never reused by the session.
func (t *iqTable) id() string {
	t.next++
	return t.prefix + "-" + strconv.FormatUint(t.next, 10)
}

// Len returns the number of requests waiting for a reply.
func (t *iqTable) Len() int {
	return len(t.pending)
}

func (t *iqTable) add(iq stanza.IQ, f func(stanza.IQ, error)) {
	p := &pendingIQ{to: iq.To, f: f}
	id := iq.ID
	p.timer = t.s.clock.AfterFunc(t.s.cfg.IQTimeout, func() {
		t.s.enqueue(func() {
			t.expire(id, p)
		})
	})
	t.pending[id] = p
}

func (t *iqTable) expire(id string, p *pendingIQ) {
	if t.pending[id] != p {
		return
	}
	delete(t.pending, id)
	t.s.logger.Debug("request timed out", "id", id, "to", p.to)
	p.f(stanza.IQ{}, wrapKind(IQTimeout, "iq", nil))
}

// resolve delivers a reply to the request it answers.
// It reports false if no request is waiting for the reply.
func (t *iqTable) resolve(iq stanza.IQ, self jid.JID) bool {
	p, ok := t.pending[iq.ID]
	if !ok {
		return false
	}
	if !t.fromPeer(p.to, iq.From, self) {
		t.s.logger.Debug("dropping reply from unexpected sender", "id", iq.ID, "from", iq.From, "to", p.to)
		return false
	}
	delete(t.pending, iq.ID)
	p.timer.Stop()
	if iq.Type == stanza.ErrorIQ {
		err := stanza.Error{Type: stanza.Cancel, Condition: stanza.UndefinedCondition}
		if iq.Error != nil {
			err = *iq.Error
		}
		p.f(iq, err)
		return true
	}
	p.f(iq, nil)
	return true
}

// fromPeer reports whether a reply from from may answer a request sent to
// to.
// Requests without an address are answered by the server on behalf of the
// account.
// Localparts are compared case insensitively.
func (t *iqTable) fromPeer(to, from, self jid.JID) bool {
	if to.IsZero() {
		return from.IsZero() || from.Equal(self.Bare()) || from.Equal(self.Domain()) || from.Equal(self)
	}
	return from.EqualFold(to)
}

// cancelAll fails every waiting request with err.
func (t *iqTable) cancelAll(err error) {
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	// Requests are cancelled in the order they were sent.
	sortIDs(ids, t.prefix)
	for _, id := range ids {
		p := t.pending[id]
		delete(t.pending, id)
		p.timer.Stop()
		p.f(stanza.IQ{}, err)
	}
}

func sortIDs(ids []string, prefix string) {
	seq := func(id string) uint64 {
		n, _ := strconv.ParseUint(id[len(prefix)+1:], 10, 64)
		return n
	}
	sort.Slice(ids, func(i, j int) bool { return seq(ids[i]) < seq(ids[j]) })
}

// sendIQ sends a request and calls f with the reply, a stanza error, or a
// timeout.
// f is called on the protocol loop.
func (s *Session) sendIQ(iq stanza.IQ, f func(stanza.IQ, error)) error {
	if s.conn == nil {
		return ErrNotAuthenticated
	}
	iq.ID = s.pending.id()
	if err := s.send(iq); err != nil {
		return err
	}
	s.pending.add(iq, f)
	return nil
}
