// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"

	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// SendPresence broadcasts that the user is available with the last status.
// The server closes sessions that stay silent for longer than its idle window
// so the session repeats this presence every KeepAliveInterval on its own.
func (s *Session) SendPresence(ctx context.Context) error {
	return s.authenticated(ctx, "send presence", func() error {
		return s.broadcastPresence(s.status)
	})
}

// SendPresenceWithStatus broadcasts that the user is available with status.
// The status is repeated by later keep-alives.
func (s *Session) SendPresenceWithStatus(ctx context.Context, status string) error {
	return s.authenticated(ctx, "send presence", func() error {
		if err := s.broadcastPresence(status); err != nil {
			return err
		}
		s.status = status
		return nil
	})
}

func (s *Session) broadcastPresence(status string) error {
	p := stanza.NewPresence(stanza.AvailablePresence, jid.JID{})
	p.Status = status
	return s.send(p)
}

// SendDirectPresenceWithStatus sends an available presence with status to a
// single contact.
// It fails with NotInRoster unless the contact list holds a subscription with
// the peer.
func (s *Session) SendDirectPresenceWithStatus(ctx context.Context, status string, to uint64) error {
	return s.authenticated(ctx, "send direct presence", func() error {
		if !s.roster.CanSendDirect(to) {
			return ErrNotInRoster
		}
		c, _ := s.roster.Contact(to)
		p := stanza.NewPresence(stanza.AvailablePresence, c.JID)
		p.Status = status
		return s.send(p)
	})
}
