// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"

	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// SendMessage sends a one-to-one chat message to the user msg.To.
// The recipient does not have to be in the contact list.
// If the message bounces a MessageErrorEvent is sent.
// Only the To, ID, Body and Params fields of msg are used.
func (s *Session) SendMessage(ctx context.Context, msg Message) error {
	return s.authenticated(ctx, "send message", func() error {
		to, err := jid.User(msg.To, s.cfg.Domain)
		if err != nil {
			return wrapKind(BadRequest, "", err)
		}
		if msg.Body == "" && len(msg.Params) == 0 {
			return ErrBadRequest
		}
		m := stanza.NewChat(to, msg.Body)
		m.ID = msg.ID
		if len(msg.Params) > 0 {
			m.Params = stanza.Params(msg.Params)
		}
		return s.send(m)
	})
}
