// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"

	"mellium.im/chat/roster"
)

// AddContact asks the user to add the local user to their contact list.
// The answer is reported by a ContactAddResponseEvent.
func (s *Session) AddContact(ctx context.Context, userID uint64) error {
	return s.authenticated(ctx, "add contact", func() error {
		return s.roster.Request(userID)
	})
}

// ConfirmContact accepts a request received in a ContactAddRequestEvent.
func (s *Session) ConfirmContact(ctx context.Context, userID uint64) error {
	return s.authenticated(ctx, "confirm contact", func() error {
		return s.roster.Confirm(userID)
	})
}

// RejectContact declines a request received in a ContactAddRequestEvent.
func (s *Session) RejectContact(ctx context.Context, userID uint64) error {
	return s.authenticated(ctx, "reject contact", func() error {
		return s.roster.Reject(userID)
	})
}

// RemoveContact cancels the subscription with the user in both directions and
// removes them from the contact list.
func (s *Session) RemoveContact(ctx context.Context, userID uint64) error {
	return s.authenticated(ctx, "remove contact", func() error {
		return s.roster.Remove(userID)
	})
}

// ContactList returns the contact list ordered by user id.
func (s *Session) ContactList(ctx context.Context) ([]roster.Contact, error) {
	var list []roster.Contact
	err := s.do(ctx, "contact list", func() error {
		list = s.roster.Contacts()
		return nil
	})
	return list, err
}
