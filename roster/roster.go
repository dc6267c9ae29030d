// Copyright 2018 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package roster implements the contact list and its presence subscription
// state machine.
//
// The Engine is not safe for concurrent use.
// It is owned by the protocol loop of a chat session which feeds it inbound
// presences and roster pushes and calls its methods on behalf of the
// application.
package roster // import "mellium.im/chat/roster"

import (
	"errors"
	"log/slog"
	"sort"

	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// Errors returned by the Engine.
var (
	ErrNotInRoster = errors.New("roster: peer is not in the contact list")
	ErrNoRequest   = errors.New("roster: no pending contact request from peer")
)

// Subscription is the state of the presence subscription with a peer.
type Subscription uint8

// A list of subscription states.
const (
	None Subscription = iota
	PendingOutbound
	PendingInbound
	Both
)

func (s Subscription) String() string {
	switch s {
	case None:
		return "none"
	case PendingOutbound:
		return "pending-outbound"
	case PendingInbound:
		return "pending-inbound"
	case Both:
		return "both"
	}
	return "unknown"
}

// Availability is the last known presence of a contact.
type Availability uint8

// A list of availability values.
const (
	Unknown Availability = iota
	Available
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Contact is an entry in the contact list.
type Contact struct {
	UserID       uint64
	JID          jid.JID
	Subscription Subscription
	Presence     Availability
	Status       string

	// Listed is set for peers that are on the server side roster.
	Listed bool
}

// Sender is the subset of the session used by the engine to emit stanzas.
type Sender interface {
	Send(stanza.Stanza) error
	SendIQ(iq stanza.IQ, f func(stanza.IQ, error)) error
}

// Engine tracks the contact list.
// The callback fields may be nil.
type Engine struct {
	// OnPresence is called when a contact's presence changes.
	OnPresence func(c Contact)

	// OnAddRequest is called when a peer asks to add the local user.
	OnAddRequest func(userID uint64)

	// OnAddResponse is called when a peer answers a local request.
	OnAddResponse func(userID uint64, accepted bool)

	// OnChanged is called when entries are added, removed, or change their
	// subscription.
	OnChanged func()

	sender   Sender
	domain   string
	logger   *slog.Logger
	contacts map[uint64]*Contact
}

// New returns an engine for users on domain that sends stanzas using s.
func New(s Sender, domain string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		sender:   s,
		domain:   domain,
		logger:   logger,
		contacts: make(map[uint64]*Contact),
	}
}

// Reset forgets every contact.
func (e *Engine) Reset() {
	clear(e.contacts)
}

// Contact returns the entry for userID.
func (e *Engine) Contact(userID uint64) (Contact, bool) {
	c, ok := e.contacts[userID]
	if !ok {
		return Contact{}, false
	}
	return *c, true
}

// Contacts returns a copy of the contact list ordered by user id.
func (e *Engine) Contacts() []Contact {
	list := make([]Contact, 0, len(e.contacts))
	for _, c := range e.contacts {
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list
}

// CanSendDirect reports whether a directed presence may be sent to userID.
// Peers on the server side roster qualify even if no subscription is
// pending or complete.
func (e *Engine) CanSendDirect(userID uint64) bool {
	c, ok := e.contacts[userID]
	return ok && (c.Listed || c.Subscription != None)
}

func (e *Engine) jid(userID uint64) (jid.JID, error) {
	return jid.User(userID, e.domain)
}

func (e *Engine) entry(userID uint64) (*Contact, error) {
	if c, ok := e.contacts[userID]; ok {
		return c, nil
	}
	j, err := e.jid(userID)
	if err != nil {
		return nil, err
	}
	c := &Contact{UserID: userID, JID: j}
	e.contacts[userID] = c
	return c, nil
}

func (e *Engine) setSub(c *Contact, to Subscription) {
	from := c.Subscription
	c.Subscription = to
	e.logger.Debug("subscription changed", "peer", c.UserID, "from", from, "to", to)
	if e.OnChanged != nil {
		e.OnChanged()
	}
}

func (e *Engine) sendPresence(c *Contact, typ stanza.PresenceType) error {
	return e.sender.Send(stanza.NewPresence(typ, c.JID))
}

// Request asks userID to add the local user to their contact list.
// Requests in any state other than None succeed without sending anything.
func (e *Engine) Request(userID uint64) error {
	c, err := e.entry(userID)
	if err != nil {
		return err
	}
	if c.Subscription != None {
		return nil
	}
	if err := e.sendPresence(c, stanza.SubscribePresence); err != nil {
		return err
	}
	e.setSub(c, PendingOutbound)
	return nil
}

// Confirm accepts a pending request from userID.
// The peer is asked for its presence in return so that both sides end up
// subscribed to each other.
func (e *Engine) Confirm(userID uint64) error {
	c, ok := e.contacts[userID]
	if ok && c.Subscription == Both {
		return nil
	}
	if !ok || c.Subscription != PendingInbound {
		return ErrNoRequest
	}
	if err := e.sendPresence(c, stanza.SubscribedPresence); err != nil {
		return err
	}
	if err := e.sendPresence(c, stanza.SubscribePresence); err != nil {
		return err
	}
	e.setSub(c, Both)
	return nil
}

// Reject denies a pending request from userID.
func (e *Engine) Reject(userID uint64) error {
	c, ok := e.contacts[userID]
	if ok && c.Subscription == None {
		return nil
	}
	if !ok || c.Subscription != PendingInbound {
		return ErrNoRequest
	}
	if err := e.sendPresence(c, stanza.UnsubscribedPresence); err != nil {
		return err
	}
	e.setSub(c, None)
	return nil
}

// Remove cancels the subscription in both directions and deletes userID from
// the contact list and from the server side roster.
// Removing a peer that is not in the list is a no-op.
func (e *Engine) Remove(userID uint64) error {
	c, ok := e.contacts[userID]
	if !ok {
		return nil
	}
	if err := e.sendPresence(c, stanza.UnsubscribePresence); err != nil {
		return err
	}
	if err := e.sendPresence(c, stanza.UnsubscribedPresence); err != nil {
		return err
	}
	err := e.sender.SendIQ(RemoveIQ(c.JID), func(_ stanza.IQ, err error) {
		if err != nil {
			e.logger.Debug("roster removal failed", "peer", userID, "err", err)
		}
	})
	if err != nil {
		return err
	}
	delete(e.contacts, userID)
	e.logger.Debug("contact removed", "peer", userID)
	if e.OnChanged != nil {
		e.OnChanged()
	}
	return nil
}

// HandlePresence applies an inbound presence from a user on the chat domain.
// It reports whether the presence was consumed.
func (e *Engine) HandlePresence(p stanza.Presence) bool {
	userID, err := p.From.UserID()
	if err != nil || p.From.Domainpart() != e.domain {
		return false
	}
	c, err := e.entry(userID)
	if err != nil {
		return false
	}

	switch p.Type {
	case stanza.AvailablePresence, stanza.UnavailablePresence:
		c.Status = p.Status
		if p.Type == stanza.AvailablePresence {
			c.Presence = Available
		} else {
			c.Presence = Unavailable
		}
		if e.OnPresence != nil {
			e.OnPresence(*c)
		}
	case stanza.SubscribePresence:
		switch c.Subscription {
		case None:
			e.setSub(c, PendingInbound)
			if e.OnAddRequest != nil {
				e.OnAddRequest(userID)
			}
		case Both:
			if err := e.sendPresence(c, stanza.SubscribedPresence); err != nil {
				e.logger.Debug("error acknowledging subscription", "peer", userID, "err", err)
			}
		}
	case stanza.SubscribedPresence:
		if c.Subscription == PendingOutbound {
			e.setSub(c, Both)
			if e.OnAddResponse != nil {
				e.OnAddResponse(userID, true)
			}
		}
	case stanza.UnsubscribedPresence:
		if c.Subscription == PendingOutbound {
			e.setSub(c, None)
			if e.OnAddResponse != nil {
				e.OnAddResponse(userID, false)
			}
		}
	case stanza.UnsubscribePresence:
		e.logger.Debug("peer unsubscribed", "peer", userID, "state", c.Subscription)
	default:
		return false
	}
	return true
}

// Seed replaces the contact list with a roster fetched from the server.
// It is a synchronization and does not trigger any transition callbacks
// other than OnChanged.
func (e *Engine) Seed(q Query) {
	clear(e.contacts)
	for _, item := range q.Items {
		e.sync(item)
	}
	if e.OnChanged != nil {
		e.OnChanged()
	}
}

// HandlePush applies a roster push from the server.
// Items that are already known keep their local state, except that a
// removal drops the subscription to None and unlists the entry.
// Entries are only deleted by Remove.
func (e *Engine) HandlePush(q Query) {
	for _, item := range q.Items {
		userID, err := item.JID.UserID()
		if err != nil {
			continue
		}
		c, ok := e.contacts[userID]
		switch {
		case ok && item.Subscription == SubRemove:
			c.Listed = false
			if c.Subscription != None {
				e.setSub(c, None)
			}
		case ok:
			c.Listed = true
		default:
			e.sync(item)
		}
	}
	if e.OnChanged != nil {
		e.OnChanged()
	}
}

func (e *Engine) sync(item Item) {
	userID, err := item.JID.UserID()
	if err != nil || item.Subscription == SubRemove {
		return
	}
	c := &Contact{UserID: userID, JID: item.JID.Bare(), Listed: true}
	switch {
	case item.Subscription == SubBoth:
		c.Subscription = Both
	case item.Ask == "subscribe":
		c.Subscription = PendingOutbound
	}
	e.contacts[userID] = c
}
