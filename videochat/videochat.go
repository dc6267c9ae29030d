// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package videochat multiplexes the signaling of any number of video calls
// over a single chat session.
//
// Each registered channel has a call id and a small state machine.
// Media is handled elsewhere: the channel only carries the call setup and
// teardown envelopes along with the session descriptions and ICE candidates
// produced by a media engine such as pion/webrtc.
//
//	Idle ──call──▶ Offering ──accepted──▶ Accepted ──signal──▶ InCall
//	 │                 │                     │                   │
//	 └─incoming─▶ Ringing ──accept──────────▶┘                   │
//	                   └──reject──▶ Rejected ──▶ Idle ◀── Terminating ◀─hangup
//
// A channel whose call has ended returns to Idle with a fresh call id so that
// it can be used again.
// Unregistering a channel closes it for good.
package videochat // import "mellium.im/chat/videochat"

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// Errors returned by the Multiplexer.
var (
	ErrUnknownChannel = errors.New("videochat: channel is not registered")
	ErrInvalidState   = errors.New("videochat: operation is not valid in the current call state")
	ErrBadSignal      = errors.New("videochat: signal carries no valid description or candidate")
)

// State is the state of a signaling channel.
type State uint8

// A list of channel states.
const (
	Idle State = iota
	Offering
	Ringing
	Accepted
	Rejected
	InCall
	Terminating
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Offering:
		return "offering"
	case Ringing:
		return "ringing"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case InCall:
		return "in-call"
	case Terminating:
		return "terminating"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// active reports whether a call is in progress in s.
func (s State) active() bool {
	switch s {
	case Offering, Ringing, Accepted, InCall:
		return true
	}
	return false
}

// Channel is a snapshot of a signaling channel.
type Channel struct {
	Handle uint64
	CallID string
	Peer   jid.JID
	State  State
}

// Signal is a media negotiation payload relayed through a channel.
// Exactly one of its fields is set.
type Signal struct {
	Description *webrtc.SessionDescription
	Candidate   *webrtc.ICECandidateInit
}

// Sender is the subset of the session used to emit stanzas.
type Sender interface {
	Send(stanza.Stanza) error
}

type channel struct {
	Channel
}

// Multiplexer routes call signaling to registered channels.
// It is not safe for concurrent use.
// The callback fields may be nil.
type Multiplexer struct {
	OnIncoming func(Channel)
	OnAccepted func(Channel)
	OnRejected func(c Channel, busy bool)
	OnHangup   func(Channel)
	OnSignal   func(Channel, Signal)

	sender   Sender
	domain   string
	logger   *slog.Logger
	next     uint64
	order    []*channel
	byHandle map[uint64]*channel
	byCall   map[string]*channel
	newID    func() string
}

// New returns a multiplexer for peers on domain.
func New(s Sender, domain string, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Multiplexer{
		sender:   s,
		domain:   domain,
		logger:   logger,
		byHandle: make(map[uint64]*channel),
		byCall:   make(map[string]*channel),
		newID:    uuid.NewString,
	}
}

// Register allocates a new Idle channel with a fresh call id.
func (m *Multiplexer) Register() Channel {
	m.next++
	c := &channel{Channel: Channel{Handle: m.next, CallID: m.newID(), State: Idle}}
	m.order = append(m.order, c)
	m.byHandle[c.Handle] = c
	m.byCall[c.CallID] = c
	m.logger.Debug("video chat channel registered", "handle", c.Handle, "call", c.CallID)
	return c.Channel
}

// Unregister closes the channel, hanging up any call in progress.
func (m *Multiplexer) Unregister(handle uint64) error {
	c, ok := m.byHandle[handle]
	if !ok {
		return ErrUnknownChannel
	}
	var err error
	if c.State.active() {
		err = m.send(c, ActionHangup, Signal{})
	}
	m.setState(c, Closed)
	delete(m.byHandle, handle)
	delete(m.byCall, c.CallID)
	for i, o := range m.order {
		if o == c {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return err
}

// Close unregisters every channel.
func (m *Multiplexer) Close() {
	for len(m.order) > 0 {
		if err := m.Unregister(m.order[0].Handle); err != nil {
			m.logger.Debug("error hanging up on close", "err", err)
		}
	}
}

// Channel returns a snapshot of the channel with the given handle.
func (m *Multiplexer) Channel(handle uint64) (Channel, bool) {
	c, ok := m.byHandle[handle]
	if !ok {
		return Channel{}, false
	}
	return c.Channel, true
}

func (m *Multiplexer) setState(c *channel, s State) {
	m.logger.Debug("video chat state changed", "handle", c.Handle, "call", c.CallID, "from", c.State, "to", s)
	c.State = s
}

// reset returns a channel to Idle with a new call id.
func (m *Multiplexer) reset(c *channel) {
	delete(m.byCall, c.CallID)
	c.CallID = m.newID()
	c.Peer = jid.JID{}
	m.byCall[c.CallID] = c
	m.setState(c, Idle)
}

func (m *Multiplexer) send(c *channel, a Action, sig Signal) error {
	call := &Call{ID: c.CallID, Action: a, Description: sig.Description, Candidate: sig.Candidate}
	msg := stanza.Message{To: c.Peer, Type: stanza.ChatMessage, Payloads: []stanza.Payload{call}}
	return m.sender.Send(msg)
}

func (m *Multiplexer) lookup(handle uint64) (*channel, error) {
	c, ok := m.byHandle[handle]
	if !ok {
		return nil, ErrUnknownChannel
	}
	return c, nil
}

// Call offers a call to the user with the given id.
func (m *Multiplexer) Call(handle, peer uint64) error {
	c, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if c.State != Idle {
		return ErrInvalidState
	}
	to, err := jid.User(peer, m.domain)
	if err != nil {
		return err
	}
	c.Peer = to
	if err := m.send(c, ActionCall, Signal{}); err != nil {
		c.Peer = jid.JID{}
		return err
	}
	m.setState(c, Offering)
	return nil
}

// Accept answers a ringing call.
func (m *Multiplexer) Accept(handle uint64) error {
	c, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if c.State != Ringing {
		return ErrInvalidState
	}
	if err := m.send(c, ActionAccept, Signal{}); err != nil {
		return err
	}
	m.setState(c, Accepted)
	return nil
}

// Reject declines a ringing call.
func (m *Multiplexer) Reject(handle uint64) error {
	c, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if c.State != Ringing {
		return ErrInvalidState
	}
	if err := m.send(c, ActionReject, Signal{}); err != nil {
		return err
	}
	m.setState(c, Rejected)
	m.reset(c)
	return nil
}

// Hangup ends the call in progress.
func (m *Multiplexer) Hangup(handle uint64) error {
	c, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if !c.State.active() {
		return ErrInvalidState
	}
	m.setState(c, Terminating)
	err = m.send(c, ActionHangup, Signal{})
	m.reset(c)
	return err
}

// SendSignal relays a session description or ICE candidate to the peer.
// Session descriptions must contain a parsable SDP.
func (m *Multiplexer) SendSignal(handle uint64, sig Signal) error {
	c, err := m.lookup(handle)
	if err != nil {
		return err
	}
	if !c.State.active() {
		return ErrInvalidState
	}
	if err := validate(sig); err != nil {
		return err
	}
	if err := m.send(c, ActionSignal, sig); err != nil {
		return err
	}
	if c.State == Accepted {
		m.setState(c, InCall)
	}
	return nil
}

func validate(sig Signal) error {
	switch {
	case sig.Description != nil && sig.Candidate == nil:
		if sig.Description.Type == webrtc.SDPTypeUnknown {
			return ErrBadSignal
		}
		if _, err := sig.Description.Unmarshal(); err != nil {
			return errors.Join(ErrBadSignal, err)
		}
		return nil
	case sig.Candidate != nil && sig.Description == nil:
		if sig.Candidate.Candidate == "" {
			return ErrBadSignal
		}
		return nil
	}
	return ErrBadSignal
}
