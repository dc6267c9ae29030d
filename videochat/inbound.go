// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package videochat

import (
	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// Envelope returns the call envelope carried by a message, if any.
func Envelope(payloads []stanza.Payload) (*Call, bool) {
	for _, p := range payloads {
		if c, ok := p.(*Call); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}

// HandleMessage routes a message carrying a call envelope.
// It reports whether the message carried an envelope.
func (m *Multiplexer) HandleMessage(msg stanza.Message) bool {
	call, ok := Envelope(msg.Payloads)
	if !ok {
		return false
	}
	busy := msg.Type == stanza.ErrorMessage
	if busy && msg.Error != nil && msg.Error.Condition != stanza.ResourceConstraint {
		m.logger.Debug("call signaling failed", "call", call.ID, "err", msg.Error)
	}
	m.Handle(msg.From, *call, busy)
	return true
}

// Handle routes an envelope received from a peer.
// Setting bounced indicates that the envelope came back in an error stanza.
func (m *Multiplexer) Handle(from jid.JID, call Call, bounced bool) {
	c, ok := m.byCall[call.ID]
	if !ok {
		if call.Action == ActionCall && !bounced {
			m.incoming(from, call)
			return
		}
		m.logger.Debug("dropping envelope for unknown call", "call", call.ID, "action", call.Action, "from", from)
		return
	}
	if !c.Peer.IsZero() && !c.Peer.Bare().Equal(from.Bare()) {
		m.logger.Debug("dropping envelope from wrong peer", "call", call.ID, "from", from, "peer", c.Peer)
		return
	}
	if !c.State.active() {
		m.logger.Debug("dropping envelope for inactive call", "call", call.ID, "state", c.State)
		return
	}
	c.Peer = from

	action := call.Action
	if bounced {
		action = ActionBusy
	}
	switch action {
	case ActionAccept:
		if c.State != Offering {
			return
		}
		m.setState(c, Accepted)
		if m.OnAccepted != nil {
			m.OnAccepted(c.Channel)
		}
	case ActionReject, ActionBusy:
		if c.State != Offering {
			return
		}
		m.setState(c, Rejected)
		snap := c.Channel
		m.reset(c)
		if m.OnRejected != nil {
			m.OnRejected(snap, action == ActionBusy)
		}
	case ActionHangup:
		m.setState(c, Terminating)
		snap := c.Channel
		m.reset(c)
		if m.OnHangup != nil {
			m.OnHangup(snap)
		}
	case ActionSignal:
		if c.State == Accepted {
			m.setState(c, InCall)
		}
		if m.OnSignal != nil {
			m.OnSignal(c.Channel, Signal{Description: call.Description, Candidate: call.Candidate})
		}
	default:
		m.logger.Debug("ignoring envelope", "call", call.ID, "action", call.Action)
	}
}

func (m *Multiplexer) incoming(from jid.JID, call Call) {
	for _, c := range m.order {
		if c.State != Idle {
			continue
		}
		delete(m.byCall, c.CallID)
		c.CallID = call.ID
		c.Peer = from
		m.byCall[c.CallID] = c
		m.setState(c, Ringing)
		if m.OnIncoming != nil {
			m.OnIncoming(c.Channel)
		}
		return
	}

	m.logger.Debug("no free channel, answering busy", "call", call.ID, "from", from)
	reply := stanza.Message{
		To:       from,
		Type:     stanza.ErrorMessage,
		Payloads: []stanza.Payload{&Call{ID: call.ID, Action: ActionBusy}},
		Error:    &stanza.Error{Type: stanza.Wait, Condition: stanza.ResourceConstraint},
	}
	if err := m.sender.Send(reply); err != nil {
		m.logger.Debug("error answering busy", "call", call.ID, "err", err)
	}
}
