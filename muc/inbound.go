// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"strconv"

	"mellium.im/chat/stanza"
)

func userPayload(p stanza.Presence) User {
	if u, ok := p.Payload(UserName).(*User); ok && u != nil {
		return *u
	}
	return User{}
}

// HandlePresence applies a presence sent by a room.
// It reports whether the presence was addressed from the conference service
// and consumed.
func (e *Engine) HandlePresence(p stanza.Presence) bool {
	if !e.IsRoom(p.From) {
		return false
	}
	r, ok := e.fromRoom(p.From)
	if !ok {
		e.logger.Debug("dropping presence from unknown room", "from", p.From)
		return true
	}

	user := userPayload(p)
	nick := p.From.Resourcepart()
	if nick != e.nick && !user.HasStatus(StatusSelf) {
		e.occupant(r, nick, p.Type)
		return true
	}

	switch p.Type {
	case stanza.ErrorPresence:
		err := stanza.Error{Type: stanza.Cancel, Condition: stanza.UndefinedCondition}
		if p.Error != nil {
			err = *p.Error
		}
		if r.State == Joining {
			e.setState(r, NotJoined)
			if e.OnEnterFailed != nil {
				e.OnEnterFailed(r.snapshot(), err)
			}
			return true
		}
		e.requestError("presence", r, err)
	case stanza.UnavailablePresence:
		if user.Destroy != nil {
			e.destroyed(r)
			return true
		}
		was := r.State
		e.setState(r, NotJoined)
		clear(r.online)
		switch was {
		case Joined, Leaving:
			if e.OnLeave != nil {
				e.OnLeave(r.snapshot())
			}
		case Joining:
			if e.OnEnterFailed != nil {
				e.OnEnterFailed(r.snapshot(), stanza.Error{Type: stanza.Cancel, Condition: stanza.NotAllowed})
			}
		}
	case stanza.AvailablePresence:
		if len(user.Items) > 0 {
			r.Standing = StandingOf(user.Items[0].Affiliation)
		}
		r.online[nick] = e.self
		if r.State != Joining || r.configure {
			return true
		}
		if user.HasStatus(StatusCreated) {
			e.configure(r)
			return true
		}
		e.entered(r)
	}
	return true
}

func (e *Engine) entered(r *room) {
	e.setState(r, Joined)
	if e.OnEnter != nil {
		e.OnEnter(r.snapshot())
	}
}

func (e *Engine) enterFailed(r *room, err error) {
	e.setState(r, NotJoined)
	clear(r.online)
	if sendErr := e.sender.Send(stanza.NewPresence(stanza.UnavailablePresence, e.occupantJID(r))); sendErr != nil {
		e.logger.Debug("error leaving unconfigured room", "room", r.Name, "err", sendErr)
	}
	if e.OnEnterFailed != nil {
		e.OnEnterFailed(r.snapshot(), err)
	}
}

// configure submits the configuration of a room that was just created.
func (e *Engine) configure(r *room) {
	r.configure = true
	iq := stanza.NewIQ(stanza.SetIQ, r.JID, &Owner{Form: ConfigForm(r.MembersOnly, r.Persistent)})
	err := e.sender.SendIQ(iq, func(_ stanza.IQ, err error) {
		r.configure = false
		if r.State != Joining {
			return
		}
		if err != nil {
			e.enterFailed(r, err)
			return
		}
		e.entered(r)
	})
	if err != nil {
		r.configure = false
		e.enterFailed(r, err)
	}
}

func (e *Engine) occupant(r *room, nick string, typ stanza.PresenceType) {
	switch typ {
	case stanza.AvailablePresence:
		id, err := strconv.ParseUint(nick, 10, 64)
		if err != nil {
			e.logger.Debug("ignoring occupant with non-numeric nick", "room", r.Name, "nick", nick)
			return
		}
		r.online[nick] = id
	case stanza.UnavailablePresence:
		delete(r.online, nick)
	}
}

// HandleMessage applies a message sent by a room.
// Private messages relayed by the room are not consumed.
func (e *Engine) HandleMessage(m stanza.Message) bool {
	if !e.IsRoom(m.From) {
		return false
	}
	r, ok := e.fromRoom(m.From)
	if !ok {
		e.logger.Debug("dropping message from unknown room", "from", m.From)
		return true
	}
	switch m.Type {
	case stanza.GroupChatMessage:
		if r.State != Joined && r.State != Joining {
			e.logger.Debug("dropping message from room that is not joined", "room", r.Name, "state", r.State)
			return true
		}
		if e.OnMessage != nil {
			e.OnMessage(r.snapshot(), m)
		}
		return true
	case stanza.ErrorMessage:
		err := stanza.Error{Type: stanza.Cancel, Condition: stanza.UndefinedCondition}
		if m.Error != nil {
			err = *m.Error
		}
		e.requestError("message", r, err)
		return true
	}
	return false
}
