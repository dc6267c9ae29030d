// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"mellium.im/chat/muc"
	"mellium.im/chat/ping"
	"mellium.im/chat/roster"
	"mellium.im/chat/stanza"
	"mellium.im/chat/videochat"
)

// route hands an inbound stanza to the engine responsible for it.
// It runs on the protocol loop.
func (s *Session) route(st stanza.Stanza) {
	switch v := st.(type) {
	case stanza.Message:
		s.routeMessage(v)
	case stanza.Presence:
		s.routePresence(v)
	case stanza.IQ:
		s.routeIQ(v)
	default:
		s.logger.Debug("dropping unknown stanza", "kind", st.Kind())
	}
}

func (s *Session) routeMessage(m stanza.Message) {
	if s.calls.HandleMessage(m) {
		return
	}
	if s.rooms != nil && s.rooms.HandleMessage(m) {
		return
	}
	switch m.Type {
	case stanza.ErrorMessage:
		to, _ := m.From.UserID()
		err := stanza.Error{Type: stanza.Cancel, Condition: stanza.UndefinedCondition}
		if m.Error != nil {
			err = *m.Error
		}
		s.emit(MessageErrorEvent{To: to, Err: wrap("message", err)})
	case stanza.ChatMessage, stanza.NormalMessage:
		if m.Body == "" && len(m.Params) == 0 {
			s.logger.Debug("dropping message without content", "from", m.From)
			return
		}
		s.emit(MessageEvent{Message: messageFrom(m, s.clock.Now(), "")})
	default:
		s.logger.Debug("dropping message", "type", m.Type, "from", m.From)
	}
}

func (s *Session) routePresence(p stanza.Presence) {
	if p.From.Bare().Equal(s.self.Bare()) {
		return
	}
	if s.rooms != nil && s.rooms.HandlePresence(p) {
		return
	}
	if s.roster.HandlePresence(p) {
		return
	}
	s.logger.Debug("dropping presence", "type", p.Type, "from", p.From)
}

func (s *Session) routeIQ(iq stanza.IQ) {
	if !iq.IsRequest() {
		if !s.pending.resolve(iq, s.self) {
			s.logger.Debug("dropping unsolicited reply", "id", iq.ID, "from", iq.From)
		}
		return
	}

	if ping.Is(iq) {
		s.reply(iq.Result(nil))
		return
	}
	switch payload := iq.Payload.(type) {
	case *roster.Query:
		if iq.Type == stanza.SetIQ && s.fromServer(iq) {
			s.roster.HandlePush(*payload)
			s.reply(iq.Result(nil))
			return
		}
	case *videochat.Call:
		if iq.Type == stanza.SetIQ {
			s.calls.Handle(iq.From, *payload, false)
			s.reply(iq.Result(nil))
			return
		}
	}
	s.reply(iq.ErrorReply(stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}))
}

// fromServer reports whether iq was sent by the server on behalf of the
// account.
func (s *Session) fromServer(iq stanza.IQ) bool {
	return iq.From.IsZero() || iq.From.Equal(s.self.Bare()) || iq.From.Equal(s.self.Domain())
}

func (s *Session) reply(iq stanza.IQ) {
	if err := s.send(iq); err != nil {
		s.logger.Debug("error answering request", "id", iq.ID, "err", err)
	}
}

// wireRoster turns roster callbacks into events.
func (s *Session) wireRoster() {
	s.roster.OnPresence = func(c roster.Contact) {
		s.emit(PresenceEvent{
			UserID:    c.UserID,
			Available: c.Presence == roster.Available,
			Status:    c.Status,
		})
	}
	s.roster.OnAddRequest = func(userID uint64) {
		s.emit(ContactAddRequestEvent{UserID: userID})
	}
	s.roster.OnAddResponse = func(userID uint64, accepted bool) {
		s.emit(ContactAddResponseEvent{UserID: userID, Accepted: accepted})
	}
	s.roster.OnChanged = func() {
		s.emit(ContactListChangedEvent{Contacts: s.roster.Contacts()})
	}
}

// wireRooms turns room callbacks into events.
func (s *Session) wireRooms() {
	e := s.rooms
	e.OnEnter = func(r muc.Room) {
		s.emit(RoomEnterEvent{Room: r})
	}
	e.OnEnterFailed = func(r muc.Room, err error) {
		s.emit(RoomEnterFailedEvent{Room: r, Err: wrap("join", err)})
	}
	e.OnLeave = func(r muc.Room) {
		s.emit(RoomLeaveEvent{Room: r})
	}
	e.OnDestroy = func(r muc.Room) {
		s.emit(RoomDestroyEvent{Room: r})
	}
	e.OnMessage = func(r muc.Room, m stanza.Message) {
		s.emit(RoomMessageEvent{Message: messageFrom(m, s.clock.Now(), r.Name), Room: r})
	}
	e.OnInfo = func(r muc.Room, info muc.Info) {
		s.emit(RoomInfoEvent{Info: info, Room: r})
	}
	e.OnUsers = func(r muc.Room, users []uint64) {
		s.emit(RoomUsersEvent{Users: users, Room: r})
	}
	e.OnOnlineUsers = func(r muc.Room, users []uint64) {
		s.emit(RoomOnlineUsersEvent{Users: users, Room: r})
	}
	e.OnRooms = func(rooms []muc.Summary) {
		s.emit(RoomListEvent{Rooms: rooms})
	}
	e.OnRequestError = func(op string, r muc.Room, err error) {
		s.emit(RequestErrorEvent{Op: "room " + op, Room: r.Name, Err: wrap("room "+op, err)})
	}
}

// wireCalls turns signaling callbacks into events addressed to the video
// chat handles.
func (s *Session) wireCalls() {
	s.calls.OnIncoming = func(c videochat.Channel) {
		v, ok := s.chats[c.Handle]
		if !ok {
			return
		}
		peer, _ := c.Peer.UserID()
		s.emit(IncomingCallEvent{Chat: v, Peer: peer})
	}
	s.calls.OnAccepted = func(c videochat.Channel) {
		if v, ok := s.chats[c.Handle]; ok {
			s.emit(CallAcceptedEvent{Chat: v})
		}
	}
	s.calls.OnRejected = func(c videochat.Channel, busy bool) {
		if v, ok := s.chats[c.Handle]; ok {
			s.emit(CallRejectedEvent{Chat: v, Busy: busy})
		}
	}
	s.calls.OnHangup = func(c videochat.Channel) {
		if v, ok := s.chats[c.Handle]; ok {
			s.emit(CallHangupEvent{Chat: v})
		}
	}
	s.calls.OnSignal = func(c videochat.Channel, sig videochat.Signal) {
		if v, ok := s.chats[c.Handle]; ok {
			s.emit(CallSignalEvent{Chat: v, Signal: sig})
		}
	}
}
