// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"strconv"
	"time"

	"mellium.im/chat/jid"
	"mellium.im/chat/muc"
	"mellium.im/chat/roster"
	"mellium.im/chat/stanza"
	"mellium.im/chat/videochat"
)

// User identifies the local user.
type User struct {
	ID       uint64
	Password string
}

// Message is a one-to-one or room message.
type Message struct {
	// ID is the identifier assigned by the sender or the server.
	ID string

	// From is the user id of the sender.
	From uint64

	// To is the user id of the recipient of a direct message.
	To uint64

	// Room is the name of the room for group messages.
	Room string

	Body   string
	Params map[string]string

	// Time is the time the message was sent if the server reported it, or the
	// time it was received.
	Time time.Time
}

// Event is implemented by every value sent on the channel returned by
// Session.Events.
type Event interface {
	event()
}

// LoginEvent is sent when the session is authenticated.
type LoginEvent struct {
	User jid.JID
}

// LoginFailedEvent is sent when a login attempt fails.
// Err is of kind ConnectionRefused, ConnectionClosed, ConnectionTimeout or
// AuthFailed.
type LoginFailedEvent struct {
	Err error
}

// LogoutEvent is sent when the session is logged out.
// It is the last event delivered until the next login.
type LogoutEvent struct{}

// DisconnectEvent is sent when an authenticated session loses its
// connection.
// It is the last event delivered until the next login.
type DisconnectEvent struct {
	Err error
}

// MessageEvent carries a one-to-one message.
type MessageEvent struct {
	Message Message
}

// MessageErrorEvent is sent when a one-to-one message bounces.
type MessageErrorEvent struct {
	To  uint64
	Err error
}

// PresenceEvent is sent when the presence of a contact changes.
type PresenceEvent struct {
	UserID    uint64
	Available bool
	Status    string
}

// ContactAddRequestEvent is sent when a peer asks to add the local user to
// its contact list.
type ContactAddRequestEvent struct {
	UserID uint64
}

// ContactAddResponseEvent is sent when a peer answers a contact request.
type ContactAddResponseEvent struct {
	UserID   uint64
	Accepted bool
}

// ContactListChangedEvent is sent when entries are added to or removed from
// the contact list or their subscription changes.
type ContactListChangedEvent struct {
	Contacts []roster.Contact
}

// RoomEnterEvent is sent when the local user has joined a room.
type RoomEnterEvent struct {
	Room muc.Room
}

// RoomEnterFailedEvent is sent when the room refuses the local user.
type RoomEnterFailedEvent struct {
	Room muc.Room
	Err  error
}

// RoomLeaveEvent is sent when the local user has left a room.
type RoomLeaveEvent struct {
	Room muc.Room
}

// RoomDestroyEvent is sent when a room is destroyed.
type RoomDestroyEvent struct {
	Room muc.Room
}

// RoomMessageEvent carries a message broadcast by a room.
type RoomMessageEvent struct {
	Message Message
	Room    muc.Room
}

// RoomInfoEvent answers Session.RequestRoomInfo.
type RoomInfoEvent struct {
	Info muc.Info
	Room muc.Room
}

// RoomUsersEvent answers Session.RequestRoomUsers.
type RoomUsersEvent struct {
	Users []uint64
	Room  muc.Room
}

// RoomOnlineUsersEvent answers Session.RequestRoomOnlineUsers.
type RoomOnlineUsersEvent struct {
	Users []uint64
	Room  muc.Room
}

// RoomListEvent answers Session.RequestAllRooms.
type RoomListEvent struct {
	Rooms []muc.Summary
}

// RequestErrorEvent is sent when a request fails after it was sent, for
// example because the server returned an error or did not answer in time.
type RequestErrorEvent struct {
	Op   string
	Room string
	Err  error
}

// IncomingCallEvent is sent when a peer calls and a video chat is free.
type IncomingCallEvent struct {
	Chat *VideoChat
	Peer uint64
}

// CallAcceptedEvent is sent when the peer accepts a call.
type CallAcceptedEvent struct {
	Chat *VideoChat
}

// CallRejectedEvent is sent when the peer rejects a call or is busy.
type CallRejectedEvent struct {
	Chat *VideoChat
	Busy bool
}

// CallHangupEvent is sent when the peer hangs up.
type CallHangupEvent struct {
	Chat *VideoChat
}

// CallSignalEvent carries a media negotiation payload from the peer.
// It should be handed to the media engine.
type CallSignalEvent struct {
	Chat   *VideoChat
	Signal videochat.Signal
}

func (LoginEvent) event()              {}
func (LoginFailedEvent) event()        {}
func (LogoutEvent) event()             {}
func (DisconnectEvent) event()         {}
func (MessageEvent) event()            {}
func (MessageErrorEvent) event()       {}
func (PresenceEvent) event()           {}
func (ContactAddRequestEvent) event()  {}
func (ContactAddResponseEvent) event() {}
func (ContactListChangedEvent) event() {}
func (RoomEnterEvent) event()          {}
func (RoomEnterFailedEvent) event()    {}
func (RoomLeaveEvent) event()          {}
func (RoomDestroyEvent) event()        {}
func (RoomMessageEvent) event()        {}
func (RoomInfoEvent) event()           {}
func (RoomUsersEvent) event()          {}
func (RoomOnlineUsersEvent) event()    {}
func (RoomListEvent) event()           {}
func (RequestErrorEvent) event()       {}
func (IncomingCallEvent) event()       {}
func (CallAcceptedEvent) event()       {}
func (CallRejectedEvent) event()       {}
func (CallHangupEvent) event()         {}
func (CallSignalEvent) event()         {}

// messageFrom converts a received stanza into a Message.
// The sender is taken from the resourcepart for room messages and from the
// localpart otherwise.
func messageFrom(m stanza.Message, now time.Time, room string) Message {
	msg := Message{
		ID:     m.ID,
		Body:   m.Body,
		Params: m.Params,
		Time:   m.Delay,
		Room:   room,
	}
	if msg.Time.IsZero() {
		msg.Time = now
	}
	if room != "" {
		msg.From, _ = strconv.ParseUint(m.From.Resourcepart(), 10, 64)
	} else {
		msg.From, _ = m.From.UserID()
		msg.To, _ = m.To.UserID()
	}
	return msg
}
