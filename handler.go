// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"

	"mellium.im/chat/muc"
	"mellium.im/chat/videochat"
)

// A Handler responds to events emitted by a session.
type Handler interface {
	HandleEvent(Event)
}

// The HandlerFunc type is an adapter to allow the use of ordinary functions as
// event handlers.
// If f is a function with the appropriate signature, HandlerFunc(f) is a
// Handler that calls f.
type HandlerFunc func(Event)

// HandleEvent calls f(e).
func (f HandlerFunc) HandleEvent(e Event) {
	f(e)
}

// Serve delivers every event of the session to h, one at a time, until ctx is
// canceled or the session is closed.
func (s *Session) Serve(ctx context.Context, h Handler) error {
	events := s.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return ErrSessionClosed
			}
			h.HandleEvent(e)
		}
	}
}

// Delegate is a Handler with one callback per event.
// Nil callbacks are skipped.
type Delegate struct {
	DidLogin                     func(LoginEvent)
	DidNotLogin                  func(err error)
	DidLogout                    func()
	DidDisconnect                func(err error)
	DidReceiveMessage            func(Message)
	DidFailToSendMessage         func(to uint64, err error)
	DidReceivePresence           func(userID uint64, available bool, status string)
	DidReceiveContactAddRequest  func(userID uint64)
	DidReceiveContactAddResponse func(userID uint64, accepted bool)
	ContactListDidChange         func(ContactListChangedEvent)
	RoomDidEnter                 func(muc.Room)
	RoomDidFailToEnter           func(muc.Room, error)
	RoomDidLeave                 func(muc.Room)
	RoomDidDestroy               func(muc.Room)
	RoomDidReceiveMessage        func(Message, muc.Room)
	RoomDidReceiveInformation    func(muc.Info, muc.Room)
	RoomDidReceiveListOfUsers    func([]uint64, muc.Room)
	RoomDidReceiveOnlineUsers    func([]uint64, muc.Room)
	DidReceiveListOfRooms        func([]muc.Summary)
	RequestDidFail               func(RequestErrorEvent)
	DidReceiveCall               func(v *VideoChat, peer uint64)
	CallWasAccepted              func(*VideoChat)
	CallWasRejected              func(v *VideoChat, busy bool)
	CallDidHangup                func(*VideoChat)
	DidReceiveSignal             func(*VideoChat, videochat.Signal)
}

// HandleEvent satisfies the Handler interface.
func (d Delegate) HandleEvent(e Event) {
	switch ev := e.(type) {
	case LoginEvent:
		if d.DidLogin != nil {
			d.DidLogin(ev)
		}
	case LoginFailedEvent:
		if d.DidNotLogin != nil {
			d.DidNotLogin(ev.Err)
		}
	case LogoutEvent:
		if d.DidLogout != nil {
			d.DidLogout()
		}
	case DisconnectEvent:
		if d.DidDisconnect != nil {
			d.DidDisconnect(ev.Err)
		}
	case MessageEvent:
		if d.DidReceiveMessage != nil {
			d.DidReceiveMessage(ev.Message)
		}
	case MessageErrorEvent:
		if d.DidFailToSendMessage != nil {
			d.DidFailToSendMessage(ev.To, ev.Err)
		}
	case PresenceEvent:
		if d.DidReceivePresence != nil {
			d.DidReceivePresence(ev.UserID, ev.Available, ev.Status)
		}
	case ContactAddRequestEvent:
		if d.DidReceiveContactAddRequest != nil {
			d.DidReceiveContactAddRequest(ev.UserID)
		}
	case ContactAddResponseEvent:
		if d.DidReceiveContactAddResponse != nil {
			d.DidReceiveContactAddResponse(ev.UserID, ev.Accepted)
		}
	case ContactListChangedEvent:
		if d.ContactListDidChange != nil {
			d.ContactListDidChange(ev)
		}
	case RoomEnterEvent:
		if d.RoomDidEnter != nil {
			d.RoomDidEnter(ev.Room)
		}
	case RoomEnterFailedEvent:
		if d.RoomDidFailToEnter != nil {
			d.RoomDidFailToEnter(ev.Room, ev.Err)
		}
	case RoomLeaveEvent:
		if d.RoomDidLeave != nil {
			d.RoomDidLeave(ev.Room)
		}
	case RoomDestroyEvent:
		if d.RoomDidDestroy != nil {
			d.RoomDidDestroy(ev.Room)
		}
	case RoomMessageEvent:
		if d.RoomDidReceiveMessage != nil {
			d.RoomDidReceiveMessage(ev.Message, ev.Room)
		}
	case RoomInfoEvent:
		if d.RoomDidReceiveInformation != nil {
			d.RoomDidReceiveInformation(ev.Info, ev.Room)
		}
	case RoomUsersEvent:
		if d.RoomDidReceiveListOfUsers != nil {
			d.RoomDidReceiveListOfUsers(ev.Users, ev.Room)
		}
	case RoomOnlineUsersEvent:
		if d.RoomDidReceiveOnlineUsers != nil {
			d.RoomDidReceiveOnlineUsers(ev.Users, ev.Room)
		}
	case RoomListEvent:
		if d.DidReceiveListOfRooms != nil {
			d.DidReceiveListOfRooms(ev.Rooms)
		}
	case RequestErrorEvent:
		if d.RequestDidFail != nil {
			d.RequestDidFail(ev)
		}
	case IncomingCallEvent:
		if d.DidReceiveCall != nil {
			d.DidReceiveCall(ev.Chat, ev.Peer)
		}
	case CallAcceptedEvent:
		if d.CallWasAccepted != nil {
			d.CallWasAccepted(ev.Chat)
		}
	case CallRejectedEvent:
		if d.CallWasRejected != nil {
			d.CallWasRejected(ev.Chat, ev.Busy)
		}
	case CallHangupEvent:
		if d.CallDidHangup != nil {
			d.CallDidHangup(ev.Chat)
		}
	case CallSignalEvent:
		if d.DidReceiveSignal != nil {
			d.DidReceiveSignal(ev.Chat, ev.Signal)
		}
	}
}
