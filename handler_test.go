// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"mellium.im/chat"
	"mellium.im/chat/muc"
	"mellium.im/chat/videochat"
)

func TestDelegate(t *testing.T) {
	var called string
	mark := func(name string) { called = name }
	d := chat.Delegate{
		DidLogin:                     func(chat.LoginEvent) { mark("login") },
		DidNotLogin:                  func(error) { mark("not login") },
		DidLogout:                    func() { mark("logout") },
		DidDisconnect:                func(error) { mark("disconnect") },
		DidReceiveMessage:            func(chat.Message) { mark("message") },
		DidFailToSendMessage:         func(uint64, error) { mark("message error") },
		DidReceivePresence:           func(uint64, bool, string) { mark("presence") },
		DidReceiveContactAddRequest:  func(uint64) { mark("add request") },
		DidReceiveContactAddResponse: func(uint64, bool) { mark("add response") },
		RoomDidEnter:                 func(muc.Room) { mark("enter") },
		RoomDidDestroy:               func(muc.Room) { mark("destroy") },
		DidReceiveListOfRooms:        func([]muc.Summary) { mark("rooms") },
		RequestDidFail:               func(chat.RequestErrorEvent) { mark("request") },
		DidReceiveCall:               func(*chat.VideoChat, uint64) { mark("call") },
		CallWasRejected:              func(*chat.VideoChat, bool) { mark("rejected") },
		DidReceiveSignal:             func(*chat.VideoChat, videochat.Signal) { mark("signal") },
	}
	for i, tc := range []struct {
		event chat.Event
		want  string
	}{
		0:  {event: chat.LoginEvent{}, want: "login"},
		1:  {event: chat.LoginFailedEvent{}, want: "not login"},
		2:  {event: chat.LogoutEvent{}, want: "logout"},
		3:  {event: chat.DisconnectEvent{}, want: "disconnect"},
		4:  {event: chat.MessageEvent{}, want: "message"},
		5:  {event: chat.MessageErrorEvent{}, want: "message error"},
		6:  {event: chat.PresenceEvent{}, want: "presence"},
		7:  {event: chat.ContactAddRequestEvent{}, want: "add request"},
		8:  {event: chat.ContactAddResponseEvent{}, want: "add response"},
		9:  {event: chat.RoomEnterEvent{}, want: "enter"},
		10: {event: chat.RoomDestroyEvent{}, want: "destroy"},
		11: {event: chat.RoomListEvent{}, want: "rooms"},
		12: {event: chat.RequestErrorEvent{}, want: "request"},
		13: {event: chat.IncomingCallEvent{}, want: "call"},
		14: {event: chat.CallRejectedEvent{}, want: "rejected"},
		15: {event: chat.CallSignalEvent{}, want: "signal"},

		// No callback set.
		16: {event: chat.RoomLeaveEvent{}},
		17: {event: chat.CallHangupEvent{}},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			called = ""
			d.HandleEvent(tc.event)
			if called != tc.want {
				t.Errorf("wrong callback: want=%q, got=%q", tc.want, called)
			}
		})
	}
}

func TestServe(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))

	logins := make(chan chat.LoginEvent, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(ctx, chat.Delegate{
			DidLogin: func(e chat.LoginEvent) { logins <- e },
		})
	}()

	if err := s.Login(testContext(t), chat.User{ID: 1, Password: "pass"}); err != nil {
		t.Fatalf("error logging in: %v", err)
	}
	select {
	case e := <-logins:
		if id, err := e.User.UserID(); err != nil || id != 1 {
			t.Errorf("wrong user logged in: %v", e.User)
		}
	case <-testContext(t).Done():
		t.Fatalf("login never delivered to the handler")
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("wrong error from Serve: want=%v, got=%v", context.Canceled, err)
	}
}

func TestServeClosed(t *testing.T) {
	srv := newServer(t)
	s := newSession(t, testConfig(srv))
	s.Close()
	err := s.Serve(context.Background(), chat.HandlerFunc(func(chat.Event) {}))
	if !errors.Is(err, chat.ErrSessionClosed) {
		t.Errorf("wrong error from Serve: want=%v, got=%v", chat.ErrSessionClosed, err)
	}
}
