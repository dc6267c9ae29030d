// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"mellium.im/chat"
	"mellium.im/chat/internal/clock"
	"mellium.im/chat/roster"
	"mellium.im/chat/stanza"
)

func TestNewInvalidConfig(t *testing.T) {
	for i, cfg := range []chat.Config{
		{},
		{Domain: testDomain, Endpoint: "ws://" + testDomain},
		{Domain: testDomain, Endpoint: "tcp://" + testDomain + ":notaport"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if _, err := chat.New(cfg); err == nil {
				t.Errorf("expected an error for config %+v", cfg)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	if s.State() != chat.Disconnected {
		t.Fatalf("wrong initial state: want=%v, got=%v", chat.Disconnected, s.State())
	}
	if _, ok := s.CurrentUser(); ok {
		t.Errorf("expected no current user before login")
	}

	if err := s.Login(testContext(t), chat.User{ID: 1, Password: "pass"}); err != nil {
		t.Fatalf("error logging in: %v", err)
	}
	e := waitFor[chat.LoginEvent](t, s)
	if want := "1@example.net/chat"; e.User.String() != want {
		t.Errorf("wrong bound address: want=%q, got=%q", want, e.User)
	}
	if !s.IsLoggedIn() || s.State() != chat.Authenticated {
		t.Errorf("expected session to be authenticated, got state %v", s.State())
	}
	user, ok := s.CurrentUser()
	if !ok || !user.Equal(e.User) {
		t.Errorf("wrong current user: want=%v, got=%v (%t)", e.User, user, ok)
	}
	if !srv.Online(1) {
		t.Errorf("expected the server to see the user online")
	}
}

func TestLoginLegacySession(t *testing.T) {
	srv := newServer(t, 1)
	srv.RequireSession = true
	s := newSession(t, testConfig(srv))
	login(t, s, 1)
	if !s.IsLoggedIn() {
		t.Errorf("expected session to be authenticated")
	}
}

func TestLoginFailed(t *testing.T) {
	refused := func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	for i, tc := range []struct {
		user    chat.User
		refused bool
		kind    chat.ErrorKind
	}{
		0: {
			user: chat.User{ID: 1, Password: "wrong"},
			kind: chat.AuthFailed,
		},
		1: {
			user: chat.User{ID: 2, Password: "pass"},
			kind: chat.AuthFailed,
		},
		2: {
			user:    chat.User{ID: 1, Password: "pass"},
			refused: true,
			kind:    chat.ConnectionRefused,
		},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			srv := newServer(t, 1)
			cfg := testConfig(srv)
			if tc.refused {
				cfg.Dial = refused
			}
			s := newSession(t, cfg)
			if err := s.Login(testContext(t), tc.user); err != nil {
				t.Fatalf("error starting login: %v", err)
			}
			e := waitFor[chat.LoginFailedEvent](t, s)
			if k := chat.KindOf(e.Err); k != tc.kind {
				t.Errorf("wrong error kind: want=%v, got=%v (%v)", tc.kind, k, e.Err)
			}
			if s.State() != chat.Disconnected {
				t.Errorf("wrong state after failed login: want=%v, got=%v", chat.Disconnected, s.State())
			}
		})
	}
}

func TestLoginPlaintextRefused(t *testing.T) {
	srv := newServer(t, 1)
	cfg := testConfig(srv)
	cfg.InsecurePlaintext = false
	s := newSession(t, cfg)
	if err := s.Login(testContext(t), chat.User{ID: 1, Password: "pass"}); err != nil {
		t.Fatalf("error starting login: %v", err)
	}
	e := waitFor[chat.LoginFailedEvent](t, s)
	if !errors.Is(e.Err, chat.ErrAuthFailed) {
		t.Errorf("expected authentication failure without TLS, got %v", e.Err)
	}
}

func TestLoginInvalidState(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	login(t, s, 1)
	err := s.Login(testContext(t), chat.User{ID: 1, Password: "pass"})
	if !errors.Is(err, chat.ErrInvalidState) {
		t.Errorf("wrong error logging in twice: want=%v, got=%v", chat.ErrInvalidState, err)
	}
}

func TestLogoutDisconnected(t *testing.T) {
	srv := newServer(t)
	s := newSession(t, testConfig(srv))
	if err := s.Logout(testContext(t)); !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("wrong error: want=%v, got=%v", chat.ErrNotAuthenticated, err)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogoutShutsDown(t *testing.T) {
	srv := newServer(t, 1)
	logs := &syncBuffer{}
	cfg := testConfig(srv)
	cfg.Logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newSession(t, cfg)
	login(t, s, 1)

	if err := s.Logout(testContext(t)); err != nil {
		t.Fatalf("error logging out: %v", err)
	}
	const (
		shuttingDown = `from=authenticated to="shutting down"`
		disconnected = `from="shutting down" to=disconnected`
	)
	deadline := time.Now().Add(testTimeout)
	for !strings.Contains(logs.String(), disconnected) {
		if time.Now().After(deadline) {
			t.Fatalf("session never finished shutting down, logs:\n%s", logs)
		}
		time.Sleep(10 * time.Millisecond)
	}
	out := logs.String()
	if i := strings.Index(out, shuttingDown); i < 0 || i > strings.Index(out, disconnected) {
		t.Errorf("expected the session to shut down before disconnecting, logs:\n%s", out)
	}
	if s.State() != chat.Disconnected {
		t.Errorf("wrong state: want=%v, got=%v", chat.Disconnected, s.State())
	}
	if err := s.Logout(testContext(t)); !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("wrong error logging out twice: want=%v, got=%v", chat.ErrNotAuthenticated, err)
	}
	login(t, s, 1)
}

func TestStateString(t *testing.T) {
	for i, tc := range []struct {
		state chat.State
		want  string
	}{
		0: {chat.Disconnected, "disconnected"},
		1: {chat.Authenticated, "authenticated"},
		2: {chat.ShuttingDown, "shutting down"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if s := tc.state.String(); s != tc.want {
				t.Errorf("wrong string: want=%q, got=%q", tc.want, s)
			}
		})
	}
}

func TestNoEventsAfterLogout(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	login(t, s, 1)

	ctx := testContext(t)
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("error logging out: %v", err)
	}
	waitFor[chat.LogoutEvent](t, s)
	if s.IsLoggedIn() {
		t.Errorf("expected session to be logged out")
	}
	err := s.SendMessage(ctx, chat.Message{To: 2, Body: "hi"})
	if !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("wrong error sending after logout: want=%v, got=%v", chat.ErrNotAuthenticated, err)
	}
	select {
	case e := <-s.Events():
		t.Errorf("unexpected event after logout: %#v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnect(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	login(t, s, 1)

	srv.Kick(1)
	e := waitFor[chat.DisconnectEvent](t, s)
	if k := chat.KindOf(e.Err); k != chat.ConnectionClosed {
		t.Errorf("wrong error kind: want=%v, got=%v (%v)", chat.ConnectionClosed, k, e.Err)
	}
	if s.State() != chat.Disconnected {
		t.Errorf("wrong state: want=%v, got=%v", chat.Disconnected, s.State())
	}

	// A new login is possible and events flow again.
	login(t, s, 1)
}

func TestClosed(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	if err := s.Close(); err != nil {
		t.Fatalf("error closing: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("error closing twice: %v", err)
	}
	if _, ok := <-s.Events(); ok {
		t.Errorf("expected events to be closed")
	}
	err := s.Login(context.Background(), chat.User{ID: 1, Password: "pass"})
	if !errors.Is(err, chat.ErrSessionClosed) {
		t.Errorf("wrong error: want=%v, got=%v", chat.ErrSessionClosed, err)
	}
}

func TestCloseLogsOut(t *testing.T) {
	srv := newServer(t, 1, 2)
	srv.Befriend(1, 2)
	s1 := newSession(t, testConfig(srv))
	s2 := newSession(t, testConfig(srv))
	login(t, s1, 1)
	login(t, s2, 2)
	waitMatch(t, s1, func(e chat.PresenceEvent) bool { return e.UserID == 2 && e.Available })

	s2.Close()
	waitMatch(t, s1, func(e chat.PresenceEvent) bool { return e.UserID == 2 && !e.Available })
}

func TestSendMessage(t *testing.T) {
	srv := newServer(t, 1)
	msgs := capture(srv, func(m stanza.Message) bool { return m.Type == stanza.ChatMessage })
	s := newSession(t, testConfig(srv))
	login(t, s, 1)

	ctx := testContext(t)
	if err := s.SendMessage(ctx, chat.Message{To: 7, Body: "hello"}); err != nil {
		t.Fatalf("error sending message: %v", err)
	}
	select {
	case m := <-msgs:
		if want := "7@example.net"; m.To.String() != want {
			t.Errorf("wrong recipient: want=%q, got=%q", want, m.To)
		}
		if m.Body != "hello" {
			t.Errorf("wrong body: want=%q, got=%q", "hello", m.Body)
		}
	case <-ctx.Done():
		t.Fatalf("message never reached the server")
	}
	select {
	case m := <-msgs:
		t.Errorf("unexpected second message: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendMessageInvalid(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	ctx := testContext(t)
	if err := s.SendMessage(ctx, chat.Message{To: 2, Body: "hi"}); !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("wrong error before login: want=%v, got=%v", chat.ErrNotAuthenticated, err)
	}
	login(t, s, 1)
	if err := s.SendMessage(ctx, chat.Message{To: 2}); !errors.Is(err, chat.ErrBadRequest) {
		t.Errorf("wrong error for empty message: want=%v, got=%v", chat.ErrBadRequest, err)
	}
}

func TestMessageDelivered(t *testing.T) {
	srv := newServer(t, 1, 2)
	s1 := newSession(t, testConfig(srv))
	s2 := newSession(t, testConfig(srv))
	login(t, s1, 1)
	login(t, s2, 2)

	err := s1.SendMessage(testContext(t), chat.Message{
		To:     2,
		Body:   "hello",
		Params: map[string]string{"kind": "greeting"},
	})
	if err != nil {
		t.Fatalf("error sending message: %v", err)
	}
	e := waitFor[chat.MessageEvent](t, s2)
	switch {
	case e.Message.From != 1:
		t.Errorf("wrong sender: want=1, got=%d", e.Message.From)
	case e.Message.To != 2:
		t.Errorf("wrong recipient: want=2, got=%d", e.Message.To)
	case e.Message.Body != "hello":
		t.Errorf("wrong body: want=%q, got=%q", "hello", e.Message.Body)
	case e.Message.Params["kind"] != "greeting":
		t.Errorf("wrong params: %v", e.Message.Params)
	case e.Message.Time.IsZero():
		t.Errorf("expected message to carry a time")
	}
}

func TestMessageBounced(t *testing.T) {
	srv := newServer(t, 1, 9)
	s := newSession(t, testConfig(srv))
	login(t, s, 1)

	if err := s.SendMessage(testContext(t), chat.Message{To: 9, Body: "anyone?"}); err != nil {
		t.Fatalf("error sending message: %v", err)
	}
	e := waitFor[chat.MessageErrorEvent](t, s)
	if e.To != 9 {
		t.Errorf("wrong recipient on bounce: want=9, got=%d", e.To)
	}
	if e.Err == nil {
		t.Errorf("expected bounce to carry an error")
	}
}

func TestPresence(t *testing.T) {
	srv := newServer(t, 1, 2)
	srv.Befriend(1, 2)
	s1 := newSession(t, testConfig(srv))
	s2 := newSession(t, testConfig(srv))
	login(t, s1, 1)
	login(t, s2, 2)
	waitMatch(t, s1, func(e chat.PresenceEvent) bool { return e.UserID == 2 && e.Available })

	if err := s2.SendPresenceWithStatus(testContext(t), "busy"); err != nil {
		t.Fatalf("error sending presence: %v", err)
	}
	waitMatch(t, s1, func(e chat.PresenceEvent) bool { return e.UserID == 2 && e.Status == "busy" })
}

func TestDirectPresenceNotInRoster(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	login(t, s, 1)
	err := s.SendDirectPresenceWithStatus(testContext(t), "hi", 5)
	if !errors.Is(err, chat.ErrNotInRoster) {
		t.Errorf("wrong error: want=%v, got=%v", chat.ErrNotInRoster, err)
	}
}

func TestContactAdd(t *testing.T) {
	for i, accept := range []bool{true, false} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			srv := newServer(t, 1, 2)
			s1 := newSession(t, testConfig(srv))
			s2 := newSession(t, testConfig(srv))
			login(t, s1, 1)
			login(t, s2, 2)

			ctx := testContext(t)
			if err := s1.AddContact(ctx, 2); err != nil {
				t.Fatalf("error adding contact: %v", err)
			}
			req := waitFor[chat.ContactAddRequestEvent](t, s2)
			if req.UserID != 1 {
				t.Fatalf("wrong requester: want=1, got=%d", req.UserID)
			}
			if accept {
				err := s2.ConfirmContact(ctx, 1)
				if err != nil {
					t.Fatalf("error confirming contact: %v", err)
				}
			} else if err := s2.RejectContact(ctx, 1); err != nil {
				t.Fatalf("error rejecting contact: %v", err)
			}

			resp := waitFor[chat.ContactAddResponseEvent](t, s1)
			if resp.UserID != 2 || resp.Accepted != accept {
				t.Errorf("wrong response: %+v", resp)
			}
			contacts, err := s1.ContactList(ctx)
			if err != nil {
				t.Fatalf("error listing contacts: %v", err)
			}
			want := roster.None
			if accept {
				want = roster.Both
			}
			var found bool
			for _, c := range contacts {
				if c.UserID == 2 {
					found = true
					if c.Subscription != want {
						t.Errorf("wrong subscription: want=%v, got=%v", want, c.Subscription)
					}
				}
			}
			if !found {
				t.Errorf("contact 2 missing from contact list %+v", contacts)
			}
		})
	}
}

func TestRemoveContact(t *testing.T) {
	srv := newServer(t, 1, 2)
	srv.Befriend(1, 2)
	s := newSession(t, testConfig(srv))
	login(t, s, 1)

	ctx := testContext(t)
	if err := s.RemoveContact(ctx, 2); err != nil {
		t.Fatalf("error removing contact: %v", err)
	}
	contacts, err := s.ContactList(ctx)
	if err != nil {
		t.Fatalf("error listing contacts: %v", err)
	}
	for _, c := range contacts {
		if c.UserID == 2 {
			t.Errorf("contact 2 still listed after removal")
		}
	}
}

func TestKeepAlive(t *testing.T) {
	srv := newServer(t, 1)
	clk := clock.NewFake(time.Now())
	presences := capture(srv, func(p stanza.Presence) bool {
		return p.To.IsZero() && p.Type == stanza.AvailablePresence
	})
	s := newSession(t, chat.WithClock(testConfig(srv), clk))
	login(t, s, 1)

	ctx := testContext(t)
	next := func() stanza.Presence {
		t.Helper()
		select {
		case p := <-presences:
			return p
		case <-ctx.Done():
			t.Fatalf("no presence reached the server")
		}
		return stanza.Presence{}
	}
	next()
	if err := s.SendPresenceWithStatus(ctx, "away"); err != nil {
		t.Fatalf("error sending presence: %v", err)
	}
	next()

	clk.Advance(chat.DefaultKeepAliveInterval)
	if p := next(); p.Status != "away" {
		t.Errorf("keep-alive should repeat the last status: want=%q, got=%q", "away", p.Status)
	}
}

func TestKeepAliveHoldsIdleWindow(t *testing.T) {
	const idle = 300 * time.Millisecond
	srv := newServer(t, 1)
	cfg := testConfig(srv)
	cfg.IdleTimeout = idle
	cfg.KeepAliveInterval = idle / 3
	s := newSession(t, cfg)
	login(t, s, 1)

	quiet := time.After(4 * idle)
	for done := false; !done; {
		select {
		case e := <-s.Events():
			if d, ok := e.(chat.DisconnectEvent); ok {
				t.Fatalf("session dropped while idle: %v", d.Err)
			}
		case <-quiet:
			done = true
		}
	}
	if !s.IsLoggedIn() {
		t.Errorf("expected the session to outlive several idle windows")
	}
}

func TestIdleWindowExpires(t *testing.T) {
	srv := newServer(t, 1)
	cfg := testConfig(srv)
	cfg.IdleTimeout = 200 * time.Millisecond
	cfg.KeepAliveInterval = time.Hour
	s := newSession(t, cfg)
	login(t, s, 1)

	e := waitFor[chat.DisconnectEvent](t, s)
	if !errors.Is(e.Err, chat.ErrConnectionTimeout) {
		t.Errorf("wrong error: want=%v, got=%v", chat.ErrConnectionTimeout, e.Err)
	}
	if s.IsLoggedIn() {
		t.Errorf("expected the session to be logged out after the idle window")
	}
}

func TestIQTimeout(t *testing.T) {
	srv := newServer(t, 1)
	clk := clock.NewFake(time.Now())
	iqs := capture(srv, func(iq stanza.IQ) bool {
		return iq.To.Domainpart() == "conference."+testDomain
	})
	s := newSession(t, chat.WithClock(testConfig(srv), clk))
	login(t, s, 1)

	ctx := testContext(t)
	if err := s.RequestAllRooms(ctx); err != nil {
		t.Fatalf("error requesting rooms: %v", err)
	}
	select {
	case <-iqs:
	case <-ctx.Done():
		t.Fatalf("request never reached the server")
	}
	clk.Advance(chat.DefaultIQTimeout)
	e := waitFor[chat.RequestErrorEvent](t, s)
	if !errors.Is(e.Err, chat.ErrIQTimeout) {
		t.Errorf("wrong error: want=%v, got=%v", chat.ErrIQTimeout, e.Err)
	}
}

func TestIQIDsUnique(t *testing.T) {
	srv := newServer(t, 1)
	iqs := capture(srv, func(iq stanza.IQ) bool {
		return iq.To.Domainpart() == "conference."+testDomain
	})
	s := newSession(t, testConfig(srv))
	login(t, s, 1)

	ctx := testContext(t)
	const n = 5
	for i := 0; i < n; i++ {
		if err := s.RequestAllRooms(ctx); err != nil {
			t.Fatalf("error requesting rooms: %v", err)
		}
	}
	seen := make(map[string]struct{})
	for i := 0; i < n; i++ {
		select {
		case iq := <-iqs:
			if iq.ID == "" {
				t.Errorf("request sent without an id")
			}
			if _, ok := seen[iq.ID]; ok {
				t.Errorf("id %q reused", iq.ID)
			}
			seen[iq.ID] = struct{}{}
		case <-ctx.Done():
			t.Fatalf("only %d requests reached the server", i)
		}
	}
}
