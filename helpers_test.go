// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat_test

import (
	"context"
	"testing"
	"time"

	"mellium.im/chat"
	"mellium.im/chat/internal/chattest"
	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

const (
	testDomain  = "example.net"
	testTimeout = 5 * time.Second
)

func newServer(t *testing.T, users ...uint64) *chattest.Server {
	t.Helper()
	srv := chattest.New(testDomain, nil)
	for _, id := range users {
		srv.AddUser(id, "pass")
	}
	t.Cleanup(func() {
		srv.Close()
	})
	return srv
}

func testConfig(srv *chattest.Server) chat.Config {
	return chat.Config{
		Domain:            testDomain,
		Endpoint:          "tcp://" + testDomain,
		Dial:              srv.Dial,
		InsecurePlaintext: true,
	}
}

func newSession(t *testing.T, cfg chat.Config) *chat.Session {
	t.Helper()
	s, err := chat.New(cfg)
	if err != nil {
		t.Fatalf("error creating session: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// login logs in as id and waits for the session to be authenticated and its
// contact list to be loaded.
func login(t *testing.T, s *chat.Session, id uint64) {
	t.Helper()
	if err := s.Login(testContext(t), chat.User{ID: id, Password: "pass"}); err != nil {
		t.Fatalf("error logging in: %v", err)
	}
	waitFor[chat.LoginEvent](t, s)
	waitFor[chat.ContactListChangedEvent](t, s)
}

// waitFor skips events until one of type T is received.
func waitFor[T chat.Event](t *testing.T, s *chat.Session) T {
	t.Helper()
	return waitMatch(t, s, func(T) bool { return true })
}

// waitMatch skips events until one of type T satisfying match is received.
func waitMatch[T chat.Event](t *testing.T, s *chat.Session, match func(T) bool) T {
	t.Helper()
	timeout := time.After(testTimeout)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				var zero T
				t.Fatalf("events closed while waiting for %T", zero)
			}
			if v, ok := e.(T); ok && match(v) {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
		}
	}
}

// capture records the stanzas of type T sent by clients that satisfy keep.
// Captured stanzas are not routed.
// It must be called before any session logs in.
func capture[T stanza.Stanza](srv *chattest.Server, keep func(T) bool) <-chan T {
	c := make(chan T, 16)
	srv.OnStanza = func(_ jid.JID, st stanza.Stanza) bool {
		v, ok := st.(T)
		if !ok || !keep(v) {
			return false
		}
		c <- v
		return true
	}
	return c
}
