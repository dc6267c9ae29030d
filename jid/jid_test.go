// Copyright 2015 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid_test

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"strconv"
	"testing"

	"mellium.im/chat/jid"
)

// Compile time checks to make sure that JID and *jid.JID match several interfaces.
var (
	_ fmt.Stringer        = jid.JID{}
	_ xml.MarshalerAttr   = jid.JID{}
	_ xml.UnmarshalerAttr = (*jid.JID)(nil)
	_ net.Addr            = jid.JID{}
)

func TestValidJIDs(t *testing.T) {
	for i, tc := range [...]struct {
		jid, lp, dp, rp string
	}{
		0: {"example.net", "", "example.net", ""},
		1: {"example.net/rp", "", "example.net", "rp"},
		2: {"42@chat.example.net", "42", "chat.example.net", ""},
		3: {"42@chat.example.net/phone", "42", "chat.example.net", "phone"},
		4: {"42@chat.example.net/rp@rp/rp", "42", "chat.example.net", "rp@rp/rp"},
		5: {"42@chat.example.net/@", "42", "chat.example.net", "@"},
		6: {"[::1]", "", "[::1]", ""},
		7: {"127.0.0.1", "", "127.0.0.1", ""},
		8: {"example.net.", "", "example.net", ""},
		9: {"My_Room@conference.example.net/7", "My_Room", "conference.example.net", "7"},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			j, err := jid.Parse(tc.jid)
			if err != nil {
				t.Fatal(err)
			}
			if j.Domainpart() != tc.dp {
				t.Errorf("Got domainpart %s but expected %s", j.Domainpart(), tc.dp)
			}
			if j.Localpart() != tc.lp {
				t.Errorf("Got localpart %s but expected %s", j.Localpart(), tc.lp)
			}
			if j.Resourcepart() != tc.rp {
				t.Errorf("Got resourcepart %s but expected %s", j.Resourcepart(), tc.rp)
			}
		})
	}
}

func TestInvalidJIDs(t *testing.T) {
	for i, tc := range [...]struct {
		jid string
		err error
	}{
		0: {"/rp", ErrAny},
		1: {"@example.net", jid.ErrEmptyLocal},
		2: {"example.net/", jid.ErrEmptyResource},
		3: {"", ErrAny},
		4: {"a\"b@example.net", jid.ErrForbiddenChars},
		5: {"a'b@example.net", jid.ErrForbiddenChars},
		6: {"[127.0.0.1]", ErrAny},
		7: {"\xff@example.net", jid.ErrInvalidUTF8},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			_, err := jid.Parse(tc.jid)
			switch {
			case err == nil:
				t.Errorf("expected parsing %q to fail", tc.jid)
			case tc.err != ErrAny && !errors.Is(err, tc.err):
				t.Errorf("unexpected error: want=%v, got=%v", tc.err, err)
			}
		})
	}
}

// ErrAny matches any non-nil error in the invalid JID table.
var ErrAny = errors.New("any error")

func TestUser(t *testing.T) {
	j, err := jid.User(1234, "chat.example.net")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := j.String(); s != "1234@chat.example.net" {
		t.Errorf("unexpected address: %s", s)
	}
	id, err := j.UserID()
	if err != nil || id != 1234 {
		t.Errorf("unexpected user id: %d, %v", id, err)
	}
	if _, err := jid.MustParse("lobby@conference.example.net").UserID(); err != jid.ErrNotUser {
		t.Errorf("expected ErrNotUser, got %v", err)
	}
}

func TestParts(t *testing.T) {
	j := jid.MustParse("42@chat.example.net/phone")
	if s := j.Bare().String(); s != "42@chat.example.net" {
		t.Errorf("unexpected bare address: %s", s)
	}
	if s := j.Domain().String(); s != "chat.example.net" {
		t.Errorf("unexpected domain: %s", s)
	}
	r, err := j.WithResource("laptop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := r.String(); s != "42@chat.example.net/laptop" {
		t.Errorf("unexpected address with resource: %s", s)
	}
	if !r.Bare().Equal(j.Bare()) {
		t.Errorf("expected bare addresses to be equal")
	}
	if r.Equal(j) {
		t.Errorf("expected full addresses to differ")
	}
	var zero jid.JID
	if !zero.IsZero() || zero.String() != "" {
		t.Errorf("unexpected zero value %q", zero.String())
	}
}

func TestMarshalAttr(t *testing.T) {
	type wrapper struct {
		XMLName xml.Name `xml:"item"`
		JID     jid.JID  `xml:"jid,attr"`
	}
	b, err := xml.Marshal(wrapper{JID: jid.MustParse("42@chat.example.net")})
	if err != nil {
		t.Fatalf("error marshaling: %v", err)
	}
	if s := string(b); s != `<item jid="42@chat.example.net"></item>` {
		t.Errorf("unexpected output: %s", s)
	}
	b, err = xml.Marshal(wrapper{})
	if err != nil {
		t.Fatalf("error marshaling: %v", err)
	}
	if s := string(b); s != `<item></item>` {
		t.Errorf("unexpected output for zero address: %s", s)
	}

	var w wrapper
	if err := xml.Unmarshal([]byte(`<item jid="7@example.net/r"/>`), &w); err != nil {
		t.Fatalf("error unmarshaling: %v", err)
	}
	if s := w.JID.String(); s != "7@example.net/r" {
		t.Errorf("unexpected address: %s", s)
	}
}

func TestEqualFold(t *testing.T) {
	for i, tc := range [...]struct {
		a, b string
		want bool
	}{
		0: {"My_Room@conference.example.net", "my_room@conference.example.net", true},
		1: {"My_Room@conference.example.net/7", "MY_ROOM@conference.example.net/7", true},
		2: {"room@conference.example.net/A", "room@conference.example.net/a", false},
		3: {"room@conference.example.net", "room@example.net", false},
		4: {"room@conference.example.net", "other@conference.example.net", false},
		5: {"example.net", "example.net", true},
	} {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			a, b := jid.MustParse(tc.a), jid.MustParse(tc.b)
			if got := a.EqualFold(b); got != tc.want {
				t.Errorf("wrong result for %s and %s: want=%t, got=%t", a, b, tc.want, got)
			}
			if a.Equal(b) && !a.EqualFold(b) {
				t.Errorf("equal addresses must be equal under folding")
			}
		})
	}
}
