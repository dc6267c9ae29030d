// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package videochat_test

import (
	"bytes"
	"encoding/xml"
	"errors"
	"reflect"
	"strconv"
	"testing"

	"github.com/pion/webrtc/v4"
	"mellium.im/xmlstream"

	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
	"mellium.im/chat/videochat"
)

const domain = "chat.example.net"

type recorder struct {
	sent []stanza.Message
}

func (r *recorder) Send(s stanza.Stanza) error {
	r.sent = append(r.sent, s.(stanza.Message))
	return nil
}

func (r *recorder) last(t *testing.T) (stanza.Message, *videochat.Call) {
	t.Helper()
	if len(r.sent) == 0 {
		t.Fatalf("nothing was sent")
	}
	msg := r.sent[len(r.sent)-1]
	call, ok := videochat.Envelope(msg.Payloads)
	if !ok {
		t.Fatalf("last message carries no envelope: %+v", msg)
	}
	return msg, call
}

func envelope(from, id string, a videochat.Action) stanza.Message {
	return stanza.Message{
		From:     jid.MustParse(from),
		Type:     stanza.ChatMessage,
		Payloads: []stanza.Payload{&videochat.Call{ID: id, Action: a}},
	}
}

func TestIncomingCallAndBusy(t *testing.T) {
	rec := &recorder{}
	m := videochat.New(rec, domain, nil)
	var incoming []videochat.Channel
	m.OnIncoming = func(c videochat.Channel) { incoming = append(incoming, c) }

	first := m.Register()
	second := m.Register()
	// Bind the first channel to an outgoing call so it is no longer free.
	if err := m.Call(first.Handle, 5); err != nil {
		t.Fatal(err)
	}

	if !m.HandleMessage(envelope("9@"+domain+"/phone", "c1", videochat.ActionCall)) {
		t.Fatalf("expected envelope to be handled")
	}
	if len(incoming) != 1 {
		t.Fatalf("expected one incoming call, got %d", len(incoming))
	}
	c := incoming[0]
	if c.Handle != second.Handle || c.CallID != "c1" || c.State != videochat.Ringing {
		t.Errorf("unexpected channel %+v", c)
	}
	if id, _ := c.Peer.UserID(); id != 9 {
		t.Errorf("wrong peer %s", c.Peer)
	}

	rec.sent = nil
	m.HandleMessage(envelope("10@"+domain+"/phone", "c2", videochat.ActionCall))
	if len(incoming) != 1 {
		t.Errorf("did not expect a second incoming call")
	}
	msg, call := rec.last(t)
	if msg.Type != stanza.ErrorMessage || msg.Error == nil || msg.Error.Condition != stanza.ResourceConstraint {
		t.Errorf("expected busy error, got %+v", msg)
	}
	if call.ID != "c2" || call.Action != videochat.ActionBusy {
		t.Errorf("wrong busy envelope %+v", call)
	}
	if msg.To.String() != "10@"+domain+"/phone" {
		t.Errorf("busy sent to wrong peer %s", msg.To)
	}
}

func TestOutgoingCall(t *testing.T) {
	rec := &recorder{}
	m := videochat.New(rec, domain, nil)
	var accepted, rejected, hungup int
	var busy bool
	m.OnAccepted = func(videochat.Channel) { accepted++ }
	m.OnRejected = func(_ videochat.Channel, b bool) { rejected++; busy = b }
	m.OnHangup = func(videochat.Channel) { hungup++ }

	h := m.Register()
	if err := m.Call(h.Handle, 9); err != nil {
		t.Fatal(err)
	}
	msg, call := rec.last(t)
	if msg.To.String() != "9@"+domain || call.Action != videochat.ActionCall || call.ID != h.CallID {
		t.Fatalf("unexpected call message %+v %+v", msg, call)
	}
	if err := m.Call(h.Handle, 9); !errors.Is(err, videochat.ErrInvalidState) {
		t.Errorf("expected second call to fail, got %v", err)
	}

	m.HandleMessage(envelope("9@"+domain+"/phone", h.CallID, videochat.ActionAccept))
	if c, _ := m.Channel(h.Handle); c.State != videochat.Accepted || accepted != 1 {
		t.Fatalf("expected accepted call, got %v", c.State)
	}

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"}
	if err := m.SendSignal(h.Handle, videochat.Signal{Description: offer}); err != nil {
		t.Fatalf("error sending offer: %v", err)
	}
	if c, _ := m.Channel(h.Handle); c.State != videochat.InCall {
		t.Errorf("expected in call, got %v", c.State)
	}
	_, call = rec.last(t)
	if call.Action != videochat.ActionSignal || !reflect.DeepEqual(call.Description, offer) {
		t.Errorf("unexpected signal envelope %+v", call)
	}
	if err := m.SendSignal(h.Handle, videochat.Signal{}); !errors.Is(err, videochat.ErrBadSignal) {
		t.Errorf("expected empty signal to be rejected, got %v", err)
	}

	m.HandleMessage(envelope("9@"+domain+"/phone", h.CallID, videochat.ActionHangup))
	c, _ := m.Channel(h.Handle)
	if hungup != 1 || c.State != videochat.Idle || c.CallID == h.CallID {
		t.Errorf("expected channel to return to idle with a new id, got %+v", c)
	}

	// A bounced call is reported as busy.
	if err := m.Call(h.Handle, 9); err != nil {
		t.Fatal(err)
	}
	bounce := envelope("9@"+domain, c.CallID, videochat.ActionCall)
	bounce.Type = stanza.ErrorMessage
	bounce.Error = &stanza.Error{Type: stanza.Wait, Condition: stanza.ResourceConstraint}
	m.HandleMessage(bounce)
	if rejected != 1 || !busy {
		t.Errorf("expected busy rejection, got rejected=%d busy=%t", rejected, busy)
	}
}

func TestUnregister(t *testing.T) {
	rec := &recorder{}
	m := videochat.New(rec, domain, nil)
	h := m.Register()
	m.HandleMessage(envelope("9@"+domain, "c1", videochat.ActionCall))
	if err := m.Accept(h.Handle); err != nil {
		t.Fatal(err)
	}
	if err := m.Unregister(h.Handle); err != nil {
		t.Fatal(err)
	}
	_, call := rec.last(t)
	if call.Action != videochat.ActionHangup || call.ID != "c1" {
		t.Errorf("expected hangup on unregister, got %+v", call)
	}
	if _, ok := m.Channel(h.Handle); ok {
		t.Errorf("expected channel to be gone")
	}
	if err := m.Unregister(h.Handle); !errors.Is(err, videochat.ErrUnknownChannel) {
		t.Errorf("expected unknown channel, got %v", err)
	}

	idle := m.Register()
	rec.sent = nil
	if err := m.Unregister(idle.Handle); err != nil {
		t.Fatal(err)
	}
	if len(rec.sent) != 0 {
		t.Errorf("did not expect a hangup for an idle channel")
	}
}

func TestReject(t *testing.T) {
	rec := &recorder{}
	m := videochat.New(rec, domain, nil)
	h := m.Register()
	m.HandleMessage(envelope("9@"+domain, "c1", videochat.ActionCall))
	if err := m.Reject(h.Handle); err != nil {
		t.Fatal(err)
	}
	_, call := rec.last(t)
	if call.Action != videochat.ActionReject || call.ID != "c1" {
		t.Errorf("unexpected envelope %+v", call)
	}
	c, _ := m.Channel(h.Handle)
	if c.State != videochat.Idle || c.CallID == "c1" {
		t.Errorf("expected idle channel with new id, got %+v", c)
	}
}

func idx(i uint16) *uint16 { return &i }
func str(s string) *string { return &s }

var envelopeTestCases = [...]videochat.Call{
	0: {ID: "a", Action: videochat.ActionCall},
	1: {ID: "b", Action: videochat.ActionSignal, Description: &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}},
	2: {ID: "c", Action: videochat.ActionSignal, Candidate: &webrtc.ICECandidateInit{
		Candidate:        "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host",
		SDPMid:           str("0"),
		SDPMLineIndex:    idx(0),
		UsernameFragment: str("abcd"),
	}},
}

func TestEnvelopeRoundTrip(t *testing.T) {
	for i, tc := range envelopeTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			var buf bytes.Buffer
			e := xml.NewEncoder(&buf)
			if _, err := xmlstream.Copy(e, tc.TokenReader()); err != nil {
				t.Fatal(err)
			}
			if err := e.Flush(); err != nil {
				t.Fatal(err)
			}
			var out videochat.Call
			if err := xml.Unmarshal(buf.Bytes(), &out); err != nil {
				t.Fatalf("error decoding %s: %v", buf.String(), err)
			}
			if !reflect.DeepEqual(out, tc) {
				t.Errorf("round trip failed:\nwant=%+v,\n got=%+v", tc, out)
			}
		})
	}
}
