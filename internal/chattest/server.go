// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package chattest provides an in-memory chat server for tests.
//
// The server speaks just enough of the protocol for a session to log in,
// exchange messages and presence, manage its roster and use rooms.
// Connections are created with net.Pipe so no network access is needed.
package chattest // import "mellium.im/chat/internal/chattest"

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"mellium.im/chat/codec"
	"mellium.im/chat/internal/attr"
	"mellium.im/chat/internal/ns"
	"mellium.im/chat/internal/saslerr"
	"mellium.im/chat/internal/stream"
	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// ErrClosed is returned when dialing a server that has been closed.
var ErrClosed = errors.New("chattest: server closed")

var errAuth = errors.New("chattest: authentication failed")

// Server is an in-memory chat server.
// Users must be added before they can log in.
type Server struct {
	// OnStanza, if set, is called with every stanza received from a client
	// after the sender address has been stamped on it.
	// If it returns true the stanza is not routed.
	// It must not block.
	OnStanza func(from jid.JID, st stanza.Stanza) bool

	// RequireSession makes the server advertise legacy session
	// establishment.
	RequireSession bool

	logger     *slog.Logger
	domain     jid.JID
	conference string

	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	conns   map[net.Conn]struct{}
	users   map[uint64]*account
	clients map[string]*client
	rooms   map[string]*room
}

type account struct {
	id       uint64
	password string
	contacts map[uint64]*subscription
}

// subscription is the state of a contact seen from the owning account.
type subscription struct {
	to   bool
	from bool
	ask  bool
}

type client struct {
	addr      jid.JID
	id        uint64
	conn      net.Conn
	mu        sync.Mutex
	enc       *codec.Encoder
	available bool
	status    string
}

func (c *client) send(st stanza.Stanza) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Errors mean the client went away and are reported by its reader.
	_ = c.enc.Encode(st)
}

// New returns a server for the given domain.
// Rooms are hosted on "conference." followed by the domain.
func New(domain string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		logger:     logger,
		domain:     jid.MustParse(domain),
		conference: "conference." + domain,
		conns:      make(map[net.Conn]struct{}),
		users:      make(map[uint64]*account),
		clients:    make(map[string]*client),
		rooms:      make(map[string]*room),
	}
}

// Domain returns the domain served.
func (s *Server) Domain() string {
	return s.domain.String()
}

// AddUser creates an account.
func (s *Server) AddUser(id uint64, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &account{id: id, password: password, contacts: make(map[uint64]*subscription)}
}

// Befriend sets up a mutual subscription between two existing accounts.
func (s *Server) Befriend(a, b uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contact(a, b).to, s.contact(a, b).from = true, true
	s.contact(b, a).to, s.contact(b, a).from = true, true
}

// Subscription reports the subscription held by user towards contact.
func (s *Server) Subscription(user, contact uint64) (to, from bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.users[user]
	if !ok {
		return false, false
	}
	sub, ok := acct.contacts[contact]
	if !ok {
		return false, false
	}
	return sub.to, sub.from
}

// Online reports whether the user has a bound resource.
func (s *Server) Online(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clientsOf(id)) > 0
}

// Dial connects to the server.
// It has the signature of a transport.DialFunc.
func (s *Server) Dial(_ context.Context, _, _ string) (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	local, remote := net.Pipe()
	s.conns[remote] = struct{}{}
	s.wg.Add(1)
	go s.serve(remote)
	return local, nil
}

// Send delivers a stanza to every resource of the addressed user, or to the
// resource named by a full address.
// It reports whether any client received it.
func (s *Server) Send(st stanza.Stanza) bool {
	var to jid.JID
	switch v := st.(type) {
	case stanza.Message:
		to = v.To
	case stanza.Presence:
		to = v.To
	case stanza.IQ:
		to = v.To
	}
	s.mu.Lock()
	targets := s.targets(to)
	s.mu.Unlock()
	for _, c := range targets {
		c.send(st)
	}
	return len(targets) > 0
}

// Kick drops every connection of the user without closing the stream.
func (s *Server) Kick(id uint64) {
	s.mu.Lock()
	targets := s.clientsOf(id)
	s.mu.Unlock()
	for _, c := range targets {
		c.conn.Close()
	}
}

// Close drops every connection and waits for them to be released.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	c, d, err := s.negotiate(conn)
	if err != nil {
		s.logger.Debug("negotiation failed", "err", err)
		return
	}
	defer s.unbind(c)
	s.logger.Debug("client bound", "addr", c.addr)

	dec := codec.NewDecoder(stream.Reader(d))
	for {
		st, err := dec.Next()
		switch {
		case errors.Is(err, codec.ErrMalformedStanza):
			s.logger.Debug("dropping malformed stanza", "from", c.addr, "err", err)
			continue
		case errors.Is(err, io.EOF):
			c.mu.Lock()
			_ = stream.Close(conn)
			c.mu.Unlock()
			return
		case err != nil:
			return
		}
		s.handle(c, st)
	}
}

// negotiate performs the server side of the handshake: a plaintext stream,
// PLAIN authentication, resource binding and optionally the legacy session.
func (s *Server) negotiate(conn net.Conn) (*client, *xml.Decoder, error) {
	d, err := s.open(conn, stream.Features{Mechanisms: []string{"PLAIN"}})
	if err != nil {
		return nil, nil, err
	}
	id, err := s.auth(conn, d)
	if err != nil {
		return nil, nil, err
	}
	if _, err := fmt.Fprintf(conn, `<success xmlns='%s'/>`, ns.SASL); err != nil {
		return nil, nil, err
	}
	d, err = s.open(conn, stream.Features{Bind: true, Session: s.RequireSession})
	if err != nil {
		return nil, nil, err
	}
	c, err := s.bind(conn, d, id)
	if err != nil {
		return nil, nil, err
	}
	if s.RequireSession {
		if err := s.session(c, d); err != nil {
			s.unbind(c)
			return nil, nil, err
		}
	}
	return c, d, nil
}

func (s *Server) session(c *client, d *xml.Decoder) error {
	iq, err := readIQ(d)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = fmt.Fprintf(c.conn, `<iq type='result' id='%s'/>`, iq.ID)
	return err
}

func (s *Server) open(conn net.Conn, features stream.Features) (*xml.Decoder, error) {
	d := xml.NewDecoder(conn)
	if _, err := stream.Expect(d, true); err != nil {
		return nil, err
	}
	if err := stream.Open(conn, stream.Info{ID: attr.RandomID(), From: s.domain}); err != nil {
		return nil, err
	}
	_, err := features.WriteTo(conn)
	return d, err
}

func (s *Server) auth(conn net.Conn, d *xml.Decoder) (uint64, error) {
	start, err := stream.NextStart(d)
	if err != nil {
		return 0, err
	}
	if start.Name != (xml.Name{Space: ns.SASL, Local: "auth"}) {
		return 0, stream.NotAuthorized
	}
	var req struct {
		Mechanism string `xml:"mechanism,attr"`
		Data      string `xml:",chardata"`
	}
	if err := d.DecodeElement(&req, &start); err != nil {
		return 0, err
	}
	fail := func(cond saslerr.Condition) (uint64, error) {
		if _, err := (saslerr.Failure{Condition: cond}).WriteTo(conn); err != nil {
			return 0, err
		}
		return 0, errAuth
	}
	if req.Mechanism != "PLAIN" {
		return fail(saslerr.InvalidMechanism)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.Data))
	if err != nil {
		return fail(saslerr.IncorrectEncoding)
	}
	parts := bytes.Split(raw, []byte{0})
	if len(parts) != 3 {
		return fail(saslerr.MalformedRequest)
	}
	id, err := strconv.ParseUint(string(parts[1]), 10, 64)
	if err != nil {
		return fail(saslerr.NotAuthorized)
	}
	s.mu.Lock()
	acct, ok := s.users[id]
	s.mu.Unlock()
	if !ok || acct.password != string(parts[2]) {
		return fail(saslerr.NotAuthorized)
	}
	return id, nil
}

type bindIQ struct {
	ID   string `xml:"id,attr"`
	Type string `xml:"type,attr"`
	Bind struct {
		Resource string `xml:"resource"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
}

func readIQ(d *xml.Decoder) (bindIQ, error) {
	var iq bindIQ
	start, err := stream.NextStart(d)
	if err != nil {
		return iq, err
	}
	if start.Name.Local != "iq" {
		return iq, stream.BadFormat
	}
	err = d.DecodeElement(&iq, &start)
	return iq, err
}

// bind assigns a resource and registers the client before writing the
// result.
func (s *Server) bind(conn net.Conn, d *xml.Decoder, id uint64) (*client, error) {
	iq, err := readIQ(d)
	if err != nil {
		return nil, err
	}
	bare, err := jid.User(id, s.domain.String())
	if err != nil {
		return nil, err
	}
	res := iq.Bind.Resource
	if res == "" {
		res = "res"
	}

	s.mu.Lock()
	addr, err := bare.WithResource(res)
	for n := 1; err == nil && s.clients[addr.String()] != nil; n++ {
		addr, err = bare.WithResource(res + strconv.Itoa(n))
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	c := &client{addr: addr, id: id, conn: conn, enc: codec.NewEncoder(conn)}
	s.clients[addr.String()] = c
	s.mu.Unlock()

	c.mu.Lock()
	_, err = fmt.Fprintf(conn, `<iq type='result' id='%s'><bind xmlns='%s'><jid>%s</jid></bind></iq>`, iq.ID, ns.Bind, addr)
	c.mu.Unlock()
	if err != nil {
		s.unbind(c)
		return nil, err
	}
	return c, nil
}

// unbind removes a client that went away and announces it as unavailable.
func (s *Server) unbind(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.addr.String())
	for _, r := range s.rooms {
		if nick, ok := r.nickOf(c); ok {
			s.leaveRoom(r, nick, c)
		}
	}
	if c.available {
		c.available = false
		s.broadcast(c, stanza.Presence{From: c.addr, Type: stanza.UnavailablePresence})
	}
	s.logger.Debug("client unbound", "addr", c.addr)
}

func (s *Server) handle(c *client, st stanza.Stanza) {
	switch v := st.(type) {
	case stanza.Message:
		v.From = c.addr
		st = v
	case stanza.Presence:
		v.From = c.addr
		st = v
	case stanza.IQ:
		v.From = c.addr
		st = v
	}
	if s.OnStanza != nil && s.OnStanza(c.addr, st) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch v := st.(type) {
	case stanza.Message:
		s.routeMessage(c, v)
	case stanza.Presence:
		s.routePresence(c, v)
	case stanza.IQ:
		s.routeIQ(c, v)
	}
}

func (s *Server) contact(user, contact uint64) *subscription {
	acct := s.users[user]
	if acct == nil {
		return &subscription{}
	}
	sub, ok := acct.contacts[contact]
	if !ok {
		sub = &subscription{}
		acct.contacts[contact] = sub
	}
	return sub
}

func (s *Server) clientsOf(id uint64) []*client {
	var list []*client
	for _, c := range s.clients {
		if c.id == id {
			list = append(list, c)
		}
	}
	return list
}

// targets returns the clients addressed by to.
func (s *Server) targets(to jid.JID) []*client {
	if to.Resourcepart() != "" {
		if c, ok := s.clients[to.String()]; ok {
			return []*client{c}
		}
		return nil
	}
	id, err := to.UserID()
	if err != nil || to.Domainpart() != s.domain.String() {
		return nil
	}
	return s.clientsOf(id)
}

func (s *Server) routeMessage(c *client, m stanza.Message) {
	if m.To.Domainpart() == s.conference {
		s.roomMessage(c, m)
		return
	}
	targets := s.targets(m.To)
	if len(targets) == 0 {
		if m.Type != stanza.ErrorMessage {
			reply := m.ErrorReply(stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable})
			reply.From = m.To
			c.send(reply)
		}
		return
	}
	for _, t := range targets {
		t.send(m)
	}
}

// broadcast sends p to every online resource subscribed to c and echoes it
// to the other resources of the same user.
func (s *Server) broadcast(c *client, p stanza.Presence) {
	acct := s.users[c.id]
	if acct == nil {
		return
	}
	for id, sub := range acct.contacts {
		if !sub.from {
			continue
		}
		for _, t := range s.clientsOf(id) {
			p.To = t.addr.Bare()
			t.send(p)
		}
	}
	for _, t := range s.clientsOf(c.id) {
		if t != c || p.Type == stanza.AvailablePresence {
			p.To = t.addr
			t.send(p)
		}
	}
}

// probe sends the presence of every online contact c is subscribed to.
func (s *Server) probe(c *client, contact uint64) {
	for _, t := range s.clientsOf(contact) {
		if !t.available {
			continue
		}
		c.send(stanza.Presence{From: t.addr, To: c.addr, Status: t.status})
	}
}

func (s *Server) routePresence(c *client, p stanza.Presence) {
	if p.To.Domainpart() == s.conference {
		s.roomPresence(c, p)
		return
	}
	if p.To.IsZero() {
		switch p.Type {
		case stanza.AvailablePresence:
			initial := !c.available
			c.available = true
			c.status = p.Status
			s.broadcast(c, p)
			if initial {
				for id, sub := range s.users[c.id].contacts {
					if sub.to {
						s.probe(c, id)
					}
				}
			}
		case stanza.UnavailablePresence:
			c.available = false
			s.broadcast(c, p)
		}
		return
	}

	peer, err := p.To.UserID()
	if err != nil || s.users[peer] == nil {
		return
	}
	from := p
	from.From = c.addr.Bare()
	from.To = p.To.Bare()
	switch p.Type {
	case stanza.SubscribePresence:
		s.contact(c.id, peer).ask = true
		s.deliver(peer, from)
	case stanza.SubscribedPresence:
		s.contact(c.id, peer).from = true
		sub := s.contact(peer, c.id)
		sub.to, sub.ask = true, false
		s.deliver(peer, from)
		for _, t := range s.clientsOf(peer) {
			s.probe(t, c.id)
		}
	case stanza.UnsubscribedPresence:
		s.contact(c.id, peer).from = false
		sub := s.contact(peer, c.id)
		sub.to, sub.ask = false, false
		s.deliver(peer, from)
		s.deliver(peer, stanza.Presence{From: c.addr, To: p.To.Bare(), Type: stanza.UnavailablePresence})
	case stanza.UnsubscribePresence:
		sub := s.contact(c.id, peer)
		sub.to, sub.ask = false, false
		s.contact(peer, c.id).from = false
		s.deliver(peer, from)
	default:
		for _, t := range s.targets(p.To) {
			t.send(p)
		}
	}
}

func (s *Server) deliver(id uint64, st stanza.Stanza) {
	for _, t := range s.clientsOf(id) {
		t.send(st)
	}
}

func (s *Server) routeIQ(c *client, iq stanza.IQ) {
	switch {
	case iq.To.Domainpart() == s.conference:
		s.roomIQ(c, iq)
		return
	case iq.To.IsZero(), iq.To.Equal(s.domain), iq.To.Equal(c.addr.Bare()):
		s.serverIQ(c, iq)
		return
	}
	targets := s.targets(iq.To)
	if len(targets) == 0 {
		if iq.IsRequest() {
			c.send(iq.ErrorReply(stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}))
		}
		return
	}
	targets[0].send(iq)
}
