// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/language"
	"mellium.im/sasl"

	"mellium.im/chat/internal/attr"
	"mellium.im/chat/internal/ns"
	"mellium.im/chat/internal/saslerr"
	"mellium.im/chat/internal/stream"
	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
	"mellium.im/chat/transport"
)

// Errors returned while negotiating a stream.
var (
	errTLSUnavailable = errors.New("chat: server does not offer TLS")
	errTLSRefused     = errors.New("chat: server refused to start TLS")
	errNoMechanism    = errors.New("chat: no matching SASL mechanism offered")
	errNoBind         = errors.New("chat: server does not offer resource binding")
	errBadResponse    = errors.New("chat: unexpected response during negotiation")
)

// handshake is an authenticated stream ready to carry stanzas.
type handshake struct {
	link *transport.Link
	w    io.Writer
	r    xml.TokenReader
	addr jid.JID
}

// negotiator performs the steps leading from a fresh link to a bound
// resource.
type negotiator struct {
	cfg    Config
	link   *transport.Link
	w      io.Writer
	d      *xml.Decoder
	local  jid.JID
	domain jid.JID
	logger *slog.Logger
}

func validEndpoint(s string) error {
	_, err := transport.ParseEndpoint(s)
	return err
}

func (s *Session) dial(ctx context.Context) (*transport.Link, error) {
	d := transport.Dialer{
		Dial:        s.cfg.Dial,
		Proxy:       s.cfg.Proxy,
		TLSConfig:   s.cfg.tlsConfig(),
		IdleTimeout: s.cfg.IdleTimeout,
		Logger:      s.logger,
	}
	if s.cfg.Endpoint == "" {
		return d.DialDomain(ctx, s.cfg.Domain)
	}
	e, err := transport.ParseEndpoint(s.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return d.DialEndpoint(ctx, e)
}

// connect dials and negotiates a stream for user then reports the outcome to
// the protocol loop.
func (s *Session) connect(ctx context.Context, gen uint64, user User) {
	hs, err := s.negotiate(ctx, gen, user)
	if err != nil {
		err = handshakeErr(err)
	}
	if !s.enqueue(func() { s.connected(gen, hs, err) }) && hs != nil {
		hs.link.Close()
	}
}

func (s *Session) negotiate(ctx context.Context, gen uint64, user User) (*handshake, error) {
	local, err := jid.User(user.ID, s.cfg.Domain)
	if err != nil {
		return nil, wrapKind(AuthFailed, "login", err)
	}
	link, err := s.dial(ctx)
	if err != nil {
		var te *transport.Error
		if !errors.As(err, &te) {
			err = &transport.Error{Class: transport.ErrConnectionRefused, Err: err}
		}
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		link.Close()
	})
	defer stop()

	s.enqueue(func() {
		if s.gen == gen {
			s.setState(Authenticating)
		}
	})

	var w io.Writer = link
	if s.cfg.TeeOut != nil {
		w = io.MultiWriter(link, s.cfg.TeeOut)
	}
	n := &negotiator{
		cfg:    s.cfg,
		link:   link,
		w:      w,
		local:  local,
		domain: local.Domain(),
		logger: s.logger,
	}
	addr, err := n.run(ctx, user.Password)
	if err != nil {
		link.Close()
		return nil, err
	}
	if ctx.Err() != nil {
		link.Close()
		return nil, ctx.Err()
	}
	return &handshake{link: link, w: w, r: n.d, addr: addr}, nil
}

// handshakeErr classifies a negotiation failure.
// Failures of the link keep their class, everything else is an
// authentication failure.
func handshakeErr(err error) error {
	var (
		ce *Error
		se stream.Error
		te *transport.Error
	)
	switch {
	case errors.As(err, &ce):
		return err
	case errors.As(err, &se):
		if se.Condition == stream.ConnectionTimeout.Condition {
			return wrapKind(ConnectionTimeout, "login", err)
		}
		return wrapKind(AuthFailed, "login", err)
	case errors.As(err, &te), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return connErr(err)
	}
	return wrapKind(AuthFailed, "login", err)
}

func (n *negotiator) reader() io.Reader {
	if n.cfg.TeeIn != nil {
		return io.TeeReader(n.link, n.cfg.TeeIn)
	}
	return n.link
}

// open sends a new stream header and reads the header and features sent in
// reply.
func (n *negotiator) open() (stream.Features, error) {
	info := stream.Info{To: n.domain, From: n.local}
	if n.cfg.Lang != language.Und {
		info.Lang = n.cfg.Lang.String()
	}
	if err := stream.Open(n.w, info); err != nil {
		return stream.Features{}, err
	}
	n.d = xml.NewDecoder(n.reader())
	remote, err := stream.Expect(n.d, false)
	if err != nil {
		return stream.Features{}, err
	}
	n.logger.Debug("stream opened", "id", remote.ID, "from", remote.From)
	return stream.ReadFeatures(n.d)
}

func (n *negotiator) run(ctx context.Context, password string) (jid.JID, error) {
	features, err := n.open()
	if err != nil {
		return jid.JID{}, err
	}
	if !n.link.Secure() {
		switch {
		case features.StartTLS:
			if err := n.startTLS(ctx); err != nil {
				return jid.JID{}, err
			}
			if features, err = n.open(); err != nil {
				return jid.JID{}, err
			}
		case !n.cfg.InsecurePlaintext:
			return jid.JID{}, errTLSUnavailable
		default:
			n.logger.Warn("authenticating over an unencrypted connection")
		}
	}

	if err := n.authenticate(ctx, features.Mechanisms, password); err != nil {
		return jid.JID{}, err
	}
	if features, err = n.open(); err != nil {
		return jid.JID{}, err
	}
	if !features.Bind {
		return jid.JID{}, errNoBind
	}
	addr, err := n.bind()
	if err != nil {
		return jid.JID{}, err
	}
	if features.Session {
		if err := n.establish(); err != nil {
			return jid.JID{}, err
		}
	}
	n.logger.Debug("stream negotiated", "addr", addr)
	return addr, nil
}

func (n *negotiator) startTLS(ctx context.Context) error {
	if _, err := fmt.Fprintf(n.w, `<starttls xmlns='%s'/>`, ns.StartTLS); err != nil {
		return err
	}
	start, err := stream.NextStart(n.d)
	if err != nil {
		return err
	}
	if err := n.d.Skip(); err != nil {
		return err
	}
	if start.Name != (xml.Name{Space: ns.StartTLS, Local: "proceed"}) {
		return errTLSRefused
	}
	n.logger.Debug("starting TLS")
	return n.link.StartTLS(ctx, n.cfg.tlsConfig())
}

func encodeSASL(b []byte) string {
	if len(b) == 0 {
		return "="
	}
	return base64.StdEncoding.EncodeToString(b)
}

func (n *negotiator) authenticate(ctx context.Context, offered []string, password string) error {
	var selected sasl.Mechanism
selectmechanism:
	for _, m := range n.cfg.Mechanisms {
		for _, name := range offered {
			if name == m.Name {
				selected = m
				break selectmechanism
			}
		}
	}
	if selected.Name == "" {
		return errNoMechanism
	}

	opts := []sasl.Option{
		sasl.Credentials(func() ([]byte, []byte, []byte) {
			return []byte(n.local.Localpart()), []byte(password), nil
		}),
		sasl.RemoteMechanisms(offered...),
	}
	if cs, ok := n.link.ConnectionState(); ok {
		opts = append(opts, sasl.TLSState(cs))
	}
	client := sasl.NewClient(selected, opts...)

	more, resp, err := client.Step(nil)
	if err != nil {
		return err
	}
	n.logger.Debug("authenticating", "mechanism", selected.Name)
	if _, err = fmt.Fprintf(n.w, `<auth xmlns='%s' mechanism='%s'>%s</auth>`, ns.SASL, selected.Name, encodeSASL(resp)); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		challenge, success, err := n.challenge()
		if err != nil {
			return err
		}
		if success {
			if more && len(challenge) > 0 {
				_, _, err = client.Step(challenge)
			}
			return err
		}
		if more, resp, err = client.Step(challenge); err != nil {
			return err
		}
		if _, err = fmt.Fprintf(n.w, `<response xmlns='%s'>%s</response>`, ns.SASL, encodeSASL(resp)); err != nil {
			return err
		}
	}
}

// challenge reads the next challenge, success or failure element.
// A failure is returned as a saslerr.Failure.
func (n *negotiator) challenge() (data []byte, success bool, err error) {
	start, err := stream.NextStart(n.d)
	if err != nil {
		return nil, false, err
	}
	switch start.Name {
	case xml.Name{Space: ns.SASL, Local: "challenge"}, xml.Name{Space: ns.SASL, Local: "success"}:
		var payload struct {
			Data string `xml:",chardata"`
		}
		if err := n.d.DecodeElement(&payload, &start); err != nil {
			return nil, false, err
		}
		success = start.Name.Local == "success"
		text := strings.TrimSpace(payload.Data)
		if text == "" || text == "=" {
			return nil, success, nil
		}
		data, err = base64.StdEncoding.DecodeString(text)
		return data, success, err
	case xml.Name{Space: ns.SASL, Local: "failure"}:
		fail := saslerr.Failure{Lang: n.cfg.Lang}
		if err := n.d.DecodeElement(&fail, &start); err != nil {
			return nil, false, err
		}
		return nil, false, fail
	}
	return nil, false, errBadResponse
}

type negotiationIQ struct {
	ID    string        `xml:"id,attr"`
	Type  string        `xml:"type,attr"`
	Error *stanza.Error `xml:"error"`
	Bind  struct {
		JID string `xml:"jid"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
}

// request writes an iq set carrying payload and decodes the reply.
func (n *negotiator) request(payload string) (negotiationIQ, error) {
	var resp negotiationIQ
	id := attr.RandomID()
	if _, err := fmt.Fprintf(n.w, `<iq type='set' id='%s'>%s</iq>`, id, payload); err != nil {
		return resp, err
	}
	start, err := stream.NextStart(n.d)
	if err != nil {
		return resp, err
	}
	if start.Name != (xml.Name{Space: ns.Client, Local: "iq"}) {
		return resp, errBadResponse
	}
	if err := n.d.DecodeElement(&resp, &start); err != nil {
		return resp, err
	}
	switch {
	case resp.ID != id:
		return resp, errBadResponse
	case resp.Type == string(stanza.ErrorIQ) && resp.Error != nil:
		return resp, *resp.Error
	case resp.Type != string(stanza.ResultIQ):
		return resp, errBadResponse
	}
	return resp, nil
}

func (n *negotiator) bind() (jid.JID, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `<bind xmlns='%s'>`, ns.Bind)
	if n.cfg.Resource != "" {
		b.WriteString(`<resource>`)
		if err := xml.EscapeText(&b, []byte(n.cfg.Resource)); err != nil {
			return jid.JID{}, err
		}
		b.WriteString(`</resource>`)
	}
	b.WriteString(`</bind>`)

	resp, err := n.request(b.String())
	if err != nil {
		return jid.JID{}, err
	}
	addr, err := jid.Parse(strings.TrimSpace(resp.Bind.JID))
	if err != nil {
		return jid.JID{}, err
	}
	if _, err := addr.UserID(); err != nil || !addr.Bare().Equal(n.local.Bare()) {
		return jid.JID{}, fmt.Errorf("chat: server bound unexpected address %s: %w", addr, errBadResponse)
	}
	return addr, nil
}

// establish performs the legacy session establishment required by some
// servers.
func (n *negotiator) establish() error {
	_, err := n.request(fmt.Sprintf(`<session xmlns='%s'/>`, ns.Session))
	return err
}
