// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mellium.im/xmlstream"

	"mellium.im/chat/internal/ns"
	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// ErrMalformedStanza is wrapped by errors returned for elements that are well
// formed XML but not valid stanzas.
var ErrMalformedStanza = errors.New("codec: malformed stanza")

func malformed(format string, v ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedStanza, fmt.Sprintf(format, v...))
}

// Decoder reads stanzas from a token stream.
type Decoder struct {
	r        xml.TokenReader
	registry Registry
}

// NewDecoder returns a decoder reading from r using the default registry.
// The reader is expected to yield the top level elements of a stream and
// io.EOF when the stream ends.
func NewDecoder(r xml.TokenReader) *Decoder {
	return &Decoder{r: r, registry: DefaultRegistry()}
}

// WithRegistry returns a decoder reading from r that decodes payloads with
// the given registry.
func WithRegistry(r xml.TokenReader, reg Registry) *Decoder {
	return &Decoder{r: r, registry: reg}
}

// Next reads the next stanza.
// Whitespace between stanzas is skipped.
func (d *Decoder) Next() (stanza.Stanza, error) {
	for {
		tok, err := d.r.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) != 0 {
				return nil, fmt.Errorf("codec: unexpected character data between stanzas")
			}
			continue
		case xml.StartElement:
			start := t.Copy()
			inner, err := capture(d.r)
			if err != nil {
				return nil, err
			}
			return d.decode(start, inner)
		case xml.EndElement:
			return nil, fmt.Errorf("codec: unexpected end element %s", t.Name.Local)
		default:
			// Comments, processing instructions and directives between stanzas are
			// ignored.
			continue
		}
	}
}

// capture copies every token up to the end of the current element.
// The final end element is consumed but not included.
func capture(r xml.TokenReader) ([]xml.Token, error) {
	var truncated bool
	inner := xmlstream.Inner(xmlstream.ReaderFunc(func() (xml.Token, error) {
		tok, err := r.Token()
		if err == io.EOF {
			truncated = true
		}
		return tok, err
	}))
	toks, err := xmlstream.ReadAll(inner)
	switch {
	case err != nil:
		return nil, err
	case truncated:
		return nil, io.ErrUnexpectedEOF
	}
	return toks, nil
}

func isCore(name xml.Name, local string) bool {
	return name.Local == local && (name.Space == "" || name.Space == ns.Client)
}

type header struct {
	id   string
	to   jid.JID
	from jid.JID
	lang string
	typ  string
}

func parseHeader(start xml.StartElement) (header, error) {
	var h header
	for _, a := range start.Attr {
		var err error
		switch {
		case a.Name.Space == ns.XML && a.Name.Local == "lang":
			h.lang = a.Value
		case a.Name.Space != "":
		case a.Name.Local == "id":
			h.id = a.Value
		case a.Name.Local == "type":
			h.typ = a.Value
		case a.Name.Local == "to":
			err = h.to.UnmarshalXMLAttr(a)
		case a.Name.Local == "from":
			err = h.from.UnmarshalXMLAttr(a)
		}
		if err != nil {
			return h, malformed("invalid %s address %q: %v", a.Name.Local, a.Value, err)
		}
	}
	return h, nil
}

func (d *Decoder) decode(start xml.StartElement, inner []xml.Token) (stanza.Stanza, error) {
	h, err := parseHeader(start)
	if err != nil {
		return nil, err
	}
	children := xml.NewTokenDecoder(stanza.Tokens(inner))
	switch {
	case isCore(start.Name, "message"):
		return d.decodeMessage(h, children)
	case isCore(start.Name, "presence"):
		return d.decodePresence(h, children)
	case isCore(start.Name, "iq"):
		return d.decodeIQ(h, children)
	}
	return nil, malformed("unknown stanza <%s xmlns=%q>", start.Name.Local, start.Name.Space)
}

// each calls f for every child element read from children until the end of
// the enclosing element.
// If f returns without consuming the element it is skipped.
func each(children *xml.Decoder, f func(start xml.StartElement) (consumed bool, err error)) error {
	for {
		tok, err := children.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return malformed("%v", err)
		}
		var start xml.StartElement
		switch t := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.StartElement:
			start = t
		default:
			continue
		}
		consumed, err := f(start)
		if err != nil {
			return err
		}
		if !consumed {
			if err := children.Skip(); err != nil {
				return malformed("%v", err)
			}
		}
	}
}

func text(children *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := children.DecodeElement(&s, &start); err != nil {
		return "", malformed("invalid <%s>: %v", start.Name.Local, err)
	}
	return s, nil
}

func decodeParams(children *xml.Decoder) (stanza.Params, error) {
	params := make(stanza.Params)
	err := each(children, func(child xml.StartElement) (bool, error) {
		v, err := text(children, child)
		if err != nil {
			return true, err
		}
		params[child.Name.Local] = v
		return true, nil
	})
	return params, err
}

func decodeError(children *xml.Decoder, start xml.StartElement) (*stanza.Error, error) {
	se := &stanza.Error{}
	if err := children.DecodeElement(se, &start); err != nil {
		return nil, malformed("invalid error: %v", err)
	}
	if se.Condition == "" {
		return nil, malformed("error without a condition")
	}
	return se, nil
}

func (d *Decoder) payload(children *xml.Decoder, start xml.StartElement) (stanza.Payload, error) {
	if newPayload, ok := d.registry[start.Name]; ok {
		p := newPayload()
		if err := children.DecodeElement(p, &start); err != nil {
			return nil, malformed("invalid <%s xmlns=%q>: %v", start.Name.Local, start.Name.Space, err)
		}
		return p, nil
	}
	inner, err := capture(children)
	if err != nil {
		return nil, malformed("%v", err)
	}
	return &stanza.Unknown{Start: stripNS(start), Inner: stripAll(inner)}, nil
}

func stripNS(start xml.StartElement) xml.StartElement {
	start = start.Copy()
	attrs := start.Attr[:0]
	for _, a := range start.Attr {
		if (a.Name.Space == "" && a.Name.Local == "xmlns") || a.Name.Space == "xmlns" {
			continue
		}
		attrs = append(attrs, a)
	}
	start.Attr = attrs
	return start
}

func stripAll(toks []xml.Token) []xml.Token {
	for i, tok := range toks {
		if start, ok := tok.(xml.StartElement); ok {
			toks[i] = stripNS(start)
		}
	}
	return toks
}

func (d *Decoder) decodeMessage(h header, children *xml.Decoder) (stanza.Stanza, error) {
	msg := stanza.Message{
		ID:   h.id,
		To:   h.to,
		From: h.from,
		Lang: h.lang,
		Type: stanza.MessageType(h.typ),
	}
	switch msg.Type {
	case "", stanza.NormalMessage, stanza.ChatMessage, stanza.GroupChatMessage,
		stanza.HeadlineMessage, stanza.ErrorMessage:
	default:
		return nil, malformed("unknown message type %q", h.typ)
	}

	err := each(children, func(start xml.StartElement) (bool, error) {
		var err error
		switch {
		case isCore(start.Name, "body"):
			msg.Body, err = text(children, start)
		case isCore(start.Name, "subject"):
			msg.Subject, err = text(children, start)
		case isCore(start.Name, "thread"):
			msg.Thread, err = text(children, start)
		case isCore(start.Name, stanza.ParamsName):
			msg.Params, err = decodeParams(children)
		case isCore(start.Name, "error"):
			msg.Error, err = decodeError(children, start)
		case start.Name == stanza.DelayName:
			msg.Delay, err = stanza.ParseDelay(start)
			if err != nil {
				err = malformed("invalid delay: %v", err)
			}
			return false, err
		default:
			var p stanza.Payload
			p, err = d.payload(children, start)
			msg.Payloads = append(msg.Payloads, p)
		}
		return true, err
	})
	if err != nil {
		return nil, err
	}
	if msg.Type == stanza.ErrorMessage && msg.Error == nil {
		return nil, malformed("error message without an error")
	}
	return msg, nil
}

func (d *Decoder) decodePresence(h header, children *xml.Decoder) (stanza.Stanza, error) {
	p := stanza.Presence{
		ID:   h.id,
		To:   h.to,
		From: h.from,
		Lang: h.lang,
		Type: stanza.PresenceType(h.typ),
	}
	switch p.Type {
	case stanza.AvailablePresence, stanza.UnavailablePresence, stanza.SubscribePresence,
		stanza.SubscribedPresence, stanza.UnsubscribePresence, stanza.UnsubscribedPresence,
		stanza.ProbePresence, stanza.ErrorPresence:
	default:
		return nil, malformed("unknown presence type %q", h.typ)
	}

	err := each(children, func(start xml.StartElement) (bool, error) {
		var err error
		switch {
		case isCore(start.Name, "show"):
			p.Show, err = text(children, start)
		case isCore(start.Name, "status"):
			p.Status, err = text(children, start)
		case isCore(start.Name, "priority"):
			var s string
			s, err = text(children, start)
			if err == nil {
				var prio int64
				prio, err = strconv.ParseInt(strings.TrimSpace(s), 10, 8)
				if err != nil {
					err = malformed("invalid priority %q", s)
				}
				p.Priority = int8(prio)
			}
		case isCore(start.Name, stanza.ParamsName):
			p.Params, err = decodeParams(children)
		case isCore(start.Name, "error"):
			p.Error, err = decodeError(children, start)
		default:
			var payload stanza.Payload
			payload, err = d.payload(children, start)
			p.Payloads = append(p.Payloads, payload)
		}
		return true, err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Decoder) decodeIQ(h header, children *xml.Decoder) (stanza.Stanza, error) {
	iq := stanza.IQ{
		ID:   h.id,
		To:   h.to,
		From: h.from,
		Lang: h.lang,
		Type: stanza.IQType(h.typ),
	}
	switch iq.Type {
	case stanza.GetIQ, stanza.SetIQ, stanza.ResultIQ, stanza.ErrorIQ:
	default:
		return nil, malformed("unknown iq type %q", h.typ)
	}
	if iq.ID == "" {
		return nil, malformed("iq without an id")
	}

	err := each(children, func(start xml.StartElement) (bool, error) {
		if isCore(start.Name, "error") {
			var err error
			iq.Error, err = decodeError(children, start)
			return true, err
		}
		p, err := d.payload(children, start)
		if err != nil {
			return true, err
		}
		switch {
		case iq.Payload == nil:
			iq.Payload = p
		case iq.IsRequest():
			return true, malformed("iq %s carries more than one payload", iq.ID)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if iq.IsRequest() && iq.Payload == nil {
		return nil, malformed("iq %s request without a payload", iq.ID)
	}
	if iq.Type == stanza.ErrorIQ && iq.Error == nil {
		return nil, malformed("iq %s error without an error", iq.ID)
	}
	return iq, nil
}
