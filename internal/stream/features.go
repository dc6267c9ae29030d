// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"mellium.im/chat/internal/ns"
)

// Features is the list of stream features advertised by the server.
type Features struct {
	// StartTLS is set when the server offers STARTTLS.
	StartTLS bool

	// TLSRequired is set when the server will not continue without TLS.
	TLSRequired bool

	// Mechanisms lists the SASL mechanisms offered, if any.
	Mechanisms []string

	// Bind is set when resource binding is offered.
	Bind bool

	// Session is set when the server requires legacy session establishment.
	Session bool
}

type rawFeatures struct {
	StartTLS *struct {
		Required *struct{} `xml:"required"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-tls starttls"`
	Mechanisms *struct {
		List []string `xml:"mechanism"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms"`
	Bind    *struct{} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Session *struct {
		Optional *struct{} `xml:"optional"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-session session"`
}

// ReadFeatures reads the next element from r which must be the stream
// features.
func ReadFeatures(r xml.TokenReader) (Features, error) {
	start, err := NextStart(r)
	if err != nil {
		return Features{}, err
	}
	if start.Name.Space != ns.Stream || start.Name.Local != "features" {
		return Features{}, fmt.Errorf("stream: expected features, got <%s xmlns=%q>: %w", start.Name.Local, start.Name.Space, BadFormat)
	}
	raw := rawFeatures{}
	if err := xml.NewTokenDecoder(r).DecodeElement(&raw, &start); err != nil {
		return Features{}, err
	}
	f := Features{Bind: raw.Bind != nil}
	if raw.StartTLS != nil {
		f.StartTLS = true
		f.TLSRequired = raw.StartTLS.Required != nil
	}
	if raw.Mechanisms != nil {
		for _, m := range raw.Mechanisms.List {
			f.Mechanisms = append(f.Mechanisms, strings.TrimSpace(m))
		}
	}
	if raw.Session != nil {
		f.Session = raw.Session.Optional == nil
	}
	return f, nil
}

// NextStart returns the next start element read from r skipping whitespace.
// A stream error is returned as an Error.
func NextStart(r xml.TokenReader) (xml.StartElement, error) {
	for {
		tok, err := r.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == ns.Stream && t.Name.Local == "error" {
				se := Error{}
				if err := xml.NewTokenDecoder(r).DecodeElement(&se, &t); err != nil {
					return xml.StartElement{}, err
				}
				return xml.StartElement{}, se
			}
			return t.Copy(), nil
		case xml.EndElement:
			if t.Name.Space == ns.Stream && t.Name.Local == "stream" {
				return xml.StartElement{}, io.EOF
			}
			return xml.StartElement{}, NotWellFormed
		case xml.CharData:
			if len(strings.TrimSpace(string(t))) != 0 {
				return xml.StartElement{}, NotWellFormed
			}
		default:
			return xml.StartElement{}, RestrictedXML
		}
	}
}

// WriteTo writes the features element to w.
func (f Features) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	b.WriteString(`<stream:features>`)
	if f.StartTLS {
		fmt.Fprintf(&b, `<starttls xmlns='%s'>`, ns.StartTLS)
		if f.TLSRequired {
			b.WriteString(`<required/>`)
		}
		b.WriteString(`</starttls>`)
	}
	if len(f.Mechanisms) > 0 {
		fmt.Fprintf(&b, `<mechanisms xmlns='%s'>`, ns.SASL)
		for _, m := range f.Mechanisms {
			b.WriteString(`<mechanism>`)
			xml.EscapeText(&b, []byte(m))
			b.WriteString(`</mechanism>`)
		}
		b.WriteString(`</mechanisms>`)
	}
	if f.Bind {
		fmt.Fprintf(&b, `<bind xmlns='%s'/>`, ns.Bind)
	}
	if f.Session {
		fmt.Fprintf(&b, `<session xmlns='%s'/>`, ns.Session)
	}
	b.WriteString(`</stream:features>`)
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
