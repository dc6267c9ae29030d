// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"io"
	"sort"

	"mellium.im/xmlstream"

	"mellium.im/chat/internal/attr"
	"mellium.im/chat/internal/ns"
	"mellium.im/chat/jid"
)

// Stanza is implemented by Message, Presence, and IQ.
type Stanza interface {
	xmlstream.Marshaler
	xmlstream.WriterTo

	// Kind returns the local name of the stanza element.
	Kind() string
}

// Payload is a child element carried by a stanza.
type Payload interface {
	xmlstream.Marshaler

	// XMLName returns the qualified name of the payload element.
	XMLName() xml.Name
}

// Unknown is a payload that was not recognized when decoding.
// It holds a copy of every token in the element so that it can be written
// back out unchanged.
type Unknown struct {
	Start xml.StartElement
	Inner []xml.Token
}

// XMLName satisfies the Payload interface.
func (u Unknown) XMLName() xml.Name {
	return u.Start.Name
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (u Unknown) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(Tokens(u.Inner), u.Start.Copy())
}

// Tokens returns a token reader that yields a copy of each token in toks.
func Tokens(toks []xml.Token) xml.TokenReader {
	var i int
	return xmlstream.ReaderFunc(func() (xml.Token, error) {
		if i >= len(toks) {
			return nil, io.EOF
		}
		t := xml.CopyToken(toks[i])
		i++
		return t, nil
	})
}

// Params is the map of structured parameters attached to messages and
// presences, carried as <extraParams><key>value</key></extraParams>.
type Params map[string]string

// ParamsName is the name of the element that carries Params.
const ParamsName = "extraParams"

// TokenReader satisfies the xmlstream.Marshaler interface.
// Keys are written in sorted order.
func (p Params) TokenReader() xml.TokenReader {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var inner []xml.TokenReader
	for _, k := range keys {
		inner = append(inner, textElement(xml.Name{Local: k}, p[k]))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: xml.Name{Local: ParamsName}},
	)
}

// textElement returns an element with the given name wrapping text.
func textElement(name xml.Name, text string) xml.TokenReader {
	if text == "" {
		return xmlstream.Wrap(nil, xml.StartElement{Name: name})
	}
	return xmlstream.Wrap(
		xmlstream.Token(xml.CharData(text)),
		xml.StartElement{Name: name},
	)
}

// header builds the common attributes shared by all stanza kinds.
func header(id string, to, from jid.JID, lang, typ string) []xml.Attr {
	var attrs []xml.Attr
	attrs = attr.Append(attrs, "id", id)
	attrs = attr.Append(attrs, "to", to.String())
	attrs = attr.Append(attrs, "from", from.String())
	attrs = attr.Append(attrs, "type", typ)
	if lang != "" {
		attrs = append(attrs, xml.Attr{
			Name:  xml.Name{Space: ns.XML, Local: "lang"},
			Value: lang,
		})
	}
	return attrs
}

func payloadReaders(payloads []Payload) []xml.TokenReader {
	r := make([]xml.TokenReader, 0, len(payloads))
	for _, p := range payloads {
		if p == nil {
			continue
		}
		r = append(r, p.TokenReader())
	}
	return r
}

// findPayload returns the first payload in the list with the given name.
func findPayload(payloads []Payload, name xml.Name) Payload {
	for _, p := range payloads {
		if p != nil && p.XMLName() == name {
			return p
		}
	}
	return nil
}
