// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ping implements XEP-0199: XMPP Ping.
//
// The chat service pings idle clients and expects a result; the session
// answers these requests automatically.
package ping // import "mellium.im/chat/ping"

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/chat/internal/ns"
	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// NS is the XML namespace used by XMPP pings. It is provided as a convenience.
const NS = ns.Ping

// Name is the name of the ping payload.
var Name = xml.Name{Space: NS, Local: "ping"}

// Ping is the payload of a ping request.
type Ping struct{}

// XMLName satisfies the stanza.Payload interface.
func (Ping) XMLName() xml.Name { return Name }

// TokenReader satisfies the xmlstream.Marshaler interface.
func (Ping) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{Name: Name})
}

// IQ returns a ping request addressed to to.
func IQ(to jid.JID) stanza.IQ {
	return stanza.NewIQ(stanza.GetIQ, to, &Ping{})
}

// Is reports whether iq is a ping request.
func Is(iq stanza.IQ) bool {
	if iq.Type != stanza.GetIQ || iq.Payload == nil {
		return false
	}
	return iq.Payload.XMLName() == Name
}
