// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"strconv"

	"mellium.im/xmlstream"

	"mellium.im/chat/jid"
)

// PresenceType is the type of a presence stanza.
// It should normally be one of the constants defined in this package.
type PresenceType string

const (
	// AvailablePresence is a special case that signals that the entity is
	// available for communication.
	AvailablePresence PresenceType = ""

	// ErrorPresence indicates that an error has occurred regarding processing of
	// a previously sent presence stanza.
	ErrorPresence PresenceType = "error"

	// ProbePresence is a request for an entity's current presence.
	ProbePresence PresenceType = "probe"

	// SubscribePresence is sent when the sender wishes to subscribe to the
	// recipient's presence.
	SubscribePresence PresenceType = "subscribe"

	// SubscribedPresence indicates that the sender has allowed the recipient to
	// receive future presence broadcasts.
	SubscribedPresence PresenceType = "subscribed"

	// UnavailablePresence indicates that the sender is no longer available for
	// communication.
	UnavailablePresence PresenceType = "unavailable"

	// UnsubscribePresence indicates that the sender is unsubscribing from the
	// receiver's presence.
	UnsubscribePresence PresenceType = "unsubscribe"

	// UnsubscribedPresence indicates that the subscription request has been
	// denied, or a previously granted subscription has been revoked.
	UnsubscribedPresence PresenceType = "unsubscribed"
)

// Presence is a presence stanza.
type Presence struct {
	ID       string
	To       jid.JID
	From     jid.JID
	Lang     string
	Type     PresenceType
	Show     string
	Status   string
	Priority int8
	Params   Params
	Payloads []Payload
	Error    *Error
}

// NewPresence returns a presence of the given type addressed to to.
// A zero to results in a broadcast presence.
func NewPresence(typ PresenceType, to jid.JID) Presence {
	return Presence{To: to, Type: typ}
}

// Kind satisfies the Stanza interface.
func (Presence) Kind() string { return "presence" }

// Available reports whether p signals availability.
func (p Presence) Available() bool {
	return p.Type == AvailablePresence
}

// Payload returns the first payload with the given name or nil.
func (p Presence) Payload(name xml.Name) Payload {
	return findPayload(p.Payloads, name)
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (p Presence) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if p.Show != "" {
		inner = append(inner, textElement(xml.Name{Local: "show"}, p.Show))
	}
	if p.Status != "" {
		inner = append(inner, textElement(xml.Name{Local: "status"}, p.Status))
	}
	if p.Priority != 0 {
		inner = append(inner, textElement(xml.Name{Local: "priority"}, strconv.Itoa(int(p.Priority))))
	}
	if len(p.Params) > 0 {
		inner = append(inner, p.Params.TokenReader())
	}
	inner = append(inner, payloadReaders(p.Payloads)...)
	if p.Error != nil {
		inner = append(inner, p.Error.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{
			Name: xml.Name{Local: "presence"},
			Attr: header(p.ID, p.To, p.From, p.Lang, string(p.Type)),
		},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (p Presence) WriteXML(w xmlstream.TokenWriter) (n int, err error) {
	return xmlstream.Copy(w, p.TokenReader())
}
