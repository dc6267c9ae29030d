// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"time"

	"mellium.im/xmlstream"

	"mellium.im/chat/jid"
)

// MessageType is the type of a message stanza.
// It should normally be one of the constants defined in this package.
type MessageType string

const (
	// NormalMessage is a standalone message that is sent outside the context of
	// a one-to-one conversation or groupchat, and to which it is expected that
	// the recipient will reply.
	NormalMessage MessageType = "normal"

	// ChatMessage represents a message sent in the context of a one-to-one chat
	// session.
	ChatMessage MessageType = "chat"

	// ErrorMessage is generated by an entity that experiences an error when
	// processing a message received from another entity.
	ErrorMessage MessageType = "error"

	// GroupChatMessage is sent in the context of a multi-user chat environment.
	GroupChatMessage MessageType = "groupchat"

	// HeadlineMessage provides an alert, a notification, or other transient
	// information to which no reply is expected.
	HeadlineMessage MessageType = "headline"
)

// Message is a message stanza.
// It carries a body to a user or room along with any structured parameters
// and payloads.
type Message struct {
	ID       string
	To       jid.JID
	From     jid.JID
	Lang     string
	Type     MessageType
	Subject  string
	Body     string
	Thread   string
	Params   Params
	Delay    time.Time
	Payloads []Payload
	Error    *Error
}

// NewChat returns a one-to-one chat message addressed to to.
func NewChat(to jid.JID, body string) Message {
	return Message{To: to, Type: ChatMessage, Body: body}
}

// NewGroupChat returns a groupchat message addressed to a room.
func NewGroupChat(room jid.JID, body string) Message {
	return Message{To: room.Bare(), Type: GroupChatMessage, Body: body}
}

// Kind satisfies the Stanza interface.
func (Message) Kind() string { return "message" }

// Payload returns the first payload with the given name or nil.
func (msg Message) Payload(name xml.Name) Payload {
	return findPayload(msg.Payloads, name)
}

// ErrorReply returns an error message in response to msg.
func (msg Message) ErrorReply(e Error) Message {
	return Message{
		ID:       msg.ID,
		To:       msg.From,
		Type:     ErrorMessage,
		Payloads: msg.Payloads,
		Error:    &e,
	}
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (msg Message) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if msg.Subject != "" {
		inner = append(inner, textElement(xml.Name{Local: "subject"}, msg.Subject))
	}
	if msg.Body != "" {
		inner = append(inner, textElement(xml.Name{Local: "body"}, msg.Body))
	}
	if msg.Thread != "" {
		inner = append(inner, textElement(xml.Name{Local: "thread"}, msg.Thread))
	}
	if len(msg.Params) > 0 {
		inner = append(inner, msg.Params.TokenReader())
	}
	if !msg.Delay.IsZero() {
		inner = append(inner, Delay(msg.Delay).TokenReader())
	}
	inner = append(inner, payloadReaders(msg.Payloads)...)
	if msg.Error != nil {
		inner = append(inner, msg.Error.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{
			Name: xml.Name{Local: "message"},
			Attr: header(msg.ID, msg.To, msg.From, msg.Lang, string(msg.Type)),
		},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (msg Message) WriteXML(w xmlstream.TokenWriter) (n int, err error) {
	return xmlstream.Copy(w, msg.TokenReader())
}
