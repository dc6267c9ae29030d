// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/chat/jid"
)

// IQType is the type of an IQ stanza.
// It should normally be one of the constants defined in this package.
type IQType string

const (
	// GetIQ is used to query another entity for information.
	GetIQ IQType = "get"

	// SetIQ is used to provide data to another entity, set new values, and
	// replace existing values.
	SetIQ IQType = "set"

	// ResultIQ is sent in response to a successful get or set IQ.
	ResultIQ IQType = "result"

	// ErrorIQ is sent to report that an error occurred during the delivery or
	// processing of a get or set IQ.
	ErrorIQ IQType = "error"
)

// IQ is an info/query stanza.
// An IQ request carries exactly one payload, a result carries zero or one.
type IQ struct {
	ID      string
	To      jid.JID
	From    jid.JID
	Lang    string
	Type    IQType
	Payload Payload
	Error   *Error
}

// NewIQ returns a request of the given type carrying payload.
// The ID is assigned by the session when the IQ is sent.
func NewIQ(typ IQType, to jid.JID, payload Payload) IQ {
	return IQ{To: to, Type: typ, Payload: payload}
}

// Kind satisfies the Stanza interface.
func (IQ) Kind() string { return "iq" }

// IsRequest reports whether the IQ is a get or set.
func (iq IQ) IsRequest() bool {
	return iq.Type == GetIQ || iq.Type == SetIQ
}

// Result returns a result IQ in response to iq carrying payload.
// The payload may be nil.
func (iq IQ) Result(payload Payload) IQ {
	return IQ{
		ID:      iq.ID,
		To:      iq.From,
		From:    iq.To,
		Type:    ResultIQ,
		Payload: payload,
	}
}

// ErrorReply returns an error IQ in response to iq.
func (iq IQ) ErrorReply(e Error) IQ {
	return IQ{
		ID:    iq.ID,
		To:    iq.From,
		From:  iq.To,
		Type:  ErrorIQ,
		Error: &e,
	}
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (iq IQ) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if iq.Payload != nil {
		inner = append(inner, iq.Payload.TokenReader())
	}
	if iq.Error != nil {
		inner = append(inner, iq.Error.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{
			Name: xml.Name{Local: "iq"},
			Attr: header(iq.ID, iq.To, iq.From, iq.Lang, string(iq.Type)),
		},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (iq IQ) WriteXML(w xmlstream.TokenWriter) (n int, err error) {
	return xmlstream.Copy(w, iq.TokenReader())
}
