// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"errors"

	"mellium.im/xmlstream"

	"mellium.im/chat/internal/ns"
	"mellium.im/chat/jid"
)

// ErrorType is the type of an stanza error payloads.
// It should normally be one of the constants defined in this package.
type ErrorType string

const (
	// Cancel indicates that the error cannot be remedied and the operation should
	// not be retried.
	Cancel ErrorType = "cancel"

	// Auth indicates that an operation should be retried after providing
	// credentials.
	Auth ErrorType = "auth"

	// Continue indicates that the operation can proceed (the condition was only a
	// warning).
	Continue ErrorType = "continue"

	// Modify indicates that the operation can be retried after changing the data
	// sent.
	Modify ErrorType = "modify"

	// Wait is indicates that an error is temporary and may be retried.
	Wait ErrorType = "wait"
)

// Condition represents a more specific stanza error condition that can be
// encapsulated by an <error/> element.
type Condition string

// A list of stanza error conditions defined in RFC 6120 §8.3.3
const (
	BadRequest            Condition = "bad-request"
	Conflict              Condition = "conflict"
	FeatureNotImplemented Condition = "feature-not-implemented"
	Forbidden             Condition = "forbidden"
	Gone                  Condition = "gone"
	InternalServerError   Condition = "internal-server-error"
	ItemNotFound          Condition = "item-not-found"
	JIDMalformed          Condition = "jid-malformed"
	NotAcceptable         Condition = "not-acceptable"
	NotAllowed            Condition = "not-allowed"
	NotAuthorized         Condition = "not-authorized"
	PolicyViolation       Condition = "policy-violation"
	RecipientUnavailable  Condition = "recipient-unavailable"
	Redirect              Condition = "redirect"

	// RegistrationRequired is returned by members-only rooms when the user is
	// not on the member list.
	RegistrationRequired Condition = "registration-required"
	RemoteServerNotFound Condition = "remote-server-not-found"
	RemoteServerTimeout  Condition = "remote-server-timeout"

	// ResourceConstraint is used by the video chat signaling to indicate that
	// the peer has no free line and is busy.
	ResourceConstraint   Condition = "resource-constraint"
	ServiceUnavailable   Condition = "service-unavailable"
	SubscriptionRequired Condition = "subscription-required"
	UndefinedCondition   Condition = "undefined-condition"
	UnexpectedRequest    Condition = "unexpected-request"
)

// Error is an implementation of error intended to be marshalable and
// unmarshalable as XML.
type Error struct {
	By        jid.JID
	Type      ErrorType
	Condition Condition
	Text      string
}

// Error satisfies the error interface by returning the condition.
func (se Error) Error() string {
	if se.Text != "" {
		return string(se.Condition) + ": " + se.Text
	}
	return string(se.Condition)
}

// Is reports whether target is a stanza error with the same condition.
// An error with an empty condition matches any stanza error.
func (se Error) Is(target error) bool {
	var other Error
	switch t := target.(type) {
	case Error:
		other = t
	case *Error:
		if t == nil {
			return false
		}
		other = *t
	default:
		return false
	}
	return other.Condition == "" || other.Condition == se.Condition
}

// AsError unwraps err looking for a stanza error.
func AsError(err error) (Error, bool) {
	var se Error
	if errors.As(err, &se) {
		return se, true
	}
	var sep *Error
	if errors.As(err, &sep) && sep != nil {
		return *sep, true
	}
	return Error{}, false
}

// TokenReader satisfies the xmlstream.Marshaler interface for Error.
func (se Error) TokenReader() xml.TokenReader {
	start := xml.StartElement{
		Name: xml.Name{Local: "error"},
	}
	if se.Type != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: string(se.Type)})
	}
	if !se.By.IsZero() {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "by"}, Value: se.By.String()})
	}

	inner := []xml.TokenReader{
		xmlstream.Wrap(nil, xml.StartElement{
			Name: xml.Name{Space: ns.Stanza, Local: string(se.Condition)},
		}),
	}
	if se.Text != "" {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(se.Text)),
			xml.StartElement{Name: xml.Name{Space: ns.Stanza, Local: "text"}},
		))
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), start)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (se Error) WriteXML(w xmlstream.TokenWriter) (n int, err error) {
	return xmlstream.Copy(w, se.TokenReader())
}

// MarshalXML satisfies the xml.Marshaler interface for Error.
func (se Error) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	_, err := se.WriteXML(e)
	return err
}

// UnmarshalXML satisfies the xml.Unmarshaler interface for Error.
func (se *Error) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	decoded := struct {
		Conditions []struct {
			XMLName xml.Name
		} `xml:",any"`
		Type ErrorType `xml:"type,attr"`
		By   jid.JID   `xml:"by,attr"`
		Text string    `xml:"urn:ietf:params:xml:ns:xmpp-stanzas text"`
	}{}
	if err := d.DecodeElement(&decoded, &start); err != nil {
		return err
	}
	se.Type = decoded.Type
	se.By = decoded.By
	se.Text = decoded.Text
	se.Condition = ""
	for _, c := range decoded.Conditions {
		if c.XMLName.Space == ns.Stanza && c.XMLName.Local != "text" {
			se.Condition = Condition(c.XMLName.Local)
			break
		}
	}
	return nil
}
