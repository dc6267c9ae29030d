// Copyright 2015 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream

import (
	"encoding/xml"
	"fmt"
	"io"

	"mellium.im/chat/internal/ns"
)

// A list of stream errors defined in RFC 6120 §4.9.3 that the chat client
// either sends or handles.
var (
	BadFormat          = Error{Condition: "bad-format"}
	Conflict           = Error{Condition: "conflict"}
	ConnectionTimeout  = Error{Condition: "connection-timeout"}
	HostUnknown        = Error{Condition: "host-unknown"}
	InvalidNamespace   = Error{Condition: "invalid-namespace"}
	NotAuthorized      = Error{Condition: "not-authorized"}
	NotWellFormed      = Error{Condition: "not-well-formed"}
	PolicyViolation    = Error{Condition: "policy-violation"}
	RestrictedXML      = Error{Condition: "restricted-xml"}
	SystemShutdown     = Error{Condition: "system-shutdown"}
	UndefinedCondition = Error{Condition: "undefined-condition"}
	UnsupportedVersion = Error{Condition: "unsupported-version"}
)

// Error represents an unrecoverable stream-level error.
type Error struct {
	Condition string
	Text      string
}

// Error satisfies the builtin error interface and returns the name of the
// condition. For instance, given the error:
//
//	<stream:error>
//	  <restricted-xml xmlns="urn:ietf:params:xml:ns:xmpp-streams"/>
//	</stream:error>
//
// Error() would return "restricted-xml".
func (e Error) Error() string {
	if e.Text != "" {
		return e.Condition + ": " + e.Text
	}
	return e.Condition
}

// Is reports whether target is a stream error with the same condition.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Condition == e.Condition
}

// UnmarshalXML satisfies the xml.Unmarshaler interface.
func (e *Error) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	se := struct {
		Children []struct {
			XMLName xml.Name
			Text    string `xml:",chardata"`
		} `xml:",any"`
	}{}
	if err := d.DecodeElement(&se, &start); err != nil {
		return err
	}
	*e = Error{}
	for _, c := range se.Children {
		if c.XMLName.Space != ns.Streams {
			continue
		}
		if c.XMLName.Local == "text" {
			e.Text = c.Text
			continue
		}
		if e.Condition == "" {
			e.Condition = c.XMLName.Local
		}
	}
	if e.Condition == "" {
		e.Condition = UndefinedCondition.Condition
	}
	return nil
}

// WriteTo writes the error followed by the stream close tag to w.
func (e Error) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, `<stream:error><%s xmlns='%s'/>`, e.Condition, ns.Streams)
	if err != nil {
		return int64(n), err
	}
	total := int64(n)
	if e.Text != "" {
		n, err = fmt.Fprintf(w, `<text xmlns='%s'>`, ns.Streams)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if err = xml.EscapeText(w, []byte(e.Text)); err != nil {
			return total, err
		}
		total += int64(len(e.Text))
		n, err = io.WriteString(w, `</text>`)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	n, err = io.WriteString(w, `</stream:error>`+closeTag)
	return total + int64(n), err
}
