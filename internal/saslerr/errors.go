// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package saslerr provides the SASL failure conditions of RFC 6120 §6.5.
package saslerr // import "mellium.im/chat/internal/saslerr"

import (
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/text/language"

	"mellium.im/chat/internal/ns"
)

// Condition is the reason for a SASL failure.
type Condition string

// Known SASL failure conditions.
const (
	None                 Condition = ""
	Aborted              Condition = "aborted"
	AccountDisabled      Condition = "account-disabled"
	CredentialsExpired   Condition = "credentials-expired"
	EncryptionRequired   Condition = "encryption-required"
	IncorrectEncoding    Condition = "incorrect-encoding"
	InvalidAuthzID       Condition = "invalid-authzid"
	InvalidMechanism     Condition = "invalid-mechanism"
	MalformedRequest     Condition = "malformed-request"
	MechanismTooWeak     Condition = "mechanism-too-weak"
	NotAuthorized        Condition = "not-authorized"
	TemporaryAuthFailure Condition = "temporary-auth-failure"
)

// Failure is a SASL failure sent by the server.
type Failure struct {
	Condition Condition
	Lang      language.Tag
	Text      string
}

// Error satisfies the error interface.
// It returns the text if present or the condition.
func (f Failure) Error() string {
	if f.Text != "" {
		return f.Text
	}
	return string(f.Condition)
}

// Is reports whether target is a Failure with the same condition.
func (f Failure) Is(target error) bool {
	t, ok := target.(Failure)
	return ok && t.Condition == f.Condition
}

// WriteTo writes the failure element to w.
func (f Failure) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, `<failure xmlns='%s'>`, ns.SASL)
	total := int64(n)
	if err != nil {
		return total, err
	}
	if f.Condition != None {
		n, err = fmt.Fprintf(w, `<%s/>`, f.Condition)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	if f.Text != "" {
		n, err = fmt.Fprintf(w, `<text xml:lang='%s'>`, f.Lang)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if err = xml.EscapeText(w, []byte(f.Text)); err != nil {
			return total, err
		}
		total += int64(len(f.Text))
		n, err = io.WriteString(w, `</text>`)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	n, err = io.WriteString(w, `</failure>`)
	return total + int64(n), err
}

// UnmarshalXML satisfies the xml.Unmarshaler interface.
// If several texts are present the one best matching f.Lang is kept.
func (f *Failure) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	decoded := struct {
		Children []struct {
			XMLName xml.Name
			Lang    string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
			Data    string `xml:",chardata"`
		} `xml:",any"`
	}{}
	if err := d.DecodeElement(&decoded, &start); err != nil {
		return err
	}
	f.Condition = None
	var tags []language.Tag
	texts := make(map[language.Tag]string)
	for _, c := range decoded.Children {
		if c.XMLName.Local != "text" {
			if f.Condition == None {
				f.Condition = Condition(c.XMLName.Local)
			}
			continue
		}
		tag, err := language.Parse(c.Lang)
		if err != nil {
			tag = language.Und
		}
		tags = append(tags, tag)
		texts[tag] = c.Data
	}
	f.Text = ""
	if len(tags) > 0 {
		_, idx, _ := language.NewMatcher(tags).Match(f.Lang)
		f.Lang = tags[idx]
		f.Text = texts[f.Lang]
	}
	return nil
}
