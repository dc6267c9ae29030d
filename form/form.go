// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package form implements the subset of data forms (XEP-0004) used to
// configure rooms and describe them.
package form // import "mellium.im/chat/form"

import (
	"encoding/xml"
	"strconv"

	"mellium.im/xmlstream"
)

// NS is the data forms namespace.
const NS = "jabber:x:data"

// Form types.
const (
	TypeForm   = "form"
	TypeSubmit = "submit"
	TypeCancel = "cancel"
	TypeResult = "result"
)

// FormType is the name of the hidden field that identifies the kind of form.
const FormType = "FORM_TYPE"

// Field is a single field of a form.
type Field struct {
	Var    string   `xml:"var,attr,omitempty"`
	Type   string   `xml:"type,attr,omitempty"`
	Label  string   `xml:"label,attr,omitempty"`
	Values []string `xml:"jabber:x:data value"`
}

// TokenReader implements xmlstream.Marshaler for Field.
func (f Field) TokenReader() xml.TokenReader {
	start := xml.StartElement{Name: xml.Name{Local: "field"}}
	if f.Var != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "var"}, Value: f.Var})
	}
	if f.Type != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: f.Type})
	}
	if f.Label != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "label"}, Value: f.Label})
	}
	var inner []xml.TokenReader
	for _, v := range f.Values {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(v)),
			xml.StartElement{Name: xml.Name{Local: "value"}},
		))
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), start)
}

// Data represents a data form.
type Data struct {
	Type   string  `xml:"type,attr"`
	Title  string  `xml:"jabber:x:data title,omitempty"`
	Fields []Field `xml:"jabber:x:data field"`
}

// Submit returns a filled out form of the given FORM_TYPE.
func Submit(formType string, fields ...Field) Data {
	return Data{
		Type: TypeSubmit,
		Fields: append([]Field{{
			Var:    FormType,
			Type:   "hidden",
			Values: []string{formType},
		}}, fields...),
	}
}

// Bool returns a boolean field.
func Bool(name string, v bool) Field {
	return Field{Var: name, Values: []string{strconv.FormatBool(v)}}
}

// Text returns a single line text field.
func Text(name, v string) Field {
	return Field{Var: name, Values: []string{v}}
}

// Get returns the first value of the named field.
func (d Data) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Var == name {
			if len(f.Values) == 0 {
				return "", true
			}
			return f.Values[0], true
		}
	}
	return "", false
}

// GetBool returns the value of the named boolean field.
// Missing or unparsable fields are false.
func (d Data) GetBool(name string) bool {
	v, _ := d.Get(name)
	b, _ := strconv.ParseBool(v)
	return b
}

// Values returns the form as a map of field names to their first value.
func (d Data) Values() map[string]string {
	m := make(map[string]string, len(d.Fields))
	for _, f := range d.Fields {
		if f.Var == "" {
			continue
		}
		var v string
		if len(f.Values) > 0 {
			v = f.Values[0]
		}
		m[f.Var] = v
	}
	return m
}

// TokenReader implements xmlstream.Marshaler for Data.
func (d Data) TokenReader() xml.TokenReader {
	start := xml.StartElement{
		Name: xml.Name{Space: NS, Local: "x"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: d.Type}},
	}
	var child []xml.TokenReader
	if d.Title != "" {
		child = append(child, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(d.Title)),
			xml.StartElement{Name: xml.Name{Local: "title"}},
		))
	}
	for _, f := range d.Fields {
		child = append(child, f.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(child...), start)
}

// WriteXML implements xmlstream.WriterTo for Data.
func (d Data) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, d.TokenReader())
}
