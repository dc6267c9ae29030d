// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package attr contains helpers for building and inspecting XML attribute
// lists and for generating stanza identifiers.
package attr // import "mellium.im/chat/internal/attr"

import (
	"encoding/xml"
)

// Get returns the value of the first attribute with the provided local name
// from a list of attributes or an empty string if no such attribute exists.
func Get(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// Append adds an attribute with the given local name to attrs unless value is
// empty.
func Append(attrs []xml.Attr, local, value string) []xml.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}

// Set replaces the value of the first attribute with the provided local name
// or appends a new attribute if none exists.
func Set(attrs []xml.Attr, local, value string) []xml.Attr {
	for i, a := range attrs {
		if a.Name.Local == local {
			attrs[i].Value = value
			return attrs
		}
	}
	return append(attrs, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}
