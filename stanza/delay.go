// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"
	"errors"
	"time"

	"mellium.im/xmlstream"

	"mellium.im/chat/internal/ns"
)

// DelayName is the name of the element that marks delayed delivery
// (XEP-0203).
var DelayName = xml.Name{Space: ns.Delay, Local: "delay"}

// Delay is the time at which a message was originally sent when the server
// delivers it late, for example room history replayed on join.
type Delay time.Time

// TokenReader satisfies the xmlstream.Marshaler interface.
func (d Delay) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: DelayName,
		Attr: []xml.Attr{{
			Name:  xml.Name{Local: "stamp"},
			Value: time.Time(d).UTC().Format(time.RFC3339Nano),
		}},
	})
}

// ParseDelay parses the stamp attribute of a delay element.
func ParseDelay(start xml.StartElement) (time.Time, error) {
	for _, a := range start.Attr {
		if a.Name.Local == "stamp" {
			return time.Parse(time.RFC3339Nano, a.Value)
		}
	}
	return time.Time{}, errNoStamp
}

var errNoStamp = errors.New("stanza: delay element has no stamp")
