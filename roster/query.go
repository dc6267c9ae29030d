// Copyright 2018 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package roster

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// Namespaces used by this package provided as a convenience.
const (
	NS = "jabber:iq:roster"
)

// QueryName is the name of the roster query payload.
var QueryName = xml.Name{Space: NS, Local: "query"}

// Values of the subscription attribute on roster items.
const (
	SubNone   = "none"
	SubTo     = "to"
	SubFrom   = "from"
	SubBoth   = "both"
	SubRemove = "remove"
)

// Query represents a roster request, a roster result, or a roster push.
// The zero value is a valid query for the roster.
type Query struct {
	Ver   string `xml:"ver,attr,omitempty"`
	Items []Item `xml:"jabber:iq:roster item"`
}

// XMLName satisfies the stanza.Payload interface.
func (Query) XMLName() xml.Name { return QueryName }

// TokenReader returns a stream of XML tokens that match the query.
func (q Query) TokenReader() xml.TokenReader {
	var attrs []xml.Attr
	if q.Ver != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "ver"}, Value: q.Ver})
	}
	items := make([]xml.TokenReader, 0, len(q.Items))
	for _, item := range q.Items {
		items = append(items, item.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(items...),
		xml.StartElement{Name: QueryName, Attr: attrs},
	)
}

// FetchIQ returns a request for the whole roster.
func FetchIQ() stanza.IQ {
	return stanza.NewIQ(stanza.GetIQ, jid.JID{}, &Query{})
}

// RemoveIQ returns a roster push request that removes j from the roster.
func RemoveIQ(j jid.JID) stanza.IQ {
	return stanza.NewIQ(stanza.SetIQ, jid.JID{}, &Query{
		Items: []Item{{JID: j.Bare(), Subscription: SubRemove}},
	})
}

// Item represents a contact in the roster.
type Item struct {
	JID          jid.JID  `xml:"jid,attr,omitempty"`
	Name         string   `xml:"name,attr,omitempty"`
	Subscription string   `xml:"subscription,attr,omitempty"`
	Ask          string   `xml:"ask,attr,omitempty"`
	Groups       []string `xml:"jabber:iq:roster group"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (item Item) TokenReader() xml.TokenReader {
	var groups []xml.TokenReader
	for _, g := range item.Groups {
		groups = append(groups, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(g)),
			xml.StartElement{Name: xml.Name{Local: "group"}},
		))
	}

	var attrs []xml.Attr
	if j := item.JID.String(); j != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "jid"}, Value: j})
	}
	if item.Name != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "name"}, Value: item.Name})
	}
	if item.Subscription != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "subscription"}, Value: item.Subscription})
	}
	if item.Ask != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "ask"}, Value: item.Ask})
	}

	return xmlstream.Wrap(
		xmlstream.MultiReader(groups...),
		xml.StartElement{
			Name: xml.Name{Local: "item"},
			Attr: attrs,
		},
	)
}
