// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package disco implements the service discovery payloads (XEP-0030) used to
// list rooms, describe a room, and list its occupants.
package disco // import "mellium.im/chat/disco"

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"mellium.im/chat/form"
	"mellium.im/chat/jid"
)

// Namespaces used by this package.
const (
	NSInfo  = `http://jabber.org/protocol/disco#info`
	NSItems = `http://jabber.org/protocol/disco#items`
)

// Names of the query payloads.
var (
	InfoName  = xml.Name{Space: NSInfo, Local: "query"}
	ItemsName = xml.Name{Space: NSItems, Local: "query"}
)

// Identity is the type and category of a node on the network.
type Identity struct {
	Category string `xml:"category,attr"`
	Type     string `xml:"type,attr"`
	Name     string `xml:"name,attr,omitempty"`
}

// TokenReader implements xmlstream.Marshaler.
func (i Identity) TokenReader() xml.TokenReader {
	start := xml.StartElement{
		Name: xml.Name{Local: "identity"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "category"}, Value: i.Category},
			{Name: xml.Name{Local: "type"}, Value: i.Type},
		},
	}
	if i.Name != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "name"}, Value: i.Name})
	}
	return xmlstream.Wrap(nil, start)
}

// Feature is a protocol feature advertised by an entity.
type Feature struct {
	Var string `xml:"var,attr"`
}

// TokenReader implements xmlstream.Marshaler.
func (f Feature) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Local: "feature"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "var"}, Value: f.Var}},
	})
}

// Info is a disco#info query or response.
// A request carries nothing but the optional node.
type Info struct {
	Node       string      `xml:"node,attr,omitempty"`
	Identities []Identity  `xml:"http://jabber.org/protocol/disco#info identity"`
	Features   []Feature   `xml:"http://jabber.org/protocol/disco#info feature"`
	Forms      []form.Data `xml:"jabber:x:data x"`
}

// XMLName satisfies the stanza.Payload interface.
func (Info) XMLName() xml.Name { return InfoName }

// HasFeature reports whether the response advertises the feature v.
func (info Info) HasFeature(v string) bool {
	for _, f := range info.Features {
		if f.Var == v {
			return true
		}
	}
	return false
}

// Form returns the extended information form with the given FORM_TYPE.
func (info Info) Form(formType string) (form.Data, bool) {
	for _, f := range info.Forms {
		if t, _ := f.Get(form.FormType); t == formType {
			return f, true
		}
	}
	return form.Data{}, false
}

// TokenReader implements xmlstream.Marshaler.
func (info Info) TokenReader() xml.TokenReader {
	start := xml.StartElement{Name: InfoName}
	if info.Node != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "node"}, Value: info.Node})
	}
	var inner []xml.TokenReader
	for _, i := range info.Identities {
		inner = append(inner, i.TokenReader())
	}
	for _, f := range info.Features {
		inner = append(inner, f.TokenReader())
	}
	for _, f := range info.Forms {
		inner = append(inner, f.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), start)
}

// WriteXML implements xmlstream.WriterTo.
func (info Info) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, info.TokenReader())
}

// Item represents a discovered item such as a room or a room occupant.
type Item struct {
	JID  jid.JID `xml:"jid,attr"`
	Name string  `xml:"name,attr,omitempty"`
	Node string  `xml:"node,attr,omitempty"`
}

// TokenReader implements xmlstream.Marshaler.
func (i Item) TokenReader() xml.TokenReader {
	start := xml.StartElement{
		Name: xml.Name{Local: "item"},
		Attr: []xml.Attr{{
			Name:  xml.Name{Local: "jid"},
			Value: i.JID.String(),
		}},
	}
	if i.Node != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "node"}, Value: i.Node})
	}
	if i.Name != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "name"}, Value: i.Name})
	}
	return xmlstream.Wrap(nil, start)
}

// Items is a disco#items query or response.
type Items struct {
	Node  string `xml:"node,attr,omitempty"`
	Items []Item `xml:"http://jabber.org/protocol/disco#items item"`
}

// XMLName satisfies the stanza.Payload interface.
func (Items) XMLName() xml.Name { return ItemsName }

// TokenReader implements xmlstream.Marshaler.
func (items Items) TokenReader() xml.TokenReader {
	start := xml.StartElement{Name: ItemsName}
	if items.Node != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "node"}, Value: items.Node})
	}
	inner := make([]xml.TokenReader, 0, len(items.Items))
	for _, i := range items.Items {
		inner = append(inner, i.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), start)
}

// WriteXML implements xmlstream.WriterTo.
func (items Items) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, items.TokenReader())
}
