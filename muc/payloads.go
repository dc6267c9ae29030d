// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"encoding/xml"
	"strconv"

	"mellium.im/xmlstream"

	"mellium.im/chat/form"
	"mellium.im/chat/jid"
)

func optionalString(s string, name xml.Name) xml.TokenReader {
	if s == "" {
		return nil
	}
	return xmlstream.Wrap(
		xmlstream.Token(xml.CharData(s)),
		xml.StartElement{Name: name},
	)
}

func readers(r ...xml.TokenReader) []xml.TokenReader {
	out := r[:0]
	for _, t := range r {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Join is attached to the presence that enters a room.
type Join struct {
	Password string `xml:"password,omitempty"`
}

// XMLName satisfies the stanza.Payload interface.
func (Join) XMLName() xml.Name { return JoinName }

// TokenReader satisfies the xmlstream.Marshaler interface.
func (j Join) TokenReader() xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.MultiReader(readers(optionalString(j.Password, xml.Name{Local: "password"}))...),
		xml.StartElement{Name: JoinName},
	)
}

// Item describes an occupant or an affiliated user.
type Item struct {
	Affiliation Affiliation `xml:"affiliation,attr,omitempty"`
	Role        Role        `xml:"role,attr,omitempty"`
	JID         jid.JID     `xml:"jid,attr,omitempty"`
	Nick        string      `xml:"nick,attr,omitempty"`
	Reason      string      `xml:"reason,omitempty"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (i Item) TokenReader() xml.TokenReader {
	start := xml.StartElement{Name: xml.Name{Local: "item"}}
	if i.Affiliation != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "affiliation"}, Value: string(i.Affiliation)})
	}
	if i.Role != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "role"}, Value: string(i.Role)})
	}
	if !i.JID.IsZero() {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "jid"}, Value: i.JID.String()})
	}
	if i.Nick != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "nick"}, Value: i.Nick})
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(readers(optionalString(i.Reason, xml.Name{Local: "reason"}))...),
		start,
	)
}

// Status is a status code attached to a room presence.
type Status struct {
	Code int `xml:"code,attr"`
}

// Destroy is sent by an owner to destroy a room and relayed by the room to
// every occupant.
type Destroy struct {
	JID    jid.JID `xml:"jid,attr,omitempty"`
	Reason string  `xml:"reason,omitempty"`
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (d Destroy) TokenReader() xml.TokenReader {
	start := xml.StartElement{Name: xml.Name{Local: "destroy"}}
	if !d.JID.IsZero() {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "jid"}, Value: d.JID.String()})
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(readers(optionalString(d.Reason, xml.Name{Local: "reason"}))...),
		start,
	)
}

// User is the muc#user payload carried by presences from a room.
type User struct {
	Items    []Item   `xml:"item"`
	Statuses []Status `xml:"status"`
	Destroy  *Destroy `xml:"destroy"`
}

// XMLName satisfies the stanza.Payload interface.
func (User) XMLName() xml.Name { return UserName }

// HasStatus reports whether the payload carries the given status code.
func (u User) HasStatus(code int) bool {
	for _, s := range u.Statuses {
		if s.Code == code {
			return true
		}
	}
	return false
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (u User) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	for _, i := range u.Items {
		inner = append(inner, i.TokenReader())
	}
	for _, s := range u.Statuses {
		inner = append(inner, xmlstream.Wrap(nil, xml.StartElement{
			Name: xml.Name{Local: "status"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "code"}, Value: strconv.Itoa(s.Code)}},
		}))
	}
	if u.Destroy != nil {
		inner = append(inner, u.Destroy.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), xml.StartElement{Name: UserName})
}

// Admin is the muc#admin query used to list and change affiliations.
type Admin struct {
	Items []Item `xml:"item"`
}

// XMLName satisfies the stanza.Payload interface.
func (Admin) XMLName() xml.Name { return AdminName }

// TokenReader satisfies the xmlstream.Marshaler interface.
func (a Admin) TokenReader() xml.TokenReader {
	inner := make([]xml.TokenReader, 0, len(a.Items))
	for _, i := range a.Items {
		inner = append(inner, i.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), xml.StartElement{Name: AdminName})
}

// Owner is the muc#owner query used to configure and destroy rooms.
type Owner struct {
	Form    *form.Data `xml:"jabber:x:data x"`
	Destroy *Destroy   `xml:"destroy"`
}

// XMLName satisfies the stanza.Payload interface.
func (Owner) XMLName() xml.Name { return OwnerName }

// TokenReader satisfies the xmlstream.Marshaler interface.
func (o Owner) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if o.Form != nil {
		inner = append(inner, o.Form.TokenReader())
	}
	if o.Destroy != nil {
		inner = append(inner, o.Destroy.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), xml.StartElement{Name: OwnerName})
}

// ConfigForm returns the room configuration submission for the given flags.
func ConfigForm(membersOnly, persistent bool) *form.Data {
	f := form.Submit(NSRoomConfig,
		form.Bool(ConfigMembersOnly, membersOnly),
		form.Bool(ConfigPersistent, persistent),
	)
	return &f
}
