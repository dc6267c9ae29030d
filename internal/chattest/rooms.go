// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chattest

import (
	"sort"
	"strings"

	"golang.org/x/text/secure/precis"

	"mellium.im/chat/disco"
	"mellium.im/chat/jid"
	"mellium.im/chat/muc"
	"mellium.im/chat/ping"
	"mellium.im/chat/roster"
	"mellium.im/chat/stanza"
)

// fold returns the case mapped form of a room name.
// Rooms are stored and addressed in this form, whatever case the client uses.
func fold(name string) string {
	f, err := precis.UsernameCaseMapped.String(name)
	if err != nil {
		return strings.ToLower(name)
	}
	return f
}

// roomAddr returns to with the room name folded.
func (s *Server) roomAddr(to jid.JID) jid.JID {
	j, err := jid.New(fold(to.Localpart()), to.Domainpart(), to.Resourcepart())
	if err != nil {
		return to
	}
	return j
}

type room struct {
	addr         jid.JID
	locked       bool
	membersOnly  bool
	persistent   bool
	affiliations map[uint64]muc.Affiliation
	occupants    map[string]*client
}

func (r *room) nickOf(c *client) (string, bool) {
	for nick, o := range r.occupants {
		if o == c {
			return nick, true
		}
	}
	return "", false
}

func (r *room) affiliation(id uint64) muc.Affiliation {
	if a, ok := r.affiliations[id]; ok {
		return a
	}
	return muc.AffiliationNone
}

func (r *room) role(id uint64) muc.Role {
	if r.affiliation(id) == muc.AffiliationOwner {
		return muc.RoleModerator
	}
	return muc.RoleParticipant
}

func (r *room) occupant(nick string) jid.JID {
	j, _ := r.addr.WithResource(nick)
	return j
}

// Occupants returns the user ids of the occupants of the named room.
func (s *Server) Occupants(name string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[fold(name)]
	if !ok {
		return nil
	}
	var ids []uint64
	for _, o := range r.occupants {
		ids = append(ids, o.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RoomConfig reports the configuration of the named room.
func (s *Server) RoomConfig(name string) (membersOnly, persistent, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[fold(name)]
	if !ok {
		return false, false, false
	}
	return r.membersOnly, r.persistent, true
}

func (s *Server) presenceFor(r *room, nick string, o *client, to jid.JID, typ stanza.PresenceType, codes ...int) stanza.Presence {
	user := &muc.User{Items: []muc.Item{{
		Affiliation: r.affiliation(o.id),
		Role:        r.role(o.id),
		JID:         o.addr,
	}}}
	if typ == stanza.UnavailablePresence {
		user.Items[0].Role = muc.RoleNone
	}
	for _, code := range codes {
		user.Statuses = append(user.Statuses, muc.Status{Code: code})
	}
	return stanza.Presence{
		From:     r.occupant(nick),
		To:       to,
		Type:     typ,
		Payloads: []stanza.Payload{user},
	}
}

func (s *Server) roomError(c *client, p stanza.Presence, cond stanza.Condition) {
	c.send(stanza.Presence{
		From:  p.To,
		To:    c.addr,
		Type:  stanza.ErrorPresence,
		Error: &stanza.Error{Type: stanza.Cancel, Condition: cond},
	})
}

func (s *Server) roomPresence(c *client, p stanza.Presence) {
	name, nick := fold(p.To.Localpart()), p.To.Resourcepart()
	r := s.rooms[name]
	p.To = s.roomAddr(p.To)
	switch p.Type {
	case stanza.AvailablePresence:
		if name == "" || nick == "" {
			s.roomError(c, p, stanza.JIDMalformed)
			return
		}
		if r != nil {
			if o, ok := r.occupants[nick]; ok {
				if o != c {
					s.roomError(c, p, stanza.Conflict)
					return
				}
				// Presence update from an occupant.
				for _, t := range r.occupants {
					update := s.presenceFor(r, nick, c, t.addr, stanza.AvailablePresence)
					update.Show, update.Status, update.Params = p.Show, p.Status, p.Params
					t.send(update)
				}
				return
			}
		}
		var codes []int
		if r == nil {
			r = &room{
				addr:         p.To.Bare(),
				locked:       true,
				affiliations: map[uint64]muc.Affiliation{c.id: muc.AffiliationOwner},
				occupants:    make(map[string]*client),
			}
			s.rooms[name] = r
			codes = append(codes, muc.StatusCreated)
		} else {
			switch {
			case r.locked:
				s.roomError(c, p, stanza.ItemNotFound)
				return
			case r.membersOnly && r.affiliation(c.id) == muc.AffiliationNone:
				s.roomError(c, p, stanza.RegistrationRequired)
				return
			}
		}
		for n, o := range r.occupants {
			c.send(s.presenceFor(r, n, o, c.addr, stanza.AvailablePresence))
			o.send(s.presenceFor(r, nick, c, o.addr, stanza.AvailablePresence))
		}
		r.occupants[nick] = c
		c.send(s.presenceFor(r, nick, c, c.addr, stanza.AvailablePresence, append([]int{muc.StatusSelf}, codes...)...))
	case stanza.UnavailablePresence:
		if r == nil || r.occupants[nick] != c {
			return
		}
		s.leaveRoom(r, nick, c)
	}
}

func (s *Server) leaveRoom(r *room, nick string, c *client) {
	delete(r.occupants, nick)
	for _, o := range r.occupants {
		o.send(s.presenceFor(r, nick, c, o.addr, stanza.UnavailablePresence))
	}
	c.send(s.presenceFor(r, nick, c, c.addr, stanza.UnavailablePresence, muc.StatusSelf))
	if len(r.occupants) == 0 && !r.persistent {
		delete(s.rooms, r.addr.Localpart())
	}
}

func (s *Server) roomMessage(c *client, m stanza.Message) {
	r := s.rooms[fold(m.To.Localpart())]
	var nick string
	var joined bool
	if r != nil {
		nick, joined = r.nickOf(c)
	}
	if !joined {
		if m.Type != stanza.ErrorMessage {
			reply := m.ErrorReply(stanza.Error{Type: stanza.Modify, Condition: stanza.NotAcceptable})
			reply.From = m.To
			c.send(reply)
		}
		return
	}
	m.From = r.occupant(nick)
	if m.Type == stanza.GroupChatMessage {
		for _, o := range r.occupants {
			m.To = o.addr
			o.send(m)
		}
		return
	}
	if o, ok := r.occupants[m.To.Resourcepart()]; ok {
		m.To = o.addr
		o.send(m)
	}
}

func (s *Server) roomIQ(c *client, iq stanza.IQ) {
	if !iq.IsRequest() {
		return
	}
	fail := func(cond stanza.Condition) {
		c.send(iq.ErrorReply(stanza.Error{Type: stanza.Cancel, Condition: cond}))
	}
	if iq.To.Localpart() == "" {
		if _, ok := iq.Payload.(*disco.Items); !ok || iq.Type != stanza.GetIQ {
			fail(stanza.ServiceUnavailable)
			return
		}
		items := &disco.Items{}
		names := make([]string, 0, len(s.rooms))
		for name := range s.rooms {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r := s.rooms[name]
			if r.locked {
				continue
			}
			items.Items = append(items.Items, disco.Item{JID: r.addr, Name: name})
		}
		c.send(iq.Result(items))
		return
	}

	r, ok := s.rooms[fold(iq.To.Localpart())]
	if !ok {
		fail(stanza.ItemNotFound)
		return
	}
	iq.To = r.addr
	owner := r.affiliation(c.id) == muc.AffiliationOwner
	switch payload := iq.Payload.(type) {
	case *muc.Owner:
		switch {
		case iq.Type != stanza.SetIQ:
			fail(stanza.FeatureNotImplemented)
		case !owner && !(payload.Destroy != nil && r.membersOnly && r.affiliation(c.id) == muc.AffiliationMember):
			fail(stanza.Forbidden)
		case payload.Destroy != nil:
			for nick, o := range r.occupants {
				p := s.presenceFor(r, nick, o, o.addr, stanza.UnavailablePresence)
				user := p.Payloads[0].(*muc.User)
				user.Items[0].Affiliation = muc.AffiliationNone
				user.Destroy = &muc.Destroy{Reason: payload.Destroy.Reason}
				o.send(p)
			}
			delete(s.rooms, r.addr.Localpart())
			c.send(iq.Result(nil))
		case payload.Form != nil:
			r.membersOnly = payload.Form.GetBool(muc.ConfigMembersOnly)
			r.persistent = payload.Form.GetBool(muc.ConfigPersistent)
			r.locked = false
			c.send(iq.Result(nil))
		default:
			fail(stanza.BadRequest)
		}
	case *muc.Admin:
		switch {
		case iq.Type == stanza.GetIQ:
			want := muc.AffiliationMember
			if len(payload.Items) > 0 && payload.Items[0].Affiliation != "" {
				want = payload.Items[0].Affiliation
			}
			ids := make([]uint64, 0, len(r.affiliations))
			for id, a := range r.affiliations {
				if a == want {
					ids = append(ids, id)
				}
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			res := &muc.Admin{}
			for _, id := range ids {
				j, _ := jid.User(id, s.domain.String())
				res.Items = append(res.Items, muc.Item{Affiliation: want, JID: j})
			}
			c.send(iq.Result(res))
		case !owner:
			fail(stanza.Forbidden)
		default:
			for _, item := range payload.Items {
				id, err := item.JID.UserID()
				if err != nil {
					fail(stanza.JIDMalformed)
					return
				}
				if item.Affiliation == muc.AffiliationNone {
					delete(r.affiliations, id)
					continue
				}
				r.affiliations[id] = item.Affiliation
			}
			c.send(iq.Result(nil))
		}
	case *disco.Info:
		info := &disco.Info{
			Identities: []disco.Identity{{Category: "conference", Type: "text", Name: r.addr.Localpart()}},
			Features:   []disco.Feature{{Var: muc.NS}},
		}
		if r.membersOnly {
			info.Features = append(info.Features, disco.Feature{Var: muc.FeatureMembersOnly})
		}
		if r.persistent {
			info.Features = append(info.Features, disco.Feature{Var: muc.FeaturePersistent})
		}
		c.send(iq.Result(info))
	case *disco.Items:
		nicks := make([]string, 0, len(r.occupants))
		for nick := range r.occupants {
			nicks = append(nicks, nick)
		}
		sort.Strings(nicks)
		items := &disco.Items{}
		for _, nick := range nicks {
			items.Items = append(items.Items, disco.Item{JID: r.occupant(nick), Name: nick})
		}
		c.send(iq.Result(items))
	default:
		fail(stanza.ServiceUnavailable)
	}
}

// serverIQ answers requests addressed to the server or the account.
func (s *Server) serverIQ(c *client, iq stanza.IQ) {
	if !iq.IsRequest() {
		return
	}
	if ping.Is(iq) {
		c.send(iq.Result(nil))
		return
	}
	q, ok := iq.Payload.(*roster.Query)
	if !ok {
		c.send(iq.ErrorReply(stanza.Error{Type: stanza.Cancel, Condition: stanza.ServiceUnavailable}))
		return
	}
	acct := s.users[c.id]
	if iq.Type == stanza.SetIQ {
		for _, item := range q.Items {
			id, err := item.JID.UserID()
			if err != nil {
				continue
			}
			if item.Subscription == roster.SubRemove {
				delete(acct.contacts, id)
				if peer := s.users[id]; peer != nil {
					if sub, ok := peer.contacts[c.id]; ok {
						sub.to, sub.from, sub.ask = false, false, false
					}
				}
			}
		}
		c.send(iq.Result(nil))
		return
	}

	ids := make([]uint64, 0, len(acct.contacts))
	for id := range acct.contacts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	res := &roster.Query{}
	for _, id := range ids {
		sub := acct.contacts[id]
		item := roster.Item{Subscription: roster.SubNone}
		item.JID, _ = jid.User(id, s.domain.String())
		switch {
		case sub.to && sub.from:
			item.Subscription = roster.SubBoth
		case sub.to:
			item.Subscription = roster.SubTo
		case sub.from:
			item.Subscription = roster.SubFrom
		}
		if sub.ask {
			item.Ask = "subscribe"
		}
		res.Items = append(res.Items, item)
	}
	c.send(iq.Result(res))
}
