// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/secure/precis"

	"mellium.im/chat/disco"
	"mellium.im/chat/jid"
	"mellium.im/chat/stanza"
)

// Errors returned by the Engine for requests that are rejected locally.
var (
	ErrBadRequest   = errors.New("muc: invalid room name or parameter")
	ErrForbidden    = errors.New("muc: operation requires ownership of the room")
	ErrInvalidState = errors.New("muc: operation is not valid in the current room state")
	ErrNotFound     = errors.New("muc: room is not known")
)

// Sender is the subset of the session used by the engine to emit stanzas.
type Sender interface {
	Send(stanza.Stanza) error
	SendIQ(iq stanza.IQ, f func(stanza.IQ, error)) error
}

// Room is a snapshot of the state of a room.
type Room struct {
	Name        string
	JID         jid.JID
	MembersOnly bool
	Persistent  bool
	Standing    Standing
	State       State
	Members     []uint64
	Online      []uint64
}

// Info is the description of a room returned by the service.
type Info struct {
	Title       string
	MembersOnly bool
	Persistent  bool
	Features    []string
	Fields      map[string]string
}

// Summary is an entry of the list of rooms hosted by the service.
type Summary struct {
	Name string
	JID  jid.JID
}

type room struct {
	Room

	// configure is set while a newly created room waits for its
	// configuration to be accepted.
	configure     bool
	membersLoaded bool
	online        map[string]uint64
}

func (r *room) snapshot() Room {
	s := r.Room
	s.Members = append([]uint64(nil), r.Members...)
	s.Online = make([]uint64, 0, len(r.online))
	for _, id := range r.online {
		s.Online = append(s.Online, id)
	}
	sort.Slice(s.Online, func(i, j int) bool { return s.Online[i] < s.Online[j] })
	return s
}

// Engine tracks the rooms of the local user.
// It is not safe for concurrent use.
// The callback fields may be nil.
type Engine struct {
	OnEnter        func(Room)
	OnEnterFailed  func(Room, error)
	OnLeave        func(Room)
	OnDestroy      func(Room)
	OnMessage      func(Room, stanza.Message)
	OnInfo         func(Room, Info)
	OnUsers        func(Room, []uint64)
	OnOnlineUsers  func(Room, []uint64)
	OnRooms        func([]Summary)
	OnRequestError func(op string, r Room, err error)

	sender     Sender
	domain     string
	userDomain string
	nick       string
	self       uint64
	logger     *slog.Logger
	rooms      map[string]*room
}

// New returns an engine for rooms hosted on the conference domain.
// The local user, identified by its address on the chat domain, joins every
// room with its user id as the nickname.
func New(s Sender, self jid.JID, conferenceDomain string, logger *slog.Logger) (*Engine, error) {
	id, err := self.UserID()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		sender:     s,
		domain:     conferenceDomain,
		userDomain: self.Domainpart(),
		self:       id,
		nick:       strconv.FormatUint(id, 10),
		logger:     logger,
		rooms:      make(map[string]*room),
	}, nil
}

// Domain returns the conference domain.
func (e *Engine) Domain() string {
	return e.domain
}

// Room returns a snapshot of the room with the given name.
// The name is normalized before it is looked up.
func (e *Engine) Room(name string) (Room, bool) {
	r, err := e.lookup(name)
	if err != nil {
		return Room{}, false
	}
	return r.snapshot(), true
}

// Rooms returns snapshots of every known room ordered by name.
func (e *Engine) Rooms() []Room {
	list := make([]Room, 0, len(e.rooms))
	for _, r := range e.rooms {
		list = append(list, r.snapshot())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// key returns the case mapped form of a room localpart.
// Rooms are stored and matched under this form.
func key(localpart string) string {
	k, err := precis.UsernameCaseMapped.String(localpart)
	if err != nil {
		return strings.ToLower(localpart)
	}
	return k
}

// address normalizes name and returns the address of the room.
// The case of the localpart is preserved.
func (e *Engine) address(name string) (jid.JID, error) {
	n := Normalize(name)
	if n == "" {
		return jid.JID{}, ErrBadRequest
	}
	addr, err := jid.New(n, e.domain, "")
	if err != nil {
		return jid.JID{}, ErrBadRequest
	}
	return addr, nil
}

func (e *Engine) lookup(name string) (*room, error) {
	addr, err := e.address(name)
	if err != nil {
		return nil, err
	}
	r, ok := e.rooms[key(addr.Localpart())]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (e *Engine) allocate(name string) (*room, error) {
	addr, err := e.address(name)
	if err != nil {
		return nil, err
	}
	if r, ok := e.rooms[key(addr.Localpart())]; ok {
		return r, nil
	}
	r := &room{
		Room:   Room{Name: addr.Localpart(), JID: addr},
		online: make(map[string]uint64),
	}
	e.rooms[key(r.Name)] = r
	return r, nil
}

// fromRoom returns the known room that sent a stanza from j.
func (e *Engine) fromRoom(j jid.JID) (*room, bool) {
	r, ok := e.rooms[key(j.Localpart())]
	return r, ok
}

func (e *Engine) occupantJID(r *room) jid.JID {
	// The nick is a decimal number and always a valid resourcepart.
	j, _ := r.JID.WithResource(e.nick)
	return j
}

func (e *Engine) setState(r *room, s State) {
	e.logger.Debug("room state changed", "room", r.Name, "from", r.State, "to", s)
	r.State = s
}

// CreateOrJoin enters the named room, creating it with the given flags if it
// does not exist.
// It returns the normalized room name.
func (e *Engine) CreateOrJoin(name string, membersOnly, persistent bool) (string, error) {
	r, err := e.allocate(name)
	if err != nil {
		return "", err
	}
	if r.State == Destroyed {
		r.reset()
	}
	if r.State == NotJoined {
		r.MembersOnly = membersOnly
		r.Persistent = persistent
	}
	return r.Name, e.join(r)
}

// Join enters the named room.
// Unknown rooms are joined without any configuration.
// A room that was destroyed is entered again as a new room.
func (e *Engine) Join(name string) (string, error) {
	r, err := e.allocate(name)
	if err != nil {
		return "", err
	}
	if r.State == Destroyed {
		r.reset()
	}
	return r.Name, e.join(r)
}

// reset forgets everything learned about a destroyed room.
func (r *room) reset() {
	r.Room = Room{Name: r.Name, JID: r.JID}
	r.configure = false
	r.membersLoaded = false
	clear(r.online)
}

func (e *Engine) join(r *room) error {
	switch r.State {
	case Joining, Joined:
		return nil
	case Leaving:
		return ErrInvalidState
	}
	if r.MembersOnly && r.membersLoaded && r.Standing != StandingOwner && !r.isMember(e.self) {
		return ErrForbidden
	}

	p := stanza.NewPresence(stanza.AvailablePresence, e.occupantJID(r))
	p.Payloads = []stanza.Payload{&Join{}}
	if err := e.sender.Send(p); err != nil {
		return err
	}
	r.configure = false
	e.setState(r, Joining)
	return nil
}

func (r *room) isMember(id uint64) bool {
	for _, m := range r.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Leave exits the named room.
func (e *Engine) Leave(name string) error {
	r, err := e.lookup(name)
	if err != nil {
		return err
	}
	if r.State != Joined && r.State != Joining {
		return ErrInvalidState
	}
	if err := e.sender.Send(stanza.NewPresence(stanza.UnavailablePresence, e.occupantJID(r))); err != nil {
		return err
	}
	e.setState(r, Leaving)
	return nil
}

func (r *room) mayDestroy() bool {
	return r.Standing == StandingOwner || (r.MembersOnly && r.Standing == StandingMember)
}

// Destroy destroys the named room.
// The local user must own the room or have been made a member of a
// members-only room.
func (e *Engine) Destroy(name, reason string) error {
	r, err := e.lookup(name)
	if err != nil {
		return err
	}
	if r.State != Joined {
		return ErrInvalidState
	}
	if !r.mayDestroy() {
		return ErrForbidden
	}
	iq := stanza.NewIQ(stanza.SetIQ, r.JID, &Owner{Destroy: &Destroy{Reason: reason}})
	return e.sender.SendIQ(iq, func(_ stanza.IQ, err error) {
		if err != nil {
			e.requestError("destroy", r, err)
			return
		}
		e.destroyed(r)
	})
}

func (e *Engine) destroyed(r *room) {
	if r.State == Destroyed {
		return
	}
	e.setState(r, Destroyed)
	clear(r.online)
	if e.OnDestroy != nil {
		e.OnDestroy(r.snapshot())
	}
}

func (e *Engine) requestError(op string, r *room, err error) {
	e.logger.Debug("room request failed", "op", op, "room", r.Name, "err", err)
	if e.OnRequestError != nil {
		e.OnRequestError(op, r.snapshot(), err)
	}
}

// Send sends a groupchat message to the named room.
// The message is reported through OnMessage once the room echoes it back.
func (e *Engine) Send(name, body string, params stanza.Params) error {
	r, err := e.lookup(name)
	if err != nil {
		return err
	}
	if r.State != Joined {
		return ErrInvalidState
	}
	msg := stanza.NewGroupChat(r.JID, body)
	msg.Params = params
	return e.sender.Send(msg)
}

// Presence parameters with a meaning to the engine.
const (
	ParamShow        = "show"
	ParamStatus      = "status"
	ParamRole        = "role"
	ParamAffiliation = "affiliation"
)

// SendPresence sends a directed presence to the named room.
// The show and status keys become the presence show and status, all other
// keys are forwarded as parameters.
// The role and affiliation keys must hold valid values.
func (e *Engine) SendPresence(name string, params map[string]string) error {
	r, err := e.lookup(name)
	if err != nil {
		return err
	}
	if r.State != Joined {
		return ErrInvalidState
	}
	if v, ok := params[ParamRole]; ok && !Role(v).Valid() {
		return ErrBadRequest
	}
	if v, ok := params[ParamAffiliation]; ok && !Affiliation(v).Valid() {
		return ErrBadRequest
	}

	p := stanza.NewPresence(stanza.AvailablePresence, e.occupantJID(r))
	for k, v := range params {
		switch k {
		case ParamShow:
			p.Show = v
		case ParamStatus:
			p.Status = v
		default:
			if p.Params == nil {
				p.Params = make(stanza.Params)
			}
			p.Params[k] = v
		}
	}
	return e.sender.Send(p)
}

// RequestRooms lists the rooms hosted by the conference service.
func (e *Engine) RequestRooms() error {
	service, err := jid.New("", e.domain, "")
	if err != nil {
		return err
	}
	return e.sender.SendIQ(stanza.NewIQ(stanza.GetIQ, service, &disco.Items{}), func(res stanza.IQ, err error) {
		if err != nil {
			e.logger.Debug("room list request failed", "err", err)
			if e.OnRequestError != nil {
				e.OnRequestError("rooms", Room{}, err)
			}
			return
		}
		var list []Summary
		if items, ok := res.Payload.(*disco.Items); ok {
			for _, item := range items.Items {
				list = append(list, Summary{Name: item.JID.Localpart(), JID: item.JID.Bare()})
			}
		}
		if e.OnRooms != nil {
			e.OnRooms(list)
		}
	})
}

// RequestInfo asks the service to describe the named room.
func (e *Engine) RequestInfo(name string) error {
	r, err := e.lookup(name)
	if err != nil {
		return err
	}
	return e.sender.SendIQ(stanza.NewIQ(stanza.GetIQ, r.JID, &disco.Info{}), func(res stanza.IQ, err error) {
		if err != nil {
			e.requestError("info", r, err)
			return
		}
		var info Info
		if payload, ok := res.Payload.(*disco.Info); ok {
			info = infoFrom(*payload)
		}
		r.MembersOnly = info.MembersOnly
		r.Persistent = info.Persistent
		if e.OnInfo != nil {
			e.OnInfo(r.snapshot(), info)
		}
	})
}

func infoFrom(payload disco.Info) Info {
	info := Info{
		MembersOnly: payload.HasFeature(FeatureMembersOnly),
		Persistent:  payload.HasFeature(FeaturePersistent),
	}
	for _, id := range payload.Identities {
		if id.Category == "conference" && id.Name != "" {
			info.Title = id.Name
		}
	}
	for _, f := range payload.Features {
		info.Features = append(info.Features, f.Var)
	}
	if f, ok := payload.Form(NSRoomInfo); ok {
		info.Fields = f.Values()
	}
	return info
}

// RequestUsers asks the room for its member list.
func (e *Engine) RequestUsers(name string) error {
	r, err := e.lookup(name)
	if err != nil {
		return err
	}
	iq := stanza.NewIQ(stanza.GetIQ, r.JID, &Admin{Items: []Item{{Affiliation: AffiliationMember}}})
	return e.sender.SendIQ(iq, func(res stanza.IQ, err error) {
		if err != nil {
			e.requestError("users", r, err)
			return
		}
		r.Members = r.Members[:0]
		if admin, ok := res.Payload.(*Admin); ok {
			for _, item := range admin.Items {
				if id, err := item.JID.UserID(); err == nil {
					r.Members = append(r.Members, id)
				}
			}
		}
		r.membersLoaded = true
		if e.OnUsers != nil {
			e.OnUsers(r.snapshot(), append([]uint64(nil), r.Members...))
		}
	})
}

// RequestOnlineUsers asks the room for its current occupants.
func (e *Engine) RequestOnlineUsers(name string) error {
	r, err := e.lookup(name)
	if err != nil {
		return err
	}
	return e.sender.SendIQ(stanza.NewIQ(stanza.GetIQ, r.JID, &disco.Items{}), func(res stanza.IQ, err error) {
		if err != nil {
			e.requestError("online-users", r, err)
			return
		}
		var users []uint64
		if items, ok := res.Payload.(*disco.Items); ok {
			for _, item := range items.Items {
				nick := item.JID.Resourcepart()
				if nick == "" {
					nick = item.Name
				}
				if id, err := strconv.ParseUint(nick, 10, 64); err == nil {
					users = append(users, id)
				}
			}
		}
		if e.OnOnlineUsers != nil {
			e.OnOnlineUsers(r.snapshot(), users)
		}
	})
}

// AddUsers grants membership of the named room to each user.
func (e *Engine) AddUsers(name string, users []uint64) error {
	return e.setAffiliation(name, users, AffiliationMember)
}

// DeleteUsers revokes membership of the named room from each user.
func (e *Engine) DeleteUsers(name string, users []uint64) error {
	return e.setAffiliation(name, users, AffiliationNone)
}

func (e *Engine) setAffiliation(name string, users []uint64, a Affiliation) error {
	r, err := e.lookup(name)
	if err != nil {
		return err
	}
	if r.Standing != StandingOwner {
		return ErrForbidden
	}
	if len(users) == 0 {
		return ErrBadRequest
	}
	admin := &Admin{}
	for _, id := range users {
		j, err := jid.User(id, e.userDomain)
		if err != nil {
			return ErrBadRequest
		}
		admin.Items = append(admin.Items, Item{Affiliation: a, JID: j})
	}
	return e.sender.SendIQ(stanza.NewIQ(stanza.SetIQ, r.JID, admin), func(_ stanza.IQ, err error) {
		if err != nil {
			e.requestError("affiliation", r, err)
			return
		}
		for _, id := range users {
			if a == AffiliationMember {
				if !r.isMember(id) {
					r.Members = append(r.Members, id)
				}
				continue
			}
			for i, m := range r.Members {
				if m == id {
					r.Members = append(r.Members[:i], r.Members[i+1:]...)
					break
				}
			}
		}
	})
}

// IsRoom reports whether j is addressed to the conference service.
func (e *Engine) IsRoom(j jid.JID) bool {
	return j.Domainpart() == e.domain
}
