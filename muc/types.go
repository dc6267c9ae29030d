// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

// Affiliation indicates a users long lived affiliation to the room.
type Affiliation string

// A list of room affiliations.
const (
	AffiliationNone    Affiliation = "none"
	AffiliationOwner   Affiliation = "owner"
	AffiliationAdmin   Affiliation = "admin"
	AffiliationMember  Affiliation = "member"
	AffiliationOutcast Affiliation = "outcast"
)

// Valid reports whether a is one of the affiliations that may be requested in
// a room presence.
func (a Affiliation) Valid() bool {
	switch a {
	case AffiliationNone, AffiliationMember, AffiliationAdmin, AffiliationOwner:
		return true
	}
	return false
}

// Role indicates a users role in the room for the duration of their visit.
type Role string

// A list of user roles.
const (
	RoleNone        Role = "none"
	RoleVisitor     Role = "visitor"
	RoleParticipant Role = "participant"
	RoleModerator   Role = "moderator"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleNone, RoleVisitor, RoleParticipant, RoleModerator:
		return true
	}
	return false
}

// Standing is the role of the local user in a room as far as the chat client
// is concerned.
type Standing uint8

// A list of standings.
const (
	StandingNone Standing = iota
	StandingMember
	StandingOwner
)

// StandingOf maps a room affiliation to the local standing.
func StandingOf(a Affiliation) Standing {
	switch a {
	case AffiliationOwner, AffiliationAdmin:
		return StandingOwner
	case AffiliationMember:
		return StandingMember
	}
	return StandingNone
}

func (s Standing) String() string {
	switch s {
	case StandingMember:
		return "member"
	case StandingOwner:
		return "owner"
	}
	return "none"
}

// State is the membership state of the local user in a room.
type State uint8

// A list of room states.
const (
	NotJoined State = iota
	Joining
	Joined
	Leaving
	Destroyed
)

func (s State) String() string {
	switch s {
	case NotJoined:
		return "not-joined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}
