// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package muc implements the rooms of the chat service on top of Multi-User
// Chat (XEP-0045).
//
// Rooms are addressed by a normalized name on the conference domain and every
// user joins with their numeric user id as the nickname.
// The Engine keeps one state machine per room:
//
//	NotJoined → Joining → Joined → Leaving → NotJoined
//	                 ↘         ↘
//	                  Destroyed ←
//
// Joining a room that does not exist yet creates it.
// The engine then submits the room configuration (members-only and persistent
// flags) before reporting that the room was entered.
package muc // import "mellium.im/chat/muc"

import (
	"encoding/xml"
)

// Various namespaces used by this package, provided as a convenience.
const (
	NS      = `http://jabber.org/protocol/muc`
	NSUser  = `http://jabber.org/protocol/muc#user`
	NSOwner = `http://jabber.org/protocol/muc#owner`
	NSAdmin = `http://jabber.org/protocol/muc#admin`

	// NSRoomConfig is the FORM_TYPE of the room configuration form.
	NSRoomConfig = `http://jabber.org/protocol/muc#roomconfig`

	// NSRoomInfo is the FORM_TYPE of the extended room information form.
	NSRoomInfo = `http://jabber.org/protocol/muc#roominfo`
)

// Room configuration fields and disco features.
const (
	ConfigMembersOnly = "muc#roomconfig_membersonly"
	ConfigPersistent  = "muc#roomconfig_persistentroom"

	FeatureMembersOnly = "muc_membersonly"
	FeaturePersistent  = "muc_persistent"
)

// Status codes carried in room presences.
const (
	StatusSelf    = 110
	StatusCreated = 201
)

// Names of the payloads defined in this package.
var (
	JoinName  = xml.Name{Space: NS, Local: "x"}
	UserName  = xml.Name{Space: NSUser, Local: "x"}
	AdminName = xml.Name{Space: NSAdmin, Local: "query"}
	OwnerName = xml.Name{Space: NSOwner, Local: "query"}
)
