// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package jid implements the addresses used by the chat service.
//
// An address has the form localpart@domainpart/resourcepart as described in
// RFC 7622.
// Users are addressed by their numeric user id on the chat domain
// (42@chat.example.net), rooms by their normalized name on the conference
// domain (My_Room@conference.chat.example.net) and room occupants by the room
// address with the occupant's nickname as the resourcepart.
//
// Unlike RFC 7622 the localpart is prepared with the case preserving
// UsernameCasePreserved profile since room names are case sensitive on the
// service.
package jid // import "mellium.im/chat/jid"
