// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"

	"mellium.im/chat/muc"
	"mellium.im/chat/stanza"
)

// Room names passed to the methods below are normalized with muc.Normalize.
// Names that normalize identically address the same room.

// CreateOrJoinRoom enters the named room, creating it with the given flags if
// it does not exist yet.
// It returns the normalized name; entering is reported by a RoomEnterEvent
// or a RoomEnterFailedEvent.
func (s *Session) CreateOrJoinRoom(ctx context.Context, name string, membersOnly, persistent bool) (string, error) {
	var normalized string
	err := s.authenticated(ctx, "create room", func() error {
		var err error
		normalized, err = s.rooms.CreateOrJoin(name, membersOnly, persistent)
		return err
	})
	return normalized, err
}

// JoinRoom enters an existing room.
func (s *Session) JoinRoom(ctx context.Context, name string) (string, error) {
	var normalized string
	err := s.authenticated(ctx, "join room", func() error {
		var err error
		normalized, err = s.rooms.Join(name)
		return err
	})
	return normalized, err
}

// LeaveRoom exits a room.
func (s *Session) LeaveRoom(ctx context.Context, name string) error {
	return s.authenticated(ctx, "leave room", func() error {
		return s.rooms.Leave(name)
	})
}

// DestroyRoom destroys a room owned by the local user.
// It fails with Forbidden before anything is sent if the user may not destroy
// the room.
func (s *Session) DestroyRoom(ctx context.Context, name string) error {
	return s.authenticated(ctx, "destroy room", func() error {
		return s.rooms.Destroy(name, "")
	})
}

// SendRoomMessage sends a message to every occupant of a joined room.
// Only the Body and Params fields of msg are used.
func (s *Session) SendRoomMessage(ctx context.Context, name string, msg Message) error {
	return s.authenticated(ctx, "send room message", func() error {
		var params stanza.Params
		if len(msg.Params) > 0 {
			params = stanza.Params(msg.Params)
		}
		return s.rooms.Send(name, msg.Body, params)
	})
}

// SendRoomPresence sends a presence to a joined room.
// The keys "show" and "status" set the presence show and status, other keys
// are sent as parameters.
func (s *Session) SendRoomPresence(ctx context.Context, name string, params map[string]string) error {
	return s.authenticated(ctx, "send room presence", func() error {
		return s.rooms.SendPresence(name, params)
	})
}

// RequestAllRooms asks the conference service for its rooms.
// The answer is reported by a RoomListEvent.
func (s *Session) RequestAllRooms(ctx context.Context) error {
	return s.authenticated(ctx, "request rooms", func() error {
		return s.rooms.RequestRooms()
	})
}

// RequestRoomInfo asks for the description of a known room.
// The answer is reported by a RoomInfoEvent.
func (s *Session) RequestRoomInfo(ctx context.Context, name string) error {
	return s.authenticated(ctx, "request room info", func() error {
		return s.rooms.RequestInfo(name)
	})
}

// RequestRoomUsers asks for the members of a known room.
// The answer is reported by a RoomUsersEvent.
func (s *Session) RequestRoomUsers(ctx context.Context, name string) error {
	return s.authenticated(ctx, "request room users", func() error {
		return s.rooms.RequestUsers(name)
	})
}

// RequestRoomOnlineUsers asks for the current occupants of a known room.
// The answer is reported by a RoomOnlineUsersEvent.
func (s *Session) RequestRoomOnlineUsers(ctx context.Context, name string) error {
	return s.authenticated(ctx, "request room online users", func() error {
		return s.rooms.RequestOnlineUsers(name)
	})
}

// AddUsersToRoom grants membership of a room owned by the local user.
func (s *Session) AddUsersToRoom(ctx context.Context, name string, users []uint64) error {
	return s.authenticated(ctx, "add room users", func() error {
		return s.rooms.AddUsers(name, users)
	})
}

// DeleteUsersFromRoom revokes membership of a room owned by the local user.
func (s *Session) DeleteUsersFromRoom(ctx context.Context, name string, users []uint64) error {
	return s.authenticated(ctx, "delete room users", func() error {
		return s.rooms.DeleteUsers(name, users)
	})
}

// Room returns a snapshot of a known room.
func (s *Session) Room(ctx context.Context, name string) (muc.Room, bool, error) {
	var (
		r  muc.Room
		ok bool
	)
	err := s.authenticated(ctx, "room", func() error {
		r, ok = s.rooms.Room(name)
		return nil
	})
	return r, ok, err
}

// Rooms returns snapshots of every known room ordered by name.
func (s *Session) Rooms(ctx context.Context) ([]muc.Room, error) {
	var list []muc.Room
	err := s.authenticated(ctx, "rooms", func() error {
		list = s.rooms.Rooms()
		return nil
	})
	return list, err
}
