// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat_test

import (
	"errors"
	"reflect"
	"testing"

	"mellium.im/chat"
	"mellium.im/chat/muc"
)

// enter creates or joins a room and waits until the local user is in it.
func enter(t *testing.T, s *chat.Session, name string, membersOnly bool) string {
	t.Helper()
	room, err := s.CreateOrJoinRoom(testContext(t), name, membersOnly, false)
	if err != nil {
		t.Fatalf("error entering room %q: %v", name, err)
	}
	e := waitFor[chat.RoomEnterEvent](t, s)
	if e.Room.Name != room {
		t.Fatalf("entered wrong room: want=%q, got=%q", room, e.Room.Name)
	}
	return room
}

func TestCreateRoom(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	login(t, s, 1)

	room := enter(t, s, "My Cool Room<x>y", true)
	if want := "My_Cool_Roomxy"; room != want {
		t.Errorf("wrong room name: want=%q, got=%q", want, room)
	}
	membersOnly, persistent, ok := srv.RoomConfig(room)
	if !ok {
		t.Fatalf("room %q does not exist on the server", room)
	}
	if !membersOnly || persistent {
		t.Errorf("wrong room configuration: membersOnly=%t, persistent=%t", membersOnly, persistent)
	}

	r, ok, err := s.Room(testContext(t), "My Cool Room<x>y")
	switch {
	case err != nil:
		t.Fatalf("error looking up room: %v", err)
	case !ok:
		t.Fatalf("room not found by its original name")
	case r.State != muc.Joined:
		t.Errorf("wrong room state: want=%v, got=%v", muc.Joined, r.State)
	case r.Standing != muc.StandingOwner:
		t.Errorf("wrong standing: want=%v, got=%v", muc.StandingOwner, r.Standing)
	}
}

func TestRoomNotJoined(t *testing.T) {
	srv := newServer(t, 1)
	s := newSession(t, testConfig(srv))
	ctx := testContext(t)
	if _, err := s.JoinRoom(ctx, "lobby"); !errors.Is(err, chat.ErrNotAuthenticated) {
		t.Errorf("wrong error joining before login: want=%v, got=%v", chat.ErrNotAuthenticated, err)
	}
	login(t, s, 1)
	if err := s.SendRoomMessage(ctx, "lobby", chat.Message{Body: "hi"}); !errors.Is(err, chat.ErrNotFound) {
		t.Errorf("wrong error for unknown room: want=%v, got=%v", chat.ErrNotFound, err)
	}
	if _, err := s.JoinRoom(ctx, "<>"); !errors.Is(err, chat.ErrBadRequest) {
		t.Errorf("wrong error for empty name: want=%v, got=%v", chat.ErrBadRequest, err)
	}
}

func TestRoomMessage(t *testing.T) {
	srv := newServer(t, 1, 2)
	s1 := newSession(t, testConfig(srv))
	s2 := newSession(t, testConfig(srv))
	login(t, s1, 1)
	login(t, s2, 2)

	room := enter(t, s1, "lobby", false)
	if _, err := s2.JoinRoom(testContext(t), room); err != nil {
		t.Fatalf("error joining room: %v", err)
	}
	waitFor[chat.RoomEnterEvent](t, s2)
	if got, want := srv.Occupants(room), []uint64{1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("wrong occupants: want=%v, got=%v", want, got)
	}

	err := s1.SendRoomMessage(testContext(t), room, chat.Message{Body: "hello room"})
	if err != nil {
		t.Fatalf("error sending room message: %v", err)
	}
	for _, s := range []*chat.Session{s1, s2} {
		e := waitFor[chat.RoomMessageEvent](t, s)
		switch {
		case e.Message.Room != room || e.Room.Name != room:
			t.Errorf("wrong room: want=%q, got=%q", room, e.Message.Room)
		case e.Message.From != 1:
			t.Errorf("wrong sender: want=1, got=%d", e.Message.From)
		case e.Message.Body != "hello room":
			t.Errorf("wrong body: %q", e.Message.Body)
		}
	}

	if err := s2.LeaveRoom(testContext(t), room); err != nil {
		t.Fatalf("error leaving room: %v", err)
	}
	waitFor[chat.RoomLeaveEvent](t, s2)
}

func TestRoomMembersOnly(t *testing.T) {
	srv := newServer(t, 1, 2, 3)
	s1 := newSession(t, testConfig(srv))
	s2 := newSession(t, testConfig(srv))
	login(t, s1, 1)
	login(t, s2, 2)
	room := enter(t, s1, "private", true)

	if _, err := s2.JoinRoom(testContext(t), room); err != nil {
		t.Fatalf("error joining room: %v", err)
	}
	failed := waitFor[chat.RoomEnterFailedEvent](t, s2)
	if failed.Room.Name != room || failed.Err == nil {
		t.Errorf("wrong failure: %+v", failed)
	}

	ctx := testContext(t)
	if err := s1.AddUsersToRoom(ctx, room, []uint64{3, 2}); err != nil {
		t.Fatalf("error adding users: %v", err)
	}
	if err := s1.RequestRoomUsers(ctx, room); err != nil {
		t.Fatalf("error requesting users: %v", err)
	}
	users := waitFor[chat.RoomUsersEvent](t, s1)
	if want := []uint64{2, 3}; !reflect.DeepEqual(users.Users, want) {
		t.Errorf("wrong members: want=%v, got=%v", want, users.Users)
	}

	if _, err := s2.JoinRoom(ctx, room); err != nil {
		t.Fatalf("error joining room as a member: %v", err)
	}
	waitFor[chat.RoomEnterEvent](t, s2)

	if err := s1.DeleteUsersFromRoom(ctx, room, []uint64{3}); err != nil {
		t.Fatalf("error deleting users: %v", err)
	}
	if err := s1.RequestRoomUsers(ctx, room); err != nil {
		t.Fatalf("error requesting users: %v", err)
	}
	users = waitFor[chat.RoomUsersEvent](t, s1)
	if want := []uint64{2}; !reflect.DeepEqual(users.Users, want) {
		t.Errorf("wrong members after deletion: want=%v, got=%v", want, users.Users)
	}

	if err := s2.AddUsersToRoom(ctx, room, []uint64{3}); !errors.Is(err, chat.ErrForbidden) {
		t.Errorf("wrong error adding users as a member: want=%v, got=%v", chat.ErrForbidden, err)
	}
}

func TestRoomQueries(t *testing.T) {
	srv := newServer(t, 1, 2)
	s1 := newSession(t, testConfig(srv))
	s2 := newSession(t, testConfig(srv))
	login(t, s1, 1)
	login(t, s2, 2)
	room := enter(t, s1, "lobby", false)
	if _, err := s2.JoinRoom(testContext(t), room); err != nil {
		t.Fatalf("error joining room: %v", err)
	}
	waitFor[chat.RoomEnterEvent](t, s2)

	ctx := testContext(t)
	if err := s1.RequestAllRooms(ctx); err != nil {
		t.Fatalf("error requesting rooms: %v", err)
	}
	list := waitFor[chat.RoomListEvent](t, s1)
	if len(list.Rooms) != 1 || list.Rooms[0].Name != room {
		t.Errorf("wrong room list: %+v", list.Rooms)
	}

	if err := s1.RequestRoomInfo(ctx, room); err != nil {
		t.Fatalf("error requesting room info: %v", err)
	}
	info := waitFor[chat.RoomInfoEvent](t, s1)
	if info.Info.MembersOnly || info.Info.Title != room {
		t.Errorf("wrong room info: %+v", info.Info)
	}

	if err := s1.RequestRoomOnlineUsers(ctx, room); err != nil {
		t.Fatalf("error requesting online users: %v", err)
	}
	online := waitFor[chat.RoomOnlineUsersEvent](t, s1)
	if want := []uint64{1, 2}; !reflect.DeepEqual(online.Users, want) {
		t.Errorf("wrong online users: want=%v, got=%v", want, online.Users)
	}
}

func TestDestroyRoom(t *testing.T) {
	srv := newServer(t, 1, 2)
	s1 := newSession(t, testConfig(srv))
	s2 := newSession(t, testConfig(srv))
	login(t, s1, 1)
	login(t, s2, 2)
	room := enter(t, s1, "doomed", false)
	if _, err := s2.JoinRoom(testContext(t), room); err != nil {
		t.Fatalf("error joining room: %v", err)
	}
	waitFor[chat.RoomEnterEvent](t, s2)

	if err := s2.DestroyRoom(testContext(t), room); !errors.Is(err, chat.ErrForbidden) {
		t.Errorf("wrong error destroying as a participant: want=%v, got=%v", chat.ErrForbidden, err)
	}
	if err := s1.DestroyRoom(testContext(t), room); err != nil {
		t.Fatalf("error destroying room: %v", err)
	}
	for _, s := range []*chat.Session{s1, s2} {
		e := waitFor[chat.RoomDestroyEvent](t, s)
		if e.Room.Name != room || e.Room.State != muc.Destroyed {
			t.Errorf("wrong destroyed room: %+v", e.Room)
		}
	}
	if _, _, ok := srv.RoomConfig(room); ok {
		t.Errorf("room still exists on the server")
	}

	if again := enter(t, s1, "doomed", true); again != room {
		t.Errorf("wrong name for the new room: want=%q, got=%q", room, again)
	}
	if membersOnly, _, ok := srv.RoomConfig(room); !ok || !membersOnly {
		t.Errorf("room was not recreated with the new configuration")
	}
}

func TestRoomCaseFolded(t *testing.T) {
	srv := newServer(t, 1, 2)
	s1 := newSession(t, testConfig(srv))
	s2 := newSession(t, testConfig(srv))
	login(t, s1, 1)
	login(t, s2, 2)

	room := enter(t, s1, "Team Room", false)
	if room != "Team_Room" {
		t.Fatalf("wrong room name: want=%q, got=%q", "Team_Room", room)
	}
	if _, err := s2.JoinRoom(testContext(t), "team room"); err != nil {
		t.Fatalf("error joining room: %v", err)
	}
	waitFor[chat.RoomEnterEvent](t, s2)
	if got, want := srv.Occupants("team_room"), []uint64{1, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("wrong occupants: want=%v, got=%v", want, got)
	}

	ctx := testContext(t)
	if err := s1.SendRoomMessage(ctx, room, chat.Message{Body: "hi"}); err != nil {
		t.Fatalf("error sending room message: %v", err)
	}
	if e := waitFor[chat.RoomMessageEvent](t, s1); e.Message.Room != room {
		t.Errorf("wrong room for echo: want=%q, got=%q", room, e.Message.Room)
	}
	if err := s1.RequestRoomOnlineUsers(ctx, room); err != nil {
		t.Fatalf("error requesting online users: %v", err)
	}
	online := waitFor[chat.RoomOnlineUsersEvent](t, s1)
	if want := []uint64{1, 2}; !reflect.DeepEqual(online.Users, want) {
		t.Errorf("wrong online users: want=%v, got=%v", want, online.Users)
	}
}
