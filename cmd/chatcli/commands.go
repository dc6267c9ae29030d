// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"mellium.im/chat"
)

var errUsage = errors.New("bad arguments, see /help")

var (
	infoColor = color.New(color.FgCyan).SprintFunc()
	warnColor = color.New(color.FgRed).SprintFunc()
	userColor = color.New(color.FgGreen, color.Bold).SprintFunc()
)

func info(out io.Writer, format string, args ...any) {
	fmt.Fprintln(out, infoColor("* "+fmt.Sprintf(format, args...)))
}

func warn(out io.Writer, format string, args ...any) {
	fmt.Fprintln(out, warnColor("! "+fmt.Sprintf(format, args...)))
}

type command struct {
	name  string
	args  string
	help  string
	nargs int
	run   func(ctx context.Context, s *chat.Session, out io.Writer, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{name: "msg", args: "<user> <text>", help: "send a message", nargs: 2, run: func(ctx context.Context, s *chat.Session, _ io.Writer, args []string) error {
			to, err := parseUser(args[0])
			if err != nil {
				return err
			}
			return s.SendMessage(ctx, chat.Message{To: to, Body: args[1]})
		}},
		{name: "status", args: "<text>", help: "broadcast a presence status", nargs: 1, run: func(ctx context.Context, s *chat.Session, _ io.Writer, args []string) error {
			return s.SendPresenceWithStatus(ctx, args[0])
		}},
		{name: "add", args: "<user>", help: "ask a user to be added to the contact list", nargs: 1, run: userCmd((*chat.Session).AddContact)},
		{name: "confirm", args: "<user>", help: "accept a contact request", nargs: 1, run: userCmd((*chat.Session).ConfirmContact)},
		{name: "reject", args: "<user>", help: "refuse a contact request", nargs: 1, run: userCmd((*chat.Session).RejectContact)},
		{name: "remove", args: "<user>", help: "remove a contact", nargs: 1, run: userCmd((*chat.Session).RemoveContact)},
		{name: "contacts", help: "list contacts", run: func(ctx context.Context, s *chat.Session, out io.Writer, _ []string) error {
			contacts, err := s.ContactList(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, c := range contacts {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.UserID, c.Subscription, c.Presence, c.Status)
			}
			return w.Flush()
		}},
		{name: "join", args: "<room>", help: "create or join a room", nargs: 1, run: func(ctx context.Context, s *chat.Session, out io.Writer, args []string) error {
			name, err := s.CreateOrJoinRoom(ctx, args[0], false, false)
			if err == nil && name != args[0] {
				info(out, "joining %s", name)
			}
			return err
		}},
		{name: "leave", args: "<room>", help: "leave a room", nargs: 1, run: roomCmd((*chat.Session).LeaveRoom)},
		{name: "destroy", args: "<room>", help: "destroy a room", nargs: 1, run: roomCmd((*chat.Session).DestroyRoom)},
		{name: "say", args: "<room> <text>", help: "send a message to a room", nargs: 2, run: func(ctx context.Context, s *chat.Session, _ io.Writer, args []string) error {
			return s.SendRoomMessage(ctx, args[0], chat.Message{Body: args[1]})
		}},
		{name: "rooms", help: "list public rooms", run: func(ctx context.Context, s *chat.Session, _ io.Writer, _ []string) error {
			return s.RequestAllRooms(ctx)
		}},
		{name: "info", args: "<room>", help: "request room information", nargs: 1, run: roomCmd((*chat.Session).RequestRoomInfo)},
		{name: "who", args: "<room>", help: "list the occupants of a room", nargs: 1, run: roomCmd((*chat.Session).RequestRoomOnlineUsers)},
		{name: "quit", help: "log out and exit"},
	}
}

func userCmd(f func(*chat.Session, context.Context, uint64) error) func(context.Context, *chat.Session, io.Writer, []string) error {
	return func(ctx context.Context, s *chat.Session, _ io.Writer, args []string) error {
		id, err := parseUser(args[0])
		if err != nil {
			return err
		}
		return f(s, ctx, id)
	}
}

func roomCmd(f func(*chat.Session, context.Context, string) error) func(context.Context, *chat.Session, io.Writer, []string) error {
	return func(ctx context.Context, s *chat.Session, _ io.Writer, args []string) error {
		return f(s, ctx, args[0])
	}
}

func parseUser(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

// execute runs a single line of input.
// Lines that do not start with a slash are ignored.
func execute(ctx context.Context, s *chat.Session, out io.Writer, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return false, nil
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	if name == "help" {
		printHelp(out)
		return false, nil
	}
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		if cmd.run == nil {
			return true, nil
		}
		var args []string
		if cmd.nargs > 0 {
			args = strings.SplitN(strings.TrimSpace(rest), " ", cmd.nargs)
			if len(args) != cmd.nargs || args[len(args)-1] == "" {
				return false, errUsage
			}
		}
		return false, cmd.run(ctx, s, out, args)
	}
	return false, fmt.Errorf("unknown command %q", name)
}

func printHelp(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, cmd := range commands {
		fmt.Fprintf(w, "/%s %s\t%s\n", cmd.name, cmd.args, cmd.help)
	}
	w.Flush()
}

func printEvent(out io.Writer, e chat.Event) {
	switch e := e.(type) {
	case chat.LoginEvent:
		info(out, "logged in as %s", e.User)
	case chat.LoginFailedEvent:
		info(out, "login failed: %v", e.Err)
	case chat.LogoutEvent:
		info(out, "logged out")
	case chat.DisconnectEvent:
		info(out, "disconnected: %v", e.Err)
	case chat.MessageEvent:
		fmt.Fprintf(out, "%s %s\n", userColor(fmt.Sprintf("<%d>", e.Message.From)), e.Message.Body)
	case chat.MessageErrorEvent:
		warn(out, "message to %d failed: %v", e.To, e.Err)
	case chat.PresenceEvent:
		state := "offline"
		if e.Available {
			state = "online"
		}
		info(out, "%d is %s %s", e.UserID, state, e.Status)
	case chat.ContactAddRequestEvent:
		info(out, "%d wants to add you, /confirm or /reject", e.UserID)
	case chat.ContactAddResponseEvent:
		info(out, "%d answered your request: accepted=%t", e.UserID, e.Accepted)
	case chat.RoomEnterEvent:
		info(out, "entered %s", e.Room.Name)
	case chat.RoomEnterFailedEvent:
		warn(out, "could not enter %s: %v", e.Room.Name, e.Err)
	case chat.RoomLeaveEvent:
		info(out, "left %s", e.Room.Name)
	case chat.RoomDestroyEvent:
		info(out, "%s was destroyed", e.Room.Name)
	case chat.RoomMessageEvent:
		fmt.Fprintf(out, "[%s] %s %s\n", e.Room.Name, userColor(fmt.Sprintf("<%d>", e.Message.From)), e.Message.Body)
	case chat.RoomInfoEvent:
		info(out, "%s: %+v", e.Room.Name, e.Info)
	case chat.RoomOnlineUsersEvent:
		info(out, "in %s: %v", e.Room.Name, e.Users)
	case chat.RoomUsersEvent:
		info(out, "members of %s: %v", e.Room.Name, e.Users)
	case chat.RoomListEvent:
		for _, r := range e.Rooms {
			info(out, "room %s", r.Name)
		}
	case chat.RequestErrorEvent:
		warn(out, "%s failed: %v", e.Op, e.Err)
	case chat.IncomingCallEvent:
		info(out, "call from %d", e.Peer)
	}
}
