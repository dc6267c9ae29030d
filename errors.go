// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"errors"

	"mellium.im/chat/codec"
	"mellium.im/chat/internal/saslerr"
	"mellium.im/chat/internal/stream"
	"mellium.im/chat/muc"
	"mellium.im/chat/roster"
	"mellium.im/chat/stanza"
	"mellium.im/chat/transport"
	"mellium.im/chat/videochat"
)

// ErrorKind classifies the errors returned by a Session and carried by
// events.
type ErrorKind uint8

// A list of error kinds.
const (
	Unknown ErrorKind = iota
	ConnectionRefused
	ConnectionClosed
	ConnectionTimeout
	AuthFailed
	MalformedStanza
	NotAuthenticated
	NotInRoster
	Forbidden
	NotFound
	ItemConflict
	SessionClosed
	IQTimeout
	Busy
	BadRequest
	InvalidState
)

var kindNames = [...]string{
	Unknown:           "unknown",
	ConnectionRefused: "connection refused",
	ConnectionClosed:  "connection closed",
	ConnectionTimeout: "connection timeout",
	AuthFailed:        "authentication failed",
	MalformedStanza:   "malformed stanza",
	NotAuthenticated:  "not authenticated",
	NotInRoster:       "not in roster",
	Forbidden:         "forbidden",
	NotFound:          "not found",
	ItemConflict:      "item conflict",
	SessionClosed:     "session closed",
	IQTimeout:         "request timed out",
	Busy:              "busy",
	BadRequest:        "bad request",
	InvalidState:      "invalid state",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[Unknown]
}

// Error is the error type returned by a Session.
// Errors compare equal under errors.Is when their kinds match, so a returned
// error may be compared against the sentinels below.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Sentinel errors for each kind.
var (
	ErrConnectionRefused = &Error{Kind: ConnectionRefused}
	ErrConnectionClosed  = &Error{Kind: ConnectionClosed}
	ErrConnectionTimeout = &Error{Kind: ConnectionTimeout}
	ErrAuthFailed        = &Error{Kind: AuthFailed}
	ErrMalformedStanza   = &Error{Kind: MalformedStanza}
	ErrNotAuthenticated  = &Error{Kind: NotAuthenticated}
	ErrNotInRoster       = &Error{Kind: NotInRoster}
	ErrForbidden         = &Error{Kind: Forbidden}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrItemConflict      = &Error{Kind: ItemConflict}
	ErrSessionClosed     = &Error{Kind: SessionClosed}
	ErrIQTimeout         = &Error{Kind: IQTimeout}
	ErrBusy              = &Error{Kind: Busy}
	ErrBadRequest        = &Error{Kind: BadRequest}
	ErrInvalidState      = &Error{Kind: InvalidState}
)

func (e *Error) Error() string {
	s := "chat: "
	if e.Op != "" {
		s += e.Op + ": "
	}
	s += e.Kind.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err.
// Errors not produced by this module are of kind Unknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return kindOf(err)
}

func kindOf(err error) ErrorKind {
	var (
		te  *transport.Error
		sf  saslerr.Failure
		ste stream.Error
	)
	se, isStanza := stanza.AsError(err)
	switch {
	case err == nil:
		return Unknown
	case errors.As(err, &te):
		switch te.Class {
		case transport.ErrConnectionRefused:
			return ConnectionRefused
		case transport.ErrConnectionTimeout:
			return ConnectionTimeout
		}
		return ConnectionClosed
	case errors.As(err, &sf):
		return AuthFailed
	case errors.As(err, &ste):
		if ste.Condition == stream.ConnectionTimeout.Condition {
			return ConnectionTimeout
		}
		return ConnectionClosed
	case errors.Is(err, codec.ErrMalformedStanza):
		return MalformedStanza
	case isStanza:
		switch se.Condition {
		case stanza.Forbidden, stanza.RegistrationRequired, stanza.NotAllowed, stanza.NotAuthorized:
			return Forbidden
		case stanza.ItemNotFound, stanza.RecipientUnavailable, stanza.RemoteServerNotFound:
			return NotFound
		case stanza.Conflict:
			return ItemConflict
		case stanza.ResourceConstraint:
			return Busy
		case stanza.BadRequest, stanza.JIDMalformed, stanza.NotAcceptable:
			return BadRequest
		case stanza.RemoteServerTimeout:
			return IQTimeout
		}
		return Unknown
	case errors.Is(err, muc.ErrForbidden):
		return Forbidden
	case errors.Is(err, muc.ErrNotFound), errors.Is(err, roster.ErrNotInRoster), errors.Is(err, videochat.ErrUnknownChannel):
		return NotFound
	case errors.Is(err, muc.ErrBadRequest), errors.Is(err, videochat.ErrBadSignal):
		return BadRequest
	case errors.Is(err, muc.ErrInvalidState), errors.Is(err, roster.ErrNoRequest), errors.Is(err, videochat.ErrInvalidState):
		return InvalidState
	}
	return Unknown
}

// wrap returns err classified as an *Error with the given operation.
// Errors that are already classified keep their kind.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			return &Error{Kind: e.Kind, Op: op, Err: e.Err}
		}
		return err
	}
	return &Error{Kind: kindOf(err), Op: op, Err: err}
}

// wrapKind returns err as an *Error of the given kind.
func wrapKind(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
