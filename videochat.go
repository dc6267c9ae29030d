// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"context"
	"errors"
	"sync/atomic"

	"mellium.im/chat/videochat"
)

// VideoChat is a handle on a call signaling channel.
// It holds no reference to the media; descriptions and candidates produced by
// the media engine are relayed with SendSignal and those of the peer arrive
// as CallSignalEvents.
//
// A VideoChat is bound to the session that created it and stays registered
// across logins until Unregister or Session.Close is called.
type VideoChat struct {
	s      *Session
	handle uint64
	closed atomic.Bool
}

// NewVideoChat registers a new signaling channel in the Idle state.
// Incoming calls ring the first idle channel in registration order.
func (s *Session) NewVideoChat(ctx context.Context) (*VideoChat, error) {
	var v *VideoChat
	err := s.do(ctx, "new video chat", func() error {
		c := s.calls.Register()
		v = &VideoChat{s: s, handle: c.Handle}
		s.chats[c.Handle] = v
		return nil
	})
	return v, err
}

// Handle returns the identifier of the channel.
func (v *VideoChat) Handle() uint64 {
	return v.handle
}

// Channel returns a snapshot of the channel.
// Unregistered channels report the Closed state.
func (v *VideoChat) Channel(ctx context.Context) (videochat.Channel, error) {
	c := videochat.Channel{Handle: v.handle, State: videochat.Closed}
	if v.closed.Load() {
		return c, nil
	}
	err := v.s.do(ctx, "video chat state", func() error {
		if snap, ok := v.s.calls.Channel(v.handle); ok {
			c = snap
		}
		return nil
	})
	return c, err
}

// Call offers a call to the user.
func (v *VideoChat) Call(ctx context.Context, peer uint64) error {
	return v.s.authenticated(ctx, "call", func() error {
		return v.s.calls.Call(v.handle, peer)
	})
}

// Accept answers a ringing call.
func (v *VideoChat) Accept(ctx context.Context) error {
	return v.s.authenticated(ctx, "accept call", func() error {
		return v.s.calls.Accept(v.handle)
	})
}

// Reject declines a ringing call.
func (v *VideoChat) Reject(ctx context.Context) error {
	return v.s.authenticated(ctx, "reject call", func() error {
		return v.s.calls.Reject(v.handle)
	})
}

// Hangup ends the call in progress.
func (v *VideoChat) Hangup(ctx context.Context) error {
	return v.s.authenticated(ctx, "hangup", func() error {
		return v.s.calls.Hangup(v.handle)
	})
}

// SendSignal relays a session description or an ICE candidate to the peer.
func (v *VideoChat) SendSignal(ctx context.Context, sig videochat.Signal) error {
	return v.s.authenticated(ctx, "send signal", func() error {
		return v.s.calls.SendSignal(v.handle, sig)
	})
}

// Unregister closes the channel for good, hanging up any call in progress.
func (v *VideoChat) Unregister(ctx context.Context) error {
	return v.s.do(ctx, "unregister video chat", func() error {
		err := v.s.calls.Unregister(v.handle)
		delete(v.s.chats, v.handle)
		v.closed.Store(true)
		if errors.Is(err, ErrNotAuthenticated) {
			return nil
		}
		return err
	})
}

// hangupAll ends every call in progress.
func (s *Session) hangupAll() {
	for h := range s.chats {
		c, ok := s.calls.Channel(h)
		if !ok {
			continue
		}
		switch c.State {
		case videochat.Offering, videochat.Ringing, videochat.Accepted, videochat.InCall:
			if err := s.calls.Hangup(h); err != nil {
				s.logger.Debug("error hanging up", "handle", h, "err", err)
			}
		}
	}
}
