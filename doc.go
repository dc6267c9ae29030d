// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package chat is a client for a chat service offering presence, contact
// lists, multi-user rooms, and video call signaling.
//
// A Session owns a single protocol loop.
// Every exported method of Session is safe for concurrent use: each call is
// queued into the loop and returns once the loop has validated the request and
// queued any resulting stanzas.
// Replies from the server are never awaited; their outcome arrives later as
// an Event on the channel returned by Events.
//
// Events are delivered in the order in which the stanzas that triggered them
// were read from the server.
// No events are delivered after a LogoutEvent until the next Login.
//
// Be advised: This API is still unstable and is subject to change.
package chat // import "mellium.im/chat"
