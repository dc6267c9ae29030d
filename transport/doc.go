// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package transport carries the byte stream between a chat client and the
// server.
//
// A Link is a net.Conn that enforces an idle window with read deadlines,
// upgrades itself in place when STARTTLS is negotiated, and reports the
// first failure on its Health channel classified as one of
// ErrConnectionRefused, ErrConnectionClosed, or ErrConnectionTimeout.
// A Link does not interpret the bytes it carries and never retries.
package transport // import "mellium.im/chat/transport"
