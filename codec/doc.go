// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package codec reads and writes stanzas on an established stream.
//
// The Decoder reads one top level element at a time and turns it into a
// stanza.Message, stanza.Presence, or stanza.IQ.
// Payloads are decoded through a Registry keyed by XML name and payloads that
// are not registered are kept as stanza.Unknown.
// An element that is well formed XML but does not describe a valid stanza
// results in an error wrapping ErrMalformedStanza; the decoder has already
// consumed the element and the next call to Next continues with the following
// one.
// Any other error, including XML syntax errors and stream errors, is fatal.
package codec // import "mellium.im/chat/codec"
