// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stanza contains the three stanza kinds exchanged with the chat
// service and the payloads they carry.
//
// A Message carries a body to a user or a room, a Presence carries
// availability and subscription requests, and an IQ is a request or the
// response to one.
// Every stanza can be turned into an XML token stream with TokenReader and
// written with WriteXML.
// Decoding is the job of the codec package which understands the registered
// payloads; anything it does not understand is kept as an Unknown payload so
// that it can be forwarded unchanged.
package stanza // import "mellium.im/chat/stanza"
