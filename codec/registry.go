// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec

import (
	"encoding/xml"

	"mellium.im/chat/disco"
	"mellium.im/chat/muc"
	"mellium.im/chat/ping"
	"mellium.im/chat/roster"
	"mellium.im/chat/stanza"
	"mellium.im/chat/videochat"
)

// Registry maps payload names to constructors of the values they decode into.
// Each constructor must return a pointer that can be passed to
// xml.Decoder.DecodeElement.
type Registry map[xml.Name]func() stanza.Payload

// DefaultRegistry returns a registry with every payload used by the chat
// client.
func DefaultRegistry() Registry {
	return Registry{
		disco.InfoName:   func() stanza.Payload { return &disco.Info{} },
		disco.ItemsName:  func() stanza.Payload { return &disco.Items{} },
		roster.QueryName: func() stanza.Payload { return &roster.Query{} },
		muc.JoinName:     func() stanza.Payload { return &muc.Join{} },
		muc.UserName:     func() stanza.Payload { return &muc.User{} },
		muc.AdminName:    func() stanza.Payload { return &muc.Admin{} },
		muc.OwnerName:    func() stanza.Payload { return &muc.Owner{} },
		ping.Name:        func() stanza.Payload { return &ping.Ping{} },
		videochat.Name:   func() stanza.Payload { return &videochat.Call{} },
	}
}
