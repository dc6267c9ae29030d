// Copyright 2022 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package videochat

import (
	"encoding/xml"
	"errors"
	"strconv"

	"github.com/pion/webrtc/v4"
	"mellium.im/xmlstream"
)

// NS is the namespace of call signaling envelopes.
const NS = `urn:mellium:chat:videochat:0`

// Name is the name of the call envelope payload.
var Name = xml.Name{Space: NS, Local: "call"}

// Action is the purpose of a call envelope.
type Action string

// A list of envelope actions.
const (
	ActionCall   Action = "call"
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionHangup Action = "hangup"
	ActionSignal Action = "signal"
	ActionBusy   Action = "busy"
)

var errMissingID = errors.New("videochat: call envelope has no id")

// Call is the signaling envelope exchanged between two endpoints.
// Signal envelopes carry either a session description or an ICE candidate
// for the external media engine.
type Call struct {
	ID          string
	Action      Action
	Description *webrtc.SessionDescription
	Candidate   *webrtc.ICECandidateInit
}

// XMLName satisfies the stanza.Payload interface.
func (Call) XMLName() xml.Name { return Name }

// TokenReader satisfies the xmlstream.Marshaler interface.
func (c Call) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if c.Description != nil {
		inner = append(inner, xmlstream.Wrap(
			xmlstream.Token(xml.CharData(c.Description.SDP)),
			xml.StartElement{
				Name: xml.Name{Local: "sdp"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: c.Description.Type.String()}},
			},
		))
	}
	if c.Candidate != nil {
		start := xml.StartElement{Name: xml.Name{Local: "candidate"}}
		if c.Candidate.SDPMid != nil {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "mid"}, Value: *c.Candidate.SDPMid})
		}
		if c.Candidate.SDPMLineIndex != nil {
			start.Attr = append(start.Attr, xml.Attr{
				Name:  xml.Name{Local: "index"},
				Value: strconv.FormatUint(uint64(*c.Candidate.SDPMLineIndex), 10),
			})
		}
		if c.Candidate.UsernameFragment != nil {
			start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "ufrag"}, Value: *c.Candidate.UsernameFragment})
		}
		inner = append(inner, xmlstream.Wrap(xmlstream.Token(xml.CharData(c.Candidate.Candidate)), start))
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{
			Name: Name,
			Attr: []xml.Attr{
				{Name: xml.Name{Local: "id"}, Value: c.ID},
				{Name: xml.Name{Local: "action"}, Value: string(c.Action)},
			},
		},
	)
}

// UnmarshalXML satisfies the xml.Unmarshaler interface.
func (c *Call) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	decoded := struct {
		ID     string `xml:"id,attr"`
		Action Action `xml:"action,attr"`
		SDP    *struct {
			Type string `xml:"type,attr"`
			Data string `xml:",chardata"`
		} `xml:"sdp"`
		Candidate *struct {
			Mid   *string `xml:"mid,attr"`
			Index *string `xml:"index,attr"`
			Ufrag *string `xml:"ufrag,attr"`
			Data  string  `xml:",chardata"`
		} `xml:"candidate"`
	}{}
	if err := d.DecodeElement(&decoded, &start); err != nil {
		return err
	}
	if decoded.ID == "" {
		return errMissingID
	}
	*c = Call{ID: decoded.ID, Action: decoded.Action}
	if decoded.SDP != nil {
		c.Description = &webrtc.SessionDescription{
			Type: webrtc.NewSDPType(decoded.SDP.Type),
			SDP:  decoded.SDP.Data,
		}
	}
	if cand := decoded.Candidate; cand != nil {
		c.Candidate = &webrtc.ICECandidateInit{
			Candidate:        cand.Data,
			SDPMid:           cand.Mid,
			UsernameFragment: cand.Ufrag,
		}
		if cand.Index != nil {
			idx, err := strconv.ParseUint(*cand.Index, 10, 16)
			if err != nil {
				return err
			}
			i := uint16(idx)
			c.Candidate.SDPMLineIndex = &i
		}
	}
	return nil
}
