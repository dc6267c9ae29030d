// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stream reads and writes the stream framing that surrounds stanzas:
// headers, features, stream errors and the closing tag.
package stream // import "mellium.im/chat/internal/stream"

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"mellium.im/chat/internal/ns"
	"mellium.im/chat/jid"
)

// DefaultVersion is the only stream version that is supported.
const DefaultVersion = "1.0"

// XMLHeader is written before the stream header.
const XMLHeader = `<?xml version="1.0" encoding="UTF-8"?>`

const closeTag = `</stream:stream>`

// Errors related to stream handling
var (
	ErrUnknownStreamElement = errors.New("stream: unknown stream level element")
	ErrUnexpectedRestart    = errors.New("stream: unexpected stream restart")
)

// Info is the information carried by a stream header.
type Info struct {
	ID      string
	To      jid.JID
	From    jid.JID
	Lang    string
	Version string
}

// Open writes an XML header followed by a stream header to w.
// Go's xml package cannot encode the prefixed stream element so the header is
// printed directly.
func Open(w io.Writer, info Info) error {
	if info.Version == "" {
		info.Version = DefaultVersion
	}
	_, err := fmt.Fprintf(w, XMLHeader+`<stream:stream`)
	if err != nil {
		return err
	}
	for _, a := range [...]struct{ name, value string }{
		{"id", info.ID},
		{"to", info.To.String()},
		{"from", info.From.String()},
		{"version", info.Version},
		{"xml:lang", info.Lang},
	} {
		if a.value == "" {
			continue
		}
		if _, err = fmt.Fprintf(w, ` %s='`, a.name); err != nil {
			return err
		}
		if err = xml.EscapeText(w, []byte(a.value)); err != nil {
			return err
		}
		if _, err = io.WriteString(w, `'`); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, ` xmlns='%s' xmlns:stream='%s'>`, ns.Client, ns.Stream)
	return err
}

// Close writes the closing stream tag to w.
func Close(w io.Writer) error {
	_, err := io.WriteString(w, closeTag)
	return err
}

// Expect reads a stream header from r.
// If recv is false the reader is the initiating entity and the header must
// carry a stream ID.
// An XML declaration before the header is skipped.
func Expect(r xml.TokenReader, recv bool) (Info, error) {
	var foundHeader bool
	for {
		t, err := r.Token()
		if err != nil {
			return Info{}, err
		}
		switch tok := t.(type) {
		case xml.StartElement:
			switch {
			case tok.Name.Local == "error" && tok.Name.Space == ns.Stream:
				se := Error{}
				if err := xml.NewTokenDecoder(r).DecodeElement(&se, &tok); err != nil {
					return Info{}, err
				}
				return Info{}, se
			case tok.Name.Local != "stream":
				return Info{}, BadFormat
			case tok.Name.Space != ns.Stream:
				return Info{}, InvalidNamespace
			}
			info, err := fromStartElement(tok)
			switch {
			case err != nil:
				return info, err
			case info.Version != DefaultVersion:
				return info, UnsupportedVersion
			case !recv && info.ID == "":
				return info, BadFormat
			}
			return info, nil
		case xml.ProcInst:
			if !foundHeader && tok.Target == "xml" {
				foundHeader = true
				continue
			}
			return Info{}, RestrictedXML
		case xml.CharData:
			// Whitespace before the header is allowed.
			continue
		case xml.EndElement:
			return Info{}, NotWellFormed
		default:
			return Info{}, RestrictedXML
		}
	}
}

func fromStartElement(s xml.StartElement) (Info, error) {
	info := Info{}
	for _, a := range s.Attr {
		switch a.Name {
		case xml.Name{Local: "to"}:
			if err := info.To.UnmarshalXMLAttr(a); err != nil {
				return info, HostUnknown
			}
		case xml.Name{Local: "from"}:
			if err := info.From.UnmarshalXMLAttr(a); err != nil {
				return info, HostUnknown
			}
		case xml.Name{Local: "id"}:
			info.ID = a.Value
		case xml.Name{Local: "version"}:
			info.Version = a.Value
		case xml.Name{Local: "xmlns"}:
			if a.Value != ns.Client {
				return info, InvalidNamespace
			}
		case xml.Name{Space: "xmlns", Local: "stream"}:
			if a.Value != ns.Stream {
				return info, InvalidNamespace
			}
		case xml.Name{Space: ns.XML, Local: "lang"}, xml.Name{Space: "xml", Local: "lang"}:
			info.Lang = a.Value
		}
	}
	return info, nil
}

type reader struct {
	r xml.TokenReader
}

func (r reader) Token() (xml.Token, error) {
	tok, err := r.r.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case xml.StartElement:
		if t.Name.Space != ns.Stream {
			return tok, err
		}

		switch t.Name.Local {
		case "error":
			e := Error{}
			err = xml.NewTokenDecoder(r.r).DecodeElement(&e, &t)
			if err != nil {
				return nil, err
			}
			return nil, e
		case "stream":
			return nil, ErrUnexpectedRestart
		default:
			return nil, ErrUnknownStreamElement
		}
	case xml.EndElement:
		if t.Name.Space != ns.Stream {
			return tok, err
		}
		if t.Name.Local == "stream" {
			return nil, io.EOF
		}
		return nil, BadFormat
	case xml.CharData:
		return tok, err
	case xml.Comment, xml.ProcInst, xml.Directive:
		return nil, RestrictedXML
	}
	return tok, fmt.Errorf("stream: invalid token type: %T", tok)
}

// Reader returns a token reader that handles stream level tokens on an already
// established stream.
// Stream errors are returned as Error values and the end of the stream as
// io.EOF.
func Reader(r xml.TokenReader) xml.TokenReader {
	return reader{r: r}
}
