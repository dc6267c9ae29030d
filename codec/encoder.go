// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"encoding/xml"
	"io"

	"mellium.im/xmlstream"

	"mellium.im/chat/stanza"
)

// Encoder writes stanzas to an output stream.
type Encoder struct {
	e *xml.Encoder
}

// NewEncoder returns an encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{e: xml.NewEncoder(w)}
}

// Encode writes s and flushes the underlying writer.
func (e *Encoder) Encode(s stanza.Stanza) error {
	if _, err := xmlstream.Copy(e.e, s.TokenReader()); err != nil {
		return err
	}
	return e.e.Flush()
}

// Marshal returns the XML encoding of s.
func Marshal(s stanza.Stanza) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a single stanza from b.
func Unmarshal(b []byte) (stanza.Stanza, error) {
	s, err := NewDecoder(xml.NewDecoder(bytes.NewReader(b))).Next()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	return s, err
}
