// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package form_test

import (
	"bytes"
	"encoding/xml"
	"reflect"
	"testing"

	"mellium.im/xmlstream"

	"mellium.im/chat/form"
)

func TestSubmitRoundTrip(t *testing.T) {
	data := form.Submit("http://jabber.org/protocol/muc#roomconfig",
		form.Bool("muc#roomconfig_membersonly", true),
		form.Bool("muc#roomconfig_persistentroom", false),
	)

	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	if _, err := xmlstream.Copy(e, data.TokenReader()); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}

	var decoded form.Data
	if err := xml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("error decoding %s: %v", buf.String(), err)
	}
	if !reflect.DeepEqual(decoded, data) {
		t.Errorf("round trip failed:\nwant=%+v\n got=%+v", data, decoded)
	}
	if !decoded.GetBool("muc#roomconfig_membersonly") {
		t.Errorf("expected members only to be true")
	}
	if decoded.GetBool("muc#roomconfig_persistentroom") {
		t.Errorf("expected persistent to be false")
	}
	if v, ok := decoded.Get(form.FormType); !ok || v != "http://jabber.org/protocol/muc#roomconfig" {
		t.Errorf("wrong form type %q", v)
	}
	if _, ok := decoded.Get("nope"); ok {
		t.Errorf("did not expect missing field to be found")
	}
}
