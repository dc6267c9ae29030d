// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package attr

import (
	"encoding/xml"
	"errors"
	"strconv"
	"testing"
)

func TestRandomIDLength(t *testing.T) {
	if s := RandomID(); len(s) != IDLen {
		t.Errorf("wrong length: want=%d, got=%d", IDLen, len(s))
	}
}

type zeroReader struct{}

func (zeroReader) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = 0
	}
	return len(b), nil
}

func TestRandomIDOddLengths(t *testing.T) {
	for i := 0; i <= 15; i++ {
		if s := randomID(i, zeroReader{}); len(s) != i {
			t.Errorf("wrong length: want=%d, got=%d", i, len(s))
		}
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) {
	return 0, errors.New("attr_test: expected error")
}

func TestRandomIDPanicsOnReadFailure(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected randomID to panic")
		}
	}()
	randomID(IDLen, errorReader{})
}

var setTests = [...]struct {
	in    []xml.Attr
	local string
	value string
	out   string
}{
	0: {local: "id", value: "123", out: "123"},
	1: {
		in:    []xml.Attr{{Name: xml.Name{Local: "id"}, Value: "old"}},
		local: "id",
		value: "new",
		out:   "new",
	},
}

func TestSet(t *testing.T) {
	for i, tc := range setTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			attrs := Set(tc.in, tc.local, tc.value)
			if v := Get(attrs, tc.local); v != tc.out {
				t.Errorf("wrong value: want=%q, got=%q", tc.out, v)
			}
			if len(attrs) != 1 {
				t.Errorf("expected exactly one attribute, got %d", len(attrs))
			}
		})
	}
}

func TestAppendSkipsEmpty(t *testing.T) {
	attrs := Append(nil, "to", "")
	if len(attrs) != 0 {
		t.Fatalf("expected empty value to be skipped, got %v", attrs)
	}
	attrs = Append(attrs, "to", "example.net")
	if v := Get(attrs, "to"); v != "example.net" {
		t.Errorf("wrong value: want=%q, got=%q", "example.net", v)
	}
}
