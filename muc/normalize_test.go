// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc_test

import (
	"strconv"
	"strings"
	"testing"

	"mellium.im/chat/muc"
)

var normalizeTestCases = [...]struct {
	in  string
	out string
}{
	0: {in: "My Cool Room/<x>@y", out: "My_Cool_Roomxy"},
	1: {in: "plain", out: "plain"},
	2: {in: `a"b&c'd/e:f<g>h@i`, out: "abcdefghi"},
	3: {in: "  ", out: "__"},
	4: {in: "@/:", out: ""},
	5: {in: "Ünïcode Room", out: "Ünïcode_Room"},
	6: {in: "", out: ""},
}

func TestNormalize(t *testing.T) {
	for i, tc := range normalizeTestCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			out := muc.Normalize(tc.in)
			if out != tc.out {
				t.Errorf("wrong output: want=%q, got=%q", tc.out, out)
			}
			if again := muc.Normalize(out); again != out {
				t.Errorf("normalize is not idempotent: %q became %q", out, again)
			}
			if strings.ContainsAny(out, ` "&'/:<>@`) {
				t.Errorf("normalized name %q contains stripped characters", out)
			}
		})
	}
}

func FuzzNormalize(f *testing.F) {
	for _, tc := range normalizeTestCases {
		f.Add(tc.in)
	}
	f.Fuzz(func(t *testing.T, in string) {
		out := muc.Normalize(in)
		if muc.Normalize(out) != out {
			t.Errorf("normalize is not idempotent for %q", in)
		}
		if !strings.ContainsAny(in, ` "&'/:<>@`) && out != in {
			t.Errorf("expected %q to be a fixed point, got %q", in, out)
		}
	})
}
