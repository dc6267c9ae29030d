// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package muc

import (
	"strings"
)

var nameReplacer = strings.NewReplacer(
	" ", "_",
	`"`, "",
	"&", "",
	"'", "",
	"/", "",
	":", "",
	"<", "",
	">", "",
	"@", "",
)

// Normalize returns the canonical form of a room name.
// Spaces become underscores and the characters " & ' / : < > @ are removed.
// Normalize is idempotent.
func Normalize(name string) string {
	return nameReplacer.Replace(name)
}
