// Copyright 2021 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

//go:build !unix

package transport

import (
	"errors"
	"syscall"
)

func refused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func reset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
