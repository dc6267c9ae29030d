// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Classes of transport failure.
var (
	ErrConnectionRefused = errors.New("transport: connection refused")
	ErrConnectionClosed  = errors.New("transport: connection closed")
	ErrConnectionTimeout = errors.New("transport: connection timeout")
)

// Error is a transport failure along with its class.
type Error struct {
	Class error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Class.Error()
	}
	return fmt.Sprintf("%v: %v", e.Class, e.Err)
}

// Is reports whether target is the class of the error.
func (e *Error) Is(target error) bool {
	return target == e.Class
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify wraps err in an Error with the class that best describes it.
// Errors that are already classified are returned unchanged.
// Classify returns nil if err is nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Class: classOf(err), Err: err}
}

func classOf(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ErrConnectionTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrConnectionTimeout
	case refused(err):
		return ErrConnectionRefused
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed), reset(err):
		return ErrConnectionClosed
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ErrConnectionRefused
	}
	return ErrConnectionClosed
}
