// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package clock abstracts the passage of time so that keep-alives and request
// timeouts can be tested deterministically.
package clock // import "mellium.im/chat/internal/clock"

import "time"

// Clock is the subset of the time package used by the session.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d then calls f in its own goroutine (real clock) or
	// synchronously from Advance (fake clock).
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a ticker that delivers ticks every d.
	// It panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C.
// C has a capacity of one and ticks are dropped if the reader falls behind.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker.
// It does not close C.
func (t *Ticker) Stop() { t.stop() }

// Timer is a pending call created by AfterFunc.
type Timer struct {
	stop func() bool
}

// Stop prevents the timer from firing.
// It reports whether the call stopped the timer.
func (t *Timer) Stop() bool { return t.stop() }

// Real returns a clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	return &Timer{stop: time.AfterFunc(d, f).Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
