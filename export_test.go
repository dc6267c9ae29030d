// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

import (
	"mellium.im/chat/internal/clock"
)

// WithClock returns a copy of cfg that drives timers from c.
func WithClock(cfg Config, c clock.Clock) Config {
	cfg.clock = c
	return cfg
}
