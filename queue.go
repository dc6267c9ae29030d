// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package chat

// unbounded connects the returned channels with a FIFO of unlimited size so
// that sends on in never wait for the reader of out.
// Closing in flushes the queue and then closes out.
// Once done is closed, anything left in the queue is dropped and out is
// closed.
func unbounded[T any](done <-chan struct{}) (chan<- T, <-chan T) {
	in := make(chan T)
	out := make(chan T)
	go func() {
		defer close(out)
		var queue []T
		for {
			if len(queue) == 0 {
				select {
				case v, ok := <-in:
					if !ok {
						return
					}
					queue = append(queue, v)
				case <-done:
					return
				}
				continue
			}
			select {
			case v, ok := <-in:
				if !ok {
					for _, v := range queue {
						select {
						case out <- v:
						case <-done:
							return
						}
					}
					return
				}
				queue = append(queue, v)
			case out <- queue[0]:
				var zero T
				queue[0] = zero
				queue = queue[1:]
			case <-done:
				return
			}
		}
	}()
	return in, out
}
