// SPDX-License-Identifier: MPL-2.0

// Package ordered provides a FIFO that holds values until they are complete
// and releases them only as a contiguous complete prefix, so that values
// never overtake an earlier value that is still being assembled.
package ordered

type (
	// Slot is one queued value and its completion flag.
	Slot[T any] struct {
		value    T
		complete bool
	}

	// Buffer is an arrival-ordered queue of slots. The zero value is ready to
	// use. A Buffer is owned by a single correlator and is not safe for
	// concurrent use.
	Buffer[T any] struct {
		slots []*Slot[T]
	}
)

// Value returns a pointer to the slot's value for in-place updates.
func (s *Slot[T]) Value() *T { return &s.value }

// Complete marks the slot as complete.
func (s *Slot[T]) Complete() { s.complete = true }

// IsComplete reports whether the slot has been completed.
func (s *Slot[T]) IsComplete() bool { return s.complete }

// Push appends v and returns its slot.
func (b *Buffer[T]) Push(v T, complete bool) *Slot[T] {
	s := &Slot[T]{value: v, complete: complete}
	b.slots = append(b.slots, s)
	return s
}

// Len returns the number of queued slots.
func (b *Buffer[T]) Len() int { return len(b.slots) }

// Last returns the most recently pushed slot, or nil when empty.
func (b *Buffer[T]) Last() *Slot[T] {
	if len(b.slots) == 0 {
		return nil
	}
	return b.slots[len(b.slots)-1]
}

// FindPending returns the oldest incomplete slot whose value satisfies match.
func (b *Buffer[T]) FindPending(match func(T) bool) *Slot[T] {
	for _, s := range b.slots {
		if !s.complete && match(s.value) {
			return s
		}
	}
	return nil
}

// Drain removes and returns the contiguous complete prefix.
func (b *Buffer[T]) Drain() []T {
	n := 0
	for n < len(b.slots) && b.slots[n].complete {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	for i := range n {
		out[i] = b.slots[i].value
	}
	b.slots = append(b.slots[:0], b.slots[n:]...)
	return out
}

// Close empties the buffer. Complete values are returned in arrival order as
// done, including those queued behind an incomplete slot; incomplete values
// are returned as dropped.
func (b *Buffer[T]) Close() (done, dropped []T) {
	for _, s := range b.slots {
		if s.complete {
			done = append(done, s.value)
		} else {
			dropped = append(dropped, s.value)
		}
	}
	b.slots = nil
	return done, dropped
}
