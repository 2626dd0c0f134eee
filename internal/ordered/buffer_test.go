// SPDX-License-Identifier: MPL-2.0

package ordered

import (
	"slices"
	"testing"
)

func TestBuffer_DrainStopsAtIncomplete(t *testing.T) {
	t.Parallel()

	var b Buffer[string]
	b.Push("a", true)
	pending := b.Push("b", false)
	b.Push("c", true)

	if got := b.Drain(); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("Drain() = %v, want [a]", got)
	}
	if got := b.Drain(); got != nil {
		t.Fatalf("Drain() while blocked = %v, want nil", got)
	}

	*pending.Value() += "!"
	pending.Complete()
	if got := b.Drain(); !slices.Equal(got, []string{"b!", "c"}) {
		t.Errorf("Drain() after completion = %v, want [b! c]", got)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestBuffer_FindPendingOldestMatch(t *testing.T) {
	t.Parallel()

	type entry struct {
		pid  int
		name string
	}
	var b Buffer[entry]
	b.Push(entry{1, "read"}, false)
	b.Push(entry{2, "execve"}, true)
	first := b.Push(entry{2, "execve"}, false)
	b.Push(entry{2, "execve"}, false)

	got := b.FindPending(func(e entry) bool { return e.pid == 2 && e.name == "execve" })
	if got != first {
		t.Fatalf("FindPending() returned %+v, want the oldest incomplete match", got)
	}
	if b.FindPending(func(e entry) bool { return e.pid == 9 }) != nil {
		t.Error("FindPending() with no match should return nil")
	}
	if b.Last() == first || b.Last().IsComplete() {
		t.Error("Last() should be the newest pending slot")
	}
}

func TestBuffer_Close(t *testing.T) {
	t.Parallel()

	var b Buffer[int]
	b.Push(1, false)
	b.Push(2, true)
	b.Push(3, false)
	b.Push(4, true)

	done, dropped := b.Close()
	if !slices.Equal(done, []int{2, 4}) || !slices.Equal(dropped, []int{1, 3}) {
		t.Errorf("Close() = %v, %v; want [2 4], [1 3]", done, dropped)
	}
	if b.Len() != 0 || b.Last() != nil {
		t.Error("Close() should empty the buffer")
	}
}
