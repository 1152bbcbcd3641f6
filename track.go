package zone

import "unsafe"

// The tracking list is an external index of (payload, size) pairs in
// allocation order, consumed by the enumeration snapshot. Nodes live on the
// Go heap, never inside the region. Keeping it external is what lets the
// walkability invariant and the snapshot enumeration stay independent. It
// also means a tracking node pointer always fails the host-range check, so
// nodes can never be double-freed through the arena.
type trackNode struct {
	next *trackNode
	ptr  unsafe.Pointer
	size uintptr
}

type trackList struct {
	head  *trackNode
	tail  *trackNode
	count int
}

func (t *trackList) add(p unsafe.Pointer, size uintptr) {
	n := &trackNode{ptr: p, size: size}
	if t.tail == nil {
		t.head = n
	} else {
		t.tail.next = n
	}
	t.tail = n
	t.count++
}

// remove drops the node for p. Tracking is best-effort; removing an
// untracked pointer is a no-op.
func (t *trackList) remove(p unsafe.Pointer) {
	var prev *trackNode
	for n := t.head; n != nil; n = n.next {
		if n.ptr == p {
			if prev == nil {
				t.head = n.next
			} else {
				prev.next = n.next
			}
			if t.tail == n {
				t.tail = prev
			}
			t.count--
			return
		}
		prev = n
	}
}

// replace swaps the tracked pointer and size for old in place, preserving
// allocation order across reallocs.
func (t *trackList) replace(old, new unsafe.Pointer, size uintptr) {
	for n := t.head; n != nil; n = n.next {
		if n.ptr == old {
			n.ptr = new
			n.size = size
			return
		}
	}
	t.add(new, size)
}

// reset drops every node in bulk; the garbage collector reclaims them.
func (t *trackList) reset() {
	t.head = nil
	t.tail = nil
	t.count = 0
}

// payloads returns views of every tracked payload in allocation order.
func (t *trackList) payloads() [][]byte {
	out := make([][]byte, 0, t.count)
	for n := t.head; n != nil; n = n.next {
		out = append(out, unsafe.Slice((*byte)(n.ptr), n.size))
	}
	return out
}
