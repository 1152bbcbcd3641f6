// Package zone provides a fixed-address arena allocator with whole-arena
// snapshot persistence.
//
// Every allocation is placed inside one contiguous virtual-memory region,
// preferably mapped at a process-stable absolute base address. Because the
// region never moves and freed blocks are never reused, the used prefix of
// the region can be written to a file and read back byte for byte; after a
// reload under the same placement, every pointer the host program ever
// received, including absolute pointers stored inside allocated blocks,
// is valid again without any relocation pass.
//
// # Quick start
//
//	z := zone.New()
//	defer z.Close()
//
//	p := z.Alloc(128)          // never nil; allocation failure is fatal
//	q := z.Realloc(p, 256)     // out-of-place, old block marked free
//	s := z.DupString("Rodney") // NUL-terminated copy inside the region
//	z.Free(q)
//
//	var buf bytes.Buffer
//	_ = z.Save(&buf)           // whole-region snapshot
//	_, _ = z.Load(&buf)        // byte-identical rehydration
//
// The allocator is intentionally not a general-purpose heap: there is no
// free-list, no coalescing and no per-block reclamation. Free marks a block
// and nothing more; space comes back only through Restart, which clears the
// whole region at once. This is what keeps the snapshot invariants simple:
// the bump cursor is always a valid walk boundary.
//
// Zone is single-writer by contract and performs no locking.
package zone
