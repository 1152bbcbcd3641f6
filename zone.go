package zone

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"unsafe"

	"github.com/chronicleforge/yendors-curse-sub001/arena"
	"github.com/chronicleforge/yendors-curse-sub001/region"
	"github.com/chronicleforge/yendors-curse-sub001/snapshot"
)

// hostWordSize is the rounding unit the host's allocation entry points
// expect. The arena's own 16-byte block alignment is independent of it.
const hostWordSize = unsafe.Sizeof(uintptr(0))

// Stats is a point-in-time view of the allocator.
type Stats struct {
	Used     uintptr
	Allocs   uint64
	Capacity uintptr
	Base     uintptr
	Mode     region.PlacementMode
	Phase    Phase
}

// Zone is the host allocation façade: the generic allocate / reallocate /
// free / duplicate-string entry points the host program links against,
// backed by the region-and-arena pair.
//
// Allocation never returns nil. Failure, whether region exhaustion or
// initialisation failing after every fallback, is routed to the host's
// panic entry point. Zone is single-writer; no operation may run
// concurrently with another.
type Zone struct {
	opts Options
	log  *Logger

	region *region.Region
	arena  *arena.Arena
	track  trackList

	phase    Phase
	tracking bool
}

// New creates a Zone. No memory is mapped until Init or the first
// allocation.
func New(optFns ...func(*Options)) *Zone {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	log := opts.Logger
	if log == nil {
		log = NoopLogger()
	}

	r := region.New(region.Config{
		PreferredBase: opts.PreferredBase,
		Capacity:      opts.Capacity,
		MinCapacity:   opts.MinCapacity,
		ForceDynamic:  opts.ForceDynamic,
		Budget:        opts.Controller,
		Logger:        log.Logger,
	})

	return &Zone{
		opts:     opts,
		log:      log.WithSubsystem("zone"),
		region:   r,
		arena:    arena.New(r, log.Logger),
		phase:    PhaseCharacterCreation,
		tracking: opts.TrackAllocations || opts.SnapshotMode == SnapshotEnumeration,
	}
}

// Init maps the region eagerly. Calling it is optional; the first
// allocation initialises lazily (and fatally on failure).
func (z *Zone) Init(ctx context.Context) error {
	if z.region.Initialized() {
		return nil
	}
	if err := z.region.Init(ctx); err != nil {
		return err
	}
	z.phase = PhaseCharacterCreation
	return nil
}

// Alloc returns a pointer to n usable bytes inside the region. It never
// returns nil; failure is fatal.
func (z *Zone) Alloc(n uintptr) unsafe.Pointer {
	z.mustInit()
	p, err := z.arena.Alloc(alignHostWord(n))
	if err != nil {
		z.fatal(fmt.Sprintf("alloc of %d bytes failed: %v", n, err))
	}
	if z.tracking {
		z.track.add(p, alignHostWord(n))
	}
	return p
}

// AllocClear is the calloc-shaped variant: count elements of size bytes,
// zero-filled. The region never reuses space, so fresh blocks are already
// zero; the explicit clear guards reloaded images.
func (z *Zone) AllocClear(count, size uintptr) unsafe.Pointer {
	if size != 0 && count > ^uintptr(0)/size {
		z.fatal(fmt.Sprintf("calloc overflow: %d * %d", count, size))
	}
	total := count * size
	p := z.Alloc(total)
	clear(unsafe.Slice((*byte)(p), total))
	return p
}

// Realloc resizes the block at p out of place. A nil p allocates; a zero n
// frees and returns nil. The input pointer must be allocator-owned; a
// foreign or corrupt pointer is fatal, matching the block-magic check.
func (z *Zone) Realloc(p unsafe.Pointer, n uintptr) unsafe.Pointer {
	z.mustInit()
	rounded := n
	if n != 0 {
		rounded = alignHostWord(n)
	}
	np, err := z.arena.Realloc(p, rounded)
	if err != nil {
		z.fatal(fmt.Sprintf("realloc of %d bytes failed: %v", n, err))
	}
	if z.tracking {
		switch {
		case p == nil && np != nil:
			z.track.add(np, rounded)
		case n == 0:
			z.track.remove(p)
		default:
			z.track.replace(p, np, rounded)
		}
	}
	return np
}

// Free releases the block at p. Nil is a no-op. Pointers outside the region
// were issued by the platform heap, not the arena, and are handed to the
// platform-free hook; the host mixes both kinds.
func (z *Zone) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	if !z.region.Contains(uintptr(p)) {
		if z.opts.PlatformFree != nil {
			z.opts.PlatformFree(p)
		}
		return
	}
	if err := z.arena.Free(p); err != nil {
		return
	}
	if z.tracking {
		z.track.remove(p)
	}
}

// DupString copies s into the region with a trailing NUL and returns the
// copy. Failure is fatal.
func (z *Zone) DupString(s string) unsafe.Pointer {
	z.mustInit()
	p, err := z.arena.DupString(s)
	if err != nil {
		z.fatal(fmt.Sprintf("strdup of %d bytes failed: %v", len(s)+1, err))
	}
	if z.tracking {
		z.track.add(p, uintptr(len(s))+1)
	}
	return p
}

// GoString reads the NUL-terminated string at p back out of the region.
func (z *Zone) GoString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	buf, err := z.arena.PayloadBytes(p)
	if err != nil {
		return ""
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

// SaveGameAlloc is the savegame-path alias of Alloc. Under fixed-address
// placement the region itself persists, so the alias is indistinguishable
// from the primary pair; it exists because the host links against the name.
func (z *Zone) SaveGameAlloc(n uintptr) unsafe.Pointer { return z.Alloc(n) }

// SaveGameFree is the savegame-path alias of Free.
func (z *Zone) SaveGameFree(p unsafe.Pointer) { z.Free(p) }

// SwitchPhase records the host lifecycle phase. Purely diagnostic here: no
// memory is partitioned by phase under fixed-address placement.
func (z *Zone) SwitchPhase(p Phase) {
	if p == z.phase {
		return
	}
	z.log.Info("phase switch", "from", z.phase.String(), "to", p.String())
	z.phase = p
}

// Phase returns the current lifecycle phase.
func (z *Zone) Phase() Phase { return z.phase }

// Restart clears the whole region, drops the tracking list and returns to
// the character-creation phase. The caller must have quiesced: any payload
// pointer issued before the restart is invalid after it.
func (z *Zone) Restart() {
	z.region.Restart()
	z.track.reset()
	z.phase = PhaseCharacterCreation
}

// Stats returns the allocator counters.
func (z *Zone) Stats() Stats {
	rs := z.region.Stats()
	return Stats{
		Used:     rs.Used,
		Allocs:   rs.Allocs,
		Capacity: z.region.Capacity(),
		Base:     z.region.Base(),
		Mode:     z.region.Mode(),
		Phase:    z.phase,
	}
}

// CheckIntegrity walks the used prefix verifying every block header and
// returns the number of blocks visited.
func (z *Zone) CheckIntegrity() (uint64, error) {
	return z.arena.CheckIntegrity()
}

// Owns reports whether p lies inside the region.
func (z *Zone) Owns(p unsafe.Pointer) bool {
	return z.region.Contains(uintptr(p))
}

// Region exposes the backing region, e.g. for a snapshot.Manager.
func (z *Zone) Region() *region.Region { return z.region }

// TrackedPayloads returns views of every tracked payload in allocation
// order, the input of an enumeration snapshot.
func (z *Zone) TrackedPayloads() [][]byte { return z.track.payloads() }

// Save writes a snapshot in the configured mode.
func (z *Zone) Save(w io.Writer) error {
	if !z.region.Initialized() {
		return region.ErrNotInitialized
	}
	switch z.opts.SnapshotMode {
	case SnapshotEnumeration:
		return snapshot.WriteBlocks(w, z.track.payloads())
	default:
		return snapshot.WriteRegion(w, z.region, z.opts.Compression)
	}
}

// Load rehydrates from a snapshot, recognizing both containers by magic.
//
// A whole-region file loads only under compatible placement and restores
// the region image byte for byte; the returned LoadInfo carries the header
// and the checksum verdict. An enumeration file clears the region and
// replays each payload as a fresh allocation (pointer identity is NOT
// preserved) and then enters the game phase; its LoadInfo is nil.
func (z *Zone) Load(r io.Reader) (*snapshot.LoadInfo, error) {
	if err := z.Init(context.Background()); err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)
	magic, err := br.Peek(8)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", snapshot.ErrTruncated, err)
	}
	format, err := snapshot.DetectFormat(magic)
	if err != nil {
		return nil, err
	}

	if format == snapshot.FormatRegion {
		info, err := snapshot.ReadRegion(br, z.region, z.log.Logger)
		if err != nil {
			return nil, err
		}
		z.track.reset()
		z.phase = PhaseCharacterCreation
		return info, nil
	}

	// Enumeration replay. Previous contents are destroyed first; the
	// tracking list is rebuilt as the allocations are reissued.
	z.Restart()
	err = snapshot.ReadBlocks(br, func(payload []byte) error {
		p, err := z.arena.Alloc(uintptr(len(payload)))
		if err != nil {
			return err
		}
		copy(unsafe.Slice((*byte)(p), len(payload)), payload)
		z.track.add(p, uintptr(len(payload)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	z.phase = PhaseGame
	z.log.Info("enumeration snapshot loaded", "blocks", z.track.count)
	return nil, nil
}

// Close releases the mapping. In the host program this happens only at
// process exit.
func (z *Zone) Close() error {
	z.track.reset()
	return z.region.Close()
}

// mustInit initialises the region lazily, routing failure to the host's
// panic entry point.
func (z *Zone) mustInit() {
	if z.region.Initialized() {
		return
	}
	if err := z.region.Init(context.Background()); err != nil {
		z.fatal(fmt.Sprintf("region init failed: %v", err))
	}
	z.phase = PhaseCharacterCreation
}

func (z *Zone) fatal(msg string) {
	z.log.Error("fatal allocation failure", "reason", msg)
	if z.opts.PanicFunc != nil {
		z.opts.PanicFunc(msg)
	}
	panic("zone: " + msg)
}

func alignHostWord(n uintptr) uintptr {
	if n == 0 {
		n = hostWordSize
	}
	return (n + hostWordSize - 1) &^ (hostWordSize - 1)
}
