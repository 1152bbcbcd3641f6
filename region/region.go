// Package region manages the single contiguous virtual-memory range that
// backs the zone allocator.
//
// The region is acquired once, preferably at a caller-chosen absolute base
// address, and lives until Close. Placement falls back in documented steps
// when the preferred base is unavailable; the resulting placement mode
// decides whether whole-region snapshots survive process restarts.
package region

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unsafe"
)

// Reference configuration constants. Capacity values are what the host
// program requests on the two supported device classes.
const (
	// PreferredBase is the absolute address requested for fixed placement.
	PreferredBase uintptr = 0x300000000

	// DefaultCapacity is the capacity requested on simulator-class hosts.
	DefaultCapacity uintptr = 128 << 20
	// DeviceCapacity is the capacity requested on device-class hosts.
	DeviceCapacity uintptr = 96 << 20
	// MinCapacity is the final fallback capacity.
	MinCapacity uintptr = 32 << 20
)

var (
	// ErrNotInitialized is returned when an operation requires a mapped
	// region and Init has not succeeded yet.
	ErrNotInitialized = errors.New("region: not initialized")
	// ErrResourceExhausted is returned when every placement strategy failed.
	ErrResourceExhausted = errors.New("region: address space exhausted")
	// ErrOutOfSpace is returned when a bump request exceeds the remaining
	// capacity.
	ErrOutOfSpace = errors.New("region: out of space")
	// ErrFixedUnsupported is returned by the fixed placement strategies on
	// platforms without fixed-address anonymous mappings.
	ErrFixedUnsupported = errors.New("region: fixed-address mapping unsupported on this platform")
)

// PlacementMode records how the mapping was placed.
type PlacementMode uint8

const (
	// PlacementFixed means the region sits exactly at the preferred base.
	// Whole-region snapshots taken in this mode are valid across processes.
	PlacementFixed PlacementMode = iota
	// PlacementDynamic means the platform chose the address. Snapshots are
	// session-local.
	PlacementDynamic
)

func (m PlacementMode) String() string {
	if m == PlacementFixed {
		return "fixed"
	}
	return "dynamic"
}

// Budget is an optional hard limit on mapped memory.
// It mirrors the acquire/release contract of a weighted semaphore.
type Budget interface {
	AcquireMemory(ctx context.Context, amount int64) error
	ReleaseMemory(amount int64)
}

// Config configures region acquisition.
type Config struct {
	// PreferredBase is the absolute address for fixed placement.
	// Zero selects PreferredBase.
	PreferredBase uintptr

	// Capacity is the requested mapping size in bytes.
	// Zero selects DefaultCapacity.
	Capacity uintptr

	// MinCapacity is the reduced size used by the final fallback strategy.
	// Zero selects MinCapacity.
	MinCapacity uintptr

	// ForceDynamic skips the fixed placement strategies. Useful under
	// sandboxes that deny the preferred base, and in tests.
	ForceDynamic bool

	// Budget, if set, is charged for the mapped capacity.
	Budget Budget

	// Logger receives placement warnings. Nil disables logging.
	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of the region counters.
type Stats struct {
	Used   uintptr
	Allocs uint64
}

// Region is the process-wide backing range. Once Init succeeds, base and
// capacity never change for the lifetime of the process; the bump cursor
// only moves forward within a session.
//
// Region is not safe for concurrent use.
type Region struct {
	cfg Config
	log *slog.Logger

	data     []byte
	base     uintptr
	capacity uintptr
	used     uintptr
	allocs   uint64
	mode     PlacementMode
	release  func() error
	mapped   bool
}

// New prepares a Region with the given configuration. No memory is mapped
// until Init.
func New(cfg Config) *Region {
	if cfg.PreferredBase == 0 {
		cfg.PreferredBase = PreferredBase
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MinCapacity == 0 {
		cfg.MinCapacity = MinCapacity
	}
	if cfg.MinCapacity > cfg.Capacity {
		cfg.MinCapacity = cfg.Capacity
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Region{
		cfg: cfg,
		log: log.With("subsystem", "region"),
	}
}

// Init acquires the backing mapping using the ordered placement strategies:
//
//  1. forced mapping at the preferred base (strict placement)
//  2. hinted mapping at the preferred base (placement decided by the result)
//  3. unplaced mapping of the full capacity
//  4. unplaced mapping of the reduced capacity
//
// The first success wins and records the placement mode. A previous mapping
// is released before the attempt, so Init may be called again after a
// failed session. All strategies failing reports ErrResourceExhausted.
func (r *Region) Init(ctx context.Context) error {
	if r.mapped {
		// Release the old range so the forced strategy can reclaim the
		// preferred base.
		r.unmap()
	}

	capacity := r.cfg.Capacity
	if r.cfg.Budget != nil {
		if err := r.cfg.Budget.AcquireMemory(ctx, int64(capacity)); err != nil {
			return fmt.Errorf("region: memory budget: %w", err)
		}
	}

	data, release, mode, err := r.acquire(capacity)
	if err != nil {
		// Final fallback: reduced size at any address.
		reduced := r.cfg.MinCapacity
		if reduced < capacity {
			r.log.Warn("full-size mapping failed, retrying reduced",
				"requested", capacity, "reduced", reduced, "error", err)
			if d, rel, e := mapAnywhere(reduced); e == nil {
				if r.cfg.Budget != nil {
					r.cfg.Budget.ReleaseMemory(int64(capacity - reduced))
				}
				capacity = reduced
				data, release, mode, err = d, rel, PlacementDynamic, nil
			}
		}
		if err != nil {
			if r.cfg.Budget != nil {
				r.cfg.Budget.ReleaseMemory(int64(capacity))
			}
			return fmt.Errorf("%w: %v", ErrResourceExhausted, err)
		}
	}

	r.data = data
	r.base = uintptr(unsafe.Pointer(&data[0]))
	r.capacity = capacity
	r.release = release
	r.mode = mode
	r.used = 0
	r.allocs = 0
	r.mapped = true

	// Fresh anonymous mappings (and fresh heap slices on the fallback
	// path) are zero-filled, satisfying the zeroed-on-init contract.

	if mode == PlacementDynamic {
		r.log.Warn("region placed dynamically; snapshots are session-local",
			"base", fmt.Sprintf("%#x", r.base),
			"preferred", fmt.Sprintf("%#x", r.cfg.PreferredBase))
	} else {
		r.log.Info("region mapped at preferred base",
			"base", fmt.Sprintf("%#x", r.base), "capacity", capacity)
	}
	return nil
}

// acquire runs strategies 1-3 for the given capacity.
func (r *Region) acquire(capacity uintptr) ([]byte, func() error, PlacementMode, error) {
	var firstErr error

	if !r.cfg.ForceDynamic {
		// Strategy 1: strict placement at the preferred base.
		data, release, err := mapFixed(r.cfg.PreferredBase, capacity)
		if err == nil {
			return data, release, PlacementFixed, nil
		}
		firstErr = err
		r.log.Warn("forced fixed mapping failed", "error", err)

		// Strategy 2: non-binding hint. The kernel may place the mapping
		// elsewhere; the result decides the mode.
		data, release, err = mapHinted(r.cfg.PreferredBase, capacity)
		if err == nil {
			base := uintptr(unsafe.Pointer(&data[0]))
			if base == r.cfg.PreferredBase {
				return data, release, PlacementFixed, nil
			}
			return data, release, PlacementDynamic, nil
		}
		r.log.Warn("hinted fixed mapping failed", "error", err)
	}

	// Strategy 3: full capacity at any address.
	data, release, err := mapAnywhere(capacity)
	if err == nil {
		return data, release, PlacementDynamic, nil
	}
	if firstErr == nil {
		firstErr = err
	}
	return nil, nil, PlacementDynamic, firstErr
}

// Initialized reports whether Init has succeeded.
func (r *Region) Initialized() bool { return r.mapped }

// Restart zeroes the full capacity and resets the counters. The whole range
// is cleared, not just the used prefix, so stale headers beyond a future
// cursor can never masquerade as blocks. A restart before Init is a warned
// no-op.
func (r *Region) Restart() {
	if !r.mapped {
		r.log.Warn("restart before init ignored")
		return
	}
	clear(r.data)
	r.used = 0
	r.allocs = 0
	r.log.Info("region restarted", "capacity", r.capacity)
}

// Bump advances the cursor by total bytes and returns the previous offset.
func (r *Region) Bump(total uintptr) (uintptr, error) {
	if !r.mapped {
		return 0, ErrNotInitialized
	}
	if r.used+total > r.capacity {
		return 0, fmt.Errorf("%w: used %d + %d exceeds capacity %d",
			ErrOutOfSpace, r.used, total, r.capacity)
	}
	off := r.used
	r.used += total
	return off, nil
}

// NoteAlloc records an issued block.
func (r *Region) NoteAlloc() { r.allocs++ }

// NoteFree records a released block.
func (r *Region) NoteFree() {
	if r.allocs > 0 {
		r.allocs--
	}
}

// Stats returns the bump cursor and live allocation count.
func (r *Region) Stats() Stats {
	return Stats{Used: r.used, Allocs: r.allocs}
}

// Contains reports whether p lies inside [base, base+capacity).
// This is the exact provenance check the allocator's free relies on.
func (r *Region) Contains(p uintptr) bool {
	return r.mapped && p >= r.base && p < r.base+r.capacity
}

// Base returns the absolute address of the mapping, or 0 before Init.
func (r *Region) Base() uintptr { return r.base }

// Capacity returns the mapped size in bytes.
func (r *Region) Capacity() uintptr { return r.capacity }

// Mode returns the placement mode recorded by Init.
func (r *Region) Mode() PlacementMode { return r.mode }

// Bytes returns the full mapped range. The slice aliases the region.
func (r *Region) Bytes() []byte {
	if !r.mapped {
		return nil
	}
	return r.data
}

// UsedBytes returns the used prefix [base, base+used).
func (r *Region) UsedBytes() []byte {
	if !r.mapped {
		return nil
	}
	return r.data[:r.used]
}

// RestoreCounters overwrites the cursor and allocation count after a
// snapshot image has been written into the region.
func (r *Region) RestoreCounters(used uintptr, allocs uint64) error {
	if !r.mapped {
		return ErrNotInitialized
	}
	if used > r.capacity {
		return fmt.Errorf("region: restored cursor %d exceeds capacity %d", used, r.capacity)
	}
	r.used = used
	r.allocs = allocs
	return nil
}

// Close releases the mapping and any budget reservation. The region can be
// re-initialized afterwards, though in the host program this only happens
// at process exit.
func (r *Region) Close() error {
	if !r.mapped {
		return nil
	}
	err := r.unmap()
	if r.cfg.Budget != nil {
		r.cfg.Budget.ReleaseMemory(int64(r.capacity))
	}
	return err
}

func (r *Region) unmap() error {
	var err error
	if r.release != nil {
		err = r.release()
	}
	r.data = nil
	r.base = 0
	r.capacity = 0
	r.used = 0
	r.allocs = 0
	r.release = nil
	r.mapped = false
	return err
}
