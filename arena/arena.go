// Package arena sub-allocates the backing region as a bump allocator with
// per-block headers.
//
// Every block starts with a 16-byte header carrying the total block size, a
// magic sentinel and a free flag. Freed blocks stay in place; space is only
// reclaimed by a region restart. Walking the used prefix of the region and
// summing header sizes visits every block issued since the last restart and
// terminates exactly at the bump cursor.
package arena

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/chronicleforge/yendors-curse-sub001/region"
)

const (
	// AlignmentUnit is the power-of-two every block size and payload
	// address is a multiple of.
	AlignmentUnit = 16
	// HeaderSize is the size of the block header. It equals one alignment
	// unit so payloads inherit block alignment.
	HeaderSize = 16
	// Magic is the per-block sentinel.
	Magic uint32 = 0xDEADBEEF

	flagFree uint32 = 1 << 0
)

var (
	// ErrBadMagic indicates a header whose sentinel does not match; the
	// pointer is either foreign or the region is corrupt.
	ErrBadMagic = errors.New("arena: bad block magic")
	// ErrForeignPointer indicates a pointer outside the region.
	ErrForeignPointer = errors.New("arena: pointer outside region")
)

// IntegrityError reports where a region walk broke down.
type IntegrityError struct {
	Offset uintptr // byte offset of the offending header
	Blocks uint64  // blocks successfully visited before the failure
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("arena: integrity failure at offset %#x after %d blocks: %s",
		e.Offset, e.Blocks, e.Reason)
}

// Header is the decoded form of an on-region block header.
type Header struct {
	Size uintptr // total block size including the header
	Free bool
}

// PayloadSize returns the bytes available to the caller.
func (h Header) PayloadSize() uintptr { return h.Size - HeaderSize }

// AlignUp rounds n up to the next multiple of the alignment unit.
func AlignUp(n uintptr) uintptr {
	return (n + AlignmentUnit - 1) &^ uintptr(AlignmentUnit-1)
}

// Arena carves blocks out of a region. It is not safe for concurrent use.
type Arena struct {
	region *region.Region
	log    *slog.Logger
}

// New wires an Arena to its backing region.
func New(r *region.Region, logger *slog.Logger) *Arena {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Arena{
		region: r,
		log:    logger.With("subsystem", "arena"),
	}
}

// Region returns the backing region.
func (a *Arena) Region() *region.Region { return a.region }

// Alloc carves a block with n payload bytes and returns the payload
// pointer. The block footprint is align-up(HeaderSize+n, AlignmentUnit).
func (a *Arena) Alloc(n uintptr) (unsafe.Pointer, error) {
	total := AlignUp(HeaderSize + n)
	off, err := a.region.Bump(total)
	if err != nil {
		return nil, err
	}
	a.writeHeader(off, uint64(total), 0)
	a.region.NoteAlloc()
	return a.payloadPointer(off), nil
}

// Realloc grows or shrinks a block out of place. A nil pointer allocates; a
// zero size frees and returns nil. The old block is marked free, never
// reused; min(old, new) payload bytes are copied into the fresh block.
func (a *Arena) Realloc(p unsafe.Pointer, n uintptr) (unsafe.Pointer, error) {
	if p == nil {
		return a.Alloc(n)
	}
	if n == 0 {
		if err := a.Free(p); err != nil {
			return nil, err
		}
		return nil, nil
	}

	off, hdr, err := a.headerFor(p)
	if err != nil {
		return nil, err
	}

	np, err := a.Alloc(n)
	if err != nil {
		return nil, err
	}

	copyLen := hdr.PayloadSize()
	if n < copyLen {
		copyLen = n
	}
	copy(unsafe.Slice((*byte)(np), copyLen), unsafe.Slice((*byte)(p), copyLen))

	a.markFree(off)
	return np, nil
}

// Free marks the block at p as released. Nil is a no-op. A second free of
// the same block is a diagnostic no-op. Pointers outside the region report
// ErrForeignPointer so the caller can fall through to the platform heap.
func (a *Arena) Free(p unsafe.Pointer) error {
	if p == nil {
		return nil
	}
	off, hdr, err := a.headerFor(p)
	if err != nil {
		if errors.Is(err, ErrBadMagic) {
			a.log.Error("free of pointer with bad magic ignored",
				"ptr", fmt.Sprintf("%#x", uintptr(p)))
		}
		return err
	}
	if hdr.Free {
		a.log.Debug("double free ignored", "offset", fmt.Sprintf("%#x", off))
		return nil
	}
	a.markFree(off)
	return nil
}

// DupString copies s into a fresh block with a trailing NUL, matching the
// host's duplicate-string entry point.
func (a *Arena) DupString(s string) (unsafe.Pointer, error) {
	p, err := a.Alloc(uintptr(len(s)) + 1)
	if err != nil {
		return nil, err
	}
	buf := unsafe.Slice((*byte)(p), len(s)+1)
	copy(buf, s)
	buf[len(s)] = 0
	return p, nil
}

// PayloadSize returns the payload size of the block at p.
func (a *Arena) PayloadSize(p unsafe.Pointer) (uintptr, error) {
	_, hdr, err := a.headerFor(p)
	if err != nil {
		return 0, err
	}
	return hdr.PayloadSize(), nil
}

// Owns reports whether p lies inside the backing region.
func (a *Arena) Owns(p unsafe.Pointer) bool {
	return a.region.Contains(uintptr(p))
}

// Walk visits every block in [0, used) in address order. The callback
// receives the header byte offset and the decoded header; returning false
// stops the walk early. A malformed region reports an IntegrityError.
func (a *Arena) Walk(fn func(off uintptr, hdr Header) bool) error {
	if !a.region.Initialized() {
		return region.ErrNotInitialized
	}
	data := a.region.Bytes()
	used := a.region.Stats().Used

	var blocks uint64
	for off := uintptr(0); off < used; {
		if used-off < HeaderSize {
			return &IntegrityError{Offset: off, Blocks: blocks, Reason: "truncated header"}
		}
		size, magic, flags := a.readHeader(data, off)
		if magic != Magic {
			return &IntegrityError{
				Offset: off, Blocks: blocks,
				Reason: fmt.Sprintf("magic %#x, want %#x", magic, Magic),
			}
		}
		if size < HeaderSize || size%AlignmentUnit != 0 {
			return &IntegrityError{
				Offset: off, Blocks: blocks,
				Reason: fmt.Sprintf("bad block size %d", size),
			}
		}
		if off+uintptr(size) > used {
			return &IntegrityError{
				Offset: off, Blocks: blocks,
				Reason: fmt.Sprintf("block size %d overruns cursor %d", size, used),
			}
		}
		blocks++
		if !fn(off, Header{Size: uintptr(size), Free: flags&flagFree != 0}) {
			return nil
		}
		off += uintptr(size)
	}
	return nil
}

// CheckIntegrity walks the whole used prefix verifying every header.
// It returns the number of blocks visited.
func (a *Arena) CheckIntegrity() (uint64, error) {
	var blocks uint64
	err := a.Walk(func(uintptr, Header) bool {
		blocks++
		return true
	})
	if err != nil {
		var ie *IntegrityError
		if errors.As(err, &ie) {
			a.log.Error("integrity check failed",
				"offset", fmt.Sprintf("%#x", ie.Offset), "blocks", ie.Blocks)
		}
		return blocks, err
	}
	return blocks, nil
}

// PayloadBytes aliases the payload of the block at p as a byte slice.
func (a *Arena) PayloadBytes(p unsafe.Pointer) ([]byte, error) {
	n, err := a.PayloadSize(p)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), n), nil
}

func (a *Arena) payloadPointer(off uintptr) unsafe.Pointer {
	data := a.region.Bytes()
	return unsafe.Add(unsafe.Pointer(&data[0]), off+HeaderSize)
}

// headerFor locates and validates the header of the block whose payload
// starts at p.
func (a *Arena) headerFor(p unsafe.Pointer) (uintptr, Header, error) {
	addr := uintptr(p)
	if !a.region.Contains(addr) {
		return 0, Header{}, ErrForeignPointer
	}
	if addr-a.region.Base() < HeaderSize {
		return 0, Header{}, ErrBadMagic
	}
	off := addr - a.region.Base() - HeaderSize
	size, magic, flags := a.readHeader(a.region.Bytes(), off)
	if magic != Magic {
		return 0, Header{}, ErrBadMagic
	}
	return off, Header{Size: uintptr(size), Free: flags&flagFree != 0}, nil
}

// Header layout, little-endian: size u64, magic u32, flags u32.
// The encoding is fixed so whole-region snapshot images are byte-stable.

func (a *Arena) writeHeader(off uintptr, size uint64, flags uint32) {
	data := a.region.Bytes()
	binary.LittleEndian.PutUint64(data[off:], size)
	binary.LittleEndian.PutUint32(data[off+8:], Magic)
	binary.LittleEndian.PutUint32(data[off+12:], flags)
}

func (a *Arena) readHeader(data []byte, off uintptr) (size uint64, magic, flags uint32) {
	size = binary.LittleEndian.Uint64(data[off:])
	magic = binary.LittleEndian.Uint32(data[off+8:])
	flags = binary.LittleEndian.Uint32(data[off+12:])
	return size, magic, flags
}

func (a *Arena) markFree(off uintptr) {
	data := a.region.Bytes()
	flags := binary.LittleEndian.Uint32(data[off+12:])
	binary.LittleEndian.PutUint32(data[off+12:], flags|flagFree)
	a.region.NoteFree()
}
