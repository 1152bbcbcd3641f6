package snapshot

import (
	"errors"
	"fmt"

	"github.com/chronicleforge/yendors-curse-sub001/region"
)

// File magics, 8 bytes each.
var (
	magicRegion = [8]byte{'N', 'H', 'F', 'I', 'X', 'E', 'D', 0}
	magicEnumV2 = [8]byte{'N', 'H', 'Z', 'O', 'N', 'E', '0', '2'}
	magicEnumV1 = [8]byte{'N', 'H', 'Z', 'O', 'N', 'E', '0', '1'}
)

// RegionVersion is the current whole-region format version.
const RegionVersion uint32 = 1

// Header flag bits. Bits 8-15 carry the compression codec id.
const (
	// FlagFixedPlacement records that the region sat at its preferred
	// fixed base when the snapshot was taken.
	FlagFixedPlacement uint32 = 1 << 0

	compressionShift = 8
	compressionMask  = 0xff << compressionShift
)

var (
	// ErrBadMagic is returned when a file does not start with a known magic.
	ErrBadMagic = errors.New("snapshot: unrecognized file magic")
	// ErrTruncated is returned when a file ends mid-record.
	ErrTruncated = errors.New("snapshot: truncated file")
)

// BadVersionError reports an unsupported whole-region format version.
type BadVersionError struct {
	Version uint32
}

func (e *BadVersionError) Error() string {
	return fmt.Sprintf("snapshot: unsupported format version %d (want %d)", e.Version, RegionVersion)
}

// PlacementMismatchError reports a whole-region load rejected because the
// saved placement mode and the current one cannot exchange pointers.
type PlacementMismatchError struct {
	SavedFixed  bool
	CurrentMode region.PlacementMode
}

func (e *PlacementMismatchError) Error() string {
	saved := "dynamic"
	if e.SavedFixed {
		saved = "fixed"
	}
	return fmt.Sprintf("snapshot: placement mismatch: saved %s, current %s", saved, e.CurrentMode)
}

// BaseMismatchError reports a dynamic-placement load whose saved base
// differs from the current mapping.
type BaseMismatchError struct {
	Saved   uint64
	Current uint64
}

func (e *BaseMismatchError) Error() string {
	return fmt.Sprintf("snapshot: dynamic base mismatch: saved %#x, current %#x", e.Saved, e.Current)
}

// TooLargeError reports a saved image that does not fit the current region.
type TooLargeError struct {
	Used     uint64
	Capacity uint64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("snapshot: image of %d bytes exceeds region capacity %d", e.Used, e.Capacity)
}

// RegionHeader is the decoded whole-region file header. All file fields are
// little-endian; pointer- and size-typed values are fixed at 64 bits so
// images are interchangeable between 64-bit hosts.
type RegionHeader struct {
	Version  uint32
	Flags    uint32
	Base     uint64
	Used     uint64
	Allocs   uint64
	Checksum uint64
}

// Fixed reports whether the snapshot was taken under fixed placement.
func (h RegionHeader) Fixed() bool { return h.Flags&FlagFixedPlacement != 0 }

// Compression returns the codec the region image was written with.
func (h RegionHeader) Compression() Compression {
	return Compression((h.Flags & compressionMask) >> compressionShift)
}

// regionHeaderSize is the encoded header length including the magic.
const regionHeaderSize = 8 + 4 + 4 + 8 + 8 + 8 + 8

// enumHeaderSize is magic + block-count + total-size.
const enumHeaderSize = 8 + 8 + 8
