package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/chronicleforge/yendors-curse-sub001/region"
)

// Format identifies the container a snapshot file uses.
type Format uint8

const (
	// FormatRegion is the whole-region image ("NHFIXED").
	FormatRegion Format = iota
	// FormatEnum is the enumeration container ("NHZONE02", "NHZONE01").
	FormatEnum
)

// DetectFormat classifies a file by its first 8 bytes.
func DetectFormat(magic []byte) (Format, error) {
	if len(magic) < 8 {
		return 0, ErrTruncated
	}
	var m [8]byte
	copy(m[:], magic)
	switch m {
	case magicRegion:
		return FormatRegion, nil
	case magicEnumV2, magicEnumV1:
		return FormatEnum, nil
	default:
		return 0, fmt.Errorf("%w: % x", ErrBadMagic, magic[:8])
	}
}

// LoadInfo describes the outcome of a successful whole-region load.
type LoadInfo struct {
	Header RegionHeader
	// ChecksumOK is false when the recomputed checksum differed from the
	// stored one. The load still succeeded; the mismatch is a warning.
	ChecksumOK bool
}

// WriteRegion writes the whole-region snapshot of r to w: the header
// followed by the bytes of [base, base+used), optionally compressed.
// The checksum always covers the uncompressed image. The region itself is
// not mutated.
func WriteRegion(w io.Writer, r *region.Region, comp Compression) error {
	if !r.Initialized() {
		return region.ErrNotInitialized
	}
	if !comp.valid() {
		return fmt.Errorf("snapshot: unknown compression codec %d", comp)
	}

	image := r.UsedBytes()
	stats := r.Stats()

	hdr := RegionHeader{
		Version:  RegionVersion,
		Flags:    uint32(comp) << compressionShift,
		Base:     uint64(r.Base()),
		Used:     uint64(len(image)),
		Allocs:   stats.Allocs,
		Checksum: Sum(image),
	}
	if r.Mode() == region.PlacementFixed {
		hdr.Flags |= FlagFixedPlacement
	}

	if _, err := w.Write(encodeRegionHeader(hdr)); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}

	cw, err := compressWriter(w, comp)
	if err != nil {
		return err
	}
	if _, err := cw.Write(image); err != nil {
		_ = cw.Close()
		return fmt.Errorf("snapshot: write region image: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("snapshot: flush region image: %w", err)
	}
	return nil
}

// ReadRegion rehydrates r from a whole-region snapshot.
//
// Compatibility is decided before any mutation: a fixed-placement snapshot
// loads only into a fixed-placement region, and a dynamic one only into a
// dynamic region mapped at the same base. A rejected load leaves r
// untouched. Once accepted, the region is zeroed, the image is read into
// it, and the cursor and allocation count are restored; an IO failure at
// that point leaves the region zeroed. A checksum mismatch is surfaced as
// a warning, not a failure.
func ReadRegion(rd io.Reader, r *region.Region, logger *slog.Logger) (*LoadInfo, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("subsystem", "snapshot")

	if !r.Initialized() {
		return nil, region.ErrNotInitialized
	}

	var buf [regionHeaderSize]byte
	if _, err := io.ReadFull(rd, buf[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrTruncated, err)
	}
	hdr, err := decodeRegionHeader(buf[:])
	if err != nil {
		return nil, err
	}
	if hdr.Version != RegionVersion {
		return nil, &BadVersionError{Version: hdr.Version}
	}
	comp := hdr.Compression()
	if !comp.valid() {
		return nil, fmt.Errorf("snapshot: unknown compression codec %d", comp)
	}

	// Placement rule table. Everything below must pass before the region
	// is touched.
	switch {
	case hdr.Fixed() && r.Mode() == region.PlacementFixed:
		// Pointers preserved across processes.
	case !hdr.Fixed() && r.Mode() == region.PlacementDynamic:
		if hdr.Base != uint64(r.Base()) {
			return nil, &BaseMismatchError{Saved: hdr.Base, Current: uint64(r.Base())}
		}
	default:
		return nil, &PlacementMismatchError{SavedFixed: hdr.Fixed(), CurrentMode: r.Mode()}
	}
	if hdr.Used > uint64(r.Capacity()) {
		return nil, &TooLargeError{Used: hdr.Used, Capacity: uint64(r.Capacity())}
	}

	// Point of no return: clear the region before reading the image so a
	// short read cannot leave half-stale block headers behind.
	r.Restart()

	cr, err := compressReader(rd, comp)
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	image := r.Bytes()[:hdr.Used]
	if _, err := io.ReadFull(cr, image); err != nil {
		return nil, fmt.Errorf("%w: region image: %v", ErrTruncated, err)
	}

	info := &LoadInfo{Header: hdr, ChecksumOK: true}
	if got := Sum(image); got != hdr.Checksum {
		info.ChecksumOK = false
		logger.Warn("checksum mismatch, accepting snapshot anyway",
			"stored", fmt.Sprintf("%#x", hdr.Checksum),
			"computed", fmt.Sprintf("%#x", got))
	}

	if err := r.RestoreCounters(uintptr(hdr.Used), hdr.Allocs); err != nil {
		return nil, err
	}

	logger.Info("region snapshot loaded",
		"used", hdr.Used, "allocs", hdr.Allocs, "fixed", hdr.Fixed())
	return info, nil
}

func encodeRegionHeader(h RegionHeader) []byte {
	buf := make([]byte, regionHeaderSize)
	copy(buf[0:8], magicRegion[:])
	binary.LittleEndian.PutUint32(buf[8:], h.Version)
	binary.LittleEndian.PutUint32(buf[12:], h.Flags)
	binary.LittleEndian.PutUint64(buf[16:], h.Base)
	binary.LittleEndian.PutUint64(buf[24:], h.Used)
	binary.LittleEndian.PutUint64(buf[32:], h.Allocs)
	binary.LittleEndian.PutUint64(buf[40:], h.Checksum)
	return buf
}

func decodeRegionHeader(buf []byte) (RegionHeader, error) {
	var m [8]byte
	copy(m[:], buf[0:8])
	if m != magicRegion {
		return RegionHeader{}, fmt.Errorf("%w: % x", ErrBadMagic, buf[0:8])
	}
	return RegionHeader{
		Version:  binary.LittleEndian.Uint32(buf[8:]),
		Flags:    binary.LittleEndian.Uint32(buf[12:]),
		Base:     binary.LittleEndian.Uint64(buf[16:]),
		Used:     binary.LittleEndian.Uint64(buf[24:]),
		Allocs:   binary.LittleEndian.Uint64(buf[32:]),
		Checksum: binary.LittleEndian.Uint64(buf[40:]),
	}, nil
}
