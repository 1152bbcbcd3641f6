package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxEnumBlockSize bounds a single enumeration record so a corrupt file
// cannot drive an unbounded allocation on load.
const maxEnumBlockSize = 1 << 31

// WriteBlocks writes the enumeration snapshot: every tracked payload in
// order, size-prefixed. The container carries no addresses, so it cannot
// preserve pointer validity; it exists for hosts denied fixed placement.
func WriteBlocks(w io.Writer, payloads [][]byte) error {
	var total uint64
	for _, p := range payloads {
		total += uint64(len(p))
	}

	hdr := make([]byte, enumHeaderSize)
	copy(hdr[0:8], magicEnumV2[:])
	binary.LittleEndian.PutUint64(hdr[8:], uint64(len(payloads)))
	binary.LittleEndian.PutUint64(hdr[16:], total)
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("snapshot: write enum header: %w", err)
	}

	var sz [8]byte
	for _, p := range payloads {
		binary.LittleEndian.PutUint64(sz[:], uint64(len(p)))
		if _, err := w.Write(sz[:]); err != nil {
			return fmt.Errorf("snapshot: write block size: %w", err)
		}
		if _, err := w.Write(p); err != nil {
			return fmt.Errorf("snapshot: write block payload: %w", err)
		}
	}
	return nil
}

// ReadBlocks replays an enumeration snapshot, calling alloc once per record
// in the order the records were saved. Both the current and the previous
// container magic are accepted; the record layout is identical.
func ReadBlocks(rd io.Reader, alloc func(payload []byte) error) error {
	hdr := make([]byte, enumHeaderSize)
	if _, err := io.ReadFull(rd, hdr); err != nil {
		return fmt.Errorf("%w: enum header: %v", ErrTruncated, err)
	}
	var m [8]byte
	copy(m[:], hdr[0:8])
	if m != magicEnumV2 && m != magicEnumV1 {
		return fmt.Errorf("%w: % x", ErrBadMagic, hdr[0:8])
	}
	count := binary.LittleEndian.Uint64(hdr[8:])
	total := binary.LittleEndian.Uint64(hdr[16:])

	var read uint64
	var sz [8]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(rd, sz[:]); err != nil {
			return fmt.Errorf("%w: block %d size: %v", ErrTruncated, i, err)
		}
		size := binary.LittleEndian.Uint64(sz[:])
		if size > maxEnumBlockSize {
			return fmt.Errorf("snapshot: block %d size %d implausible", i, size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(rd, payload); err != nil {
			return fmt.Errorf("%w: block %d payload: %v", ErrTruncated, i, err)
		}
		read += size
		if err := alloc(payload); err != nil {
			return err
		}
	}
	if read != total {
		return fmt.Errorf("snapshot: enum total mismatch: header says %d bytes, records carry %d", total, read)
	}
	return nil
}
