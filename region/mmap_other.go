//go:build !unix

package region

// Platforms without fixed-address anonymous mappings fall back to a
// heap-backed dynamic region. Whole-region snapshots taken here are
// session-local; the enumeration snapshot mode exists for these hosts.

func mapFixed(addr, size uintptr) ([]byte, func() error, error) {
	return nil, nil, ErrFixedUnsupported
}

func mapHinted(addr, size uintptr) ([]byte, func() error, error) {
	return nil, nil, ErrFixedUnsupported
}

func mapAnywhere(size uintptr) ([]byte, func() error, error) {
	data := make([]byte, size)
	return data, func() error { return nil }, nil
}
