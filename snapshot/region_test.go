package snapshot

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"unsafe"

	"github.com/chronicleforge/yendors-curse-sub001/arena"
	"github.com/chronicleforge/yendors-curse-sub001/region"
)

func newTestRegion(t *testing.T, capacity uintptr) *region.Region {
	t.Helper()
	r := region.New(region.Config{
		Capacity:     capacity,
		MinCapacity:  capacity,
		ForceDynamic: true,
	})
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("region init: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// populate fills r with three blocks of recognizable payloads and returns
// their payload bytes.
func populate(t *testing.T, r *region.Region) [][]byte {
	t.Helper()
	a := arena.New(r, nil)
	fills := []byte{0xaa, 0xbb, 0xcc}
	sizes := []uintptr{64, 128, 32}

	var payloads [][]byte
	for i, size := range sizes {
		p, err := a.Alloc(size)
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		buf := unsafe.Slice((*byte)(p), size)
		for j := range buf {
			buf[j] = fills[i]
		}
		payloads = append(payloads, buf)
	}
	return payloads
}

func TestRegionSnapshot_RoundTrip(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			r := newTestRegion(t, 1<<20)
			payloads := populate(t, r)
			saved := r.Stats()

			var buf bytes.Buffer
			if err := WriteRegion(&buf, r, comp); err != nil {
				t.Fatalf("write: %v", err)
			}

			// Wreck the session state, then rehydrate.
			r.Restart()

			info, err := ReadRegion(&buf, r, nil)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !info.ChecksumOK {
				t.Error("checksum flagged on clean round trip")
			}
			if got := r.Stats(); got != saved {
				t.Errorf("stats = %+v, want %+v", got, saved)
			}

			a := arena.New(r, nil)
			blocks, err := a.CheckIntegrity()
			if err != nil {
				t.Fatalf("integrity after load: %v", err)
			}
			if blocks != 3 {
				t.Errorf("blocks = %d, want 3", blocks)
			}
			// Same mapping, same base, so the original payload slices still
			// point at the right offsets.
			for i, p := range payloads {
				for j, b := range p {
					if want := []byte{0xaa, 0xbb, 0xcc}[i]; b != want {
						t.Fatalf("payload %d byte %d = %#x, want %#x", i, j, b, want)
					}
				}
			}
		})
	}
}

func TestRegionSnapshot_ChecksumMismatchIsWarning(t *testing.T) {
	r := newTestRegion(t, 1<<20)
	populate(t, r)

	var buf bytes.Buffer
	if err := WriteRegion(&buf, r, CompressionNone); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Flip one image byte past the header. With no compression the image is
	// stored verbatim, so the file stays structurally valid.
	raw := buf.Bytes()
	raw[regionHeaderSize+arena.HeaderSize] ^= 0x01

	info, err := ReadRegion(bytes.NewReader(raw), r, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if info.ChecksumOK {
		t.Error("checksum mismatch not reported")
	}
}

func TestRegionSnapshot_PlacementRules(t *testing.T) {
	t.Run("fixed snapshot rejected by dynamic region", func(t *testing.T) {
		r := newTestRegion(t, 1<<20)
		populate(t, r)
		before := r.Stats()

		hdr := RegionHeader{
			Version: RegionVersion,
			Flags:   FlagFixedPlacement,
			Base:    uint64(region.PreferredBase),
			Used:    64,
		}
		file := append(encodeRegionHeader(hdr), make([]byte, 64)...)

		_, err := ReadRegion(bytes.NewReader(file), r, nil)
		var pm *PlacementMismatchError
		if !errors.As(err, &pm) {
			t.Fatalf("err = %v, want PlacementMismatchError", err)
		}
		if got := r.Stats(); got != before {
			t.Errorf("region mutated by rejected load: %+v -> %+v", before, got)
		}
	})

	t.Run("dynamic snapshot from another base rejected", func(t *testing.T) {
		r := newTestRegion(t, 1<<20)
		populate(t, r)
		before := r.Stats()

		hdr := RegionHeader{
			Version: RegionVersion,
			Base:    uint64(r.Base()) + 4096,
			Used:    64,
		}
		file := append(encodeRegionHeader(hdr), make([]byte, 64)...)

		_, err := ReadRegion(bytes.NewReader(file), r, nil)
		var bm *BaseMismatchError
		if !errors.As(err, &bm) {
			t.Fatalf("err = %v, want BaseMismatchError", err)
		}
		if got := r.Stats(); got != before {
			t.Errorf("region mutated by rejected load: %+v -> %+v", before, got)
		}
	})
}

func TestRegionSnapshot_Rejections(t *testing.T) {
	r := newTestRegion(t, 1<<20)

	t.Run("bad magic", func(t *testing.T) {
		_, err := ReadRegion(bytes.NewReader(make([]byte, regionHeaderSize)), r, nil)
		if !errors.Is(err, ErrBadMagic) {
			t.Fatalf("err = %v, want ErrBadMagic", err)
		}
	})

	t.Run("bad version", func(t *testing.T) {
		hdr := RegionHeader{Version: RegionVersion + 1, Base: uint64(r.Base())}
		_, err := ReadRegion(bytes.NewReader(encodeRegionHeader(hdr)), r, nil)
		var bv *BadVersionError
		if !errors.As(err, &bv) {
			t.Fatalf("err = %v, want BadVersionError", err)
		}
	})

	t.Run("image larger than capacity", func(t *testing.T) {
		hdr := RegionHeader{
			Version: RegionVersion,
			Base:    uint64(r.Base()),
			Used:    uint64(r.Capacity()) + 1,
		}
		_, err := ReadRegion(bytes.NewReader(encodeRegionHeader(hdr)), r, nil)
		var tl *TooLargeError
		if !errors.As(err, &tl) {
			t.Fatalf("err = %v, want TooLargeError", err)
		}
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := ReadRegion(bytes.NewReader([]byte("NHFIX")), r, nil)
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("err = %v, want ErrTruncated", err)
		}
	})

	t.Run("truncated image", func(t *testing.T) {
		var buf bytes.Buffer
		populate(t, r)
		if err := WriteRegion(&buf, r, CompressionNone); err != nil {
			t.Fatalf("write: %v", err)
		}
		short := buf.Bytes()[:buf.Len()-10]
		_, err := ReadRegion(bytes.NewReader(short), r, nil)
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("err = %v, want ErrTruncated", err)
		}
	})
}

func TestRegionHeader_EncodeDecode(t *testing.T) {
	in := RegionHeader{
		Version:  RegionVersion,
		Flags:    FlagFixedPlacement | uint32(CompressionZSTD)<<compressionShift,
		Base:     0x300000000,
		Used:     12345,
		Allocs:   42,
		Checksum: 0xfeedface,
	}
	out, err := decodeRegionHeader(encodeRegionHeader(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if !out.Fixed() {
		t.Error("fixed flag lost")
	}
	if out.Compression() != CompressionZSTD {
		t.Errorf("compression = %v", out.Compression())
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		magic   string
		want    Format
		wantErr bool
	}{
		{"NHFIXED\x00", FormatRegion, false},
		{"NHZONE02", FormatEnum, false},
		{"NHZONE01", FormatEnum, false},
		{"GARBAGE!", 0, true},
		{"NH", 0, true},
	}
	for _, tc := range cases {
		got, err := DetectFormat([]byte(tc.magic))
		if tc.wantErr {
			if err == nil {
				t.Errorf("DetectFormat(%q): expected error", tc.magic)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("DetectFormat(%q) = %v, %v", tc.magic, got, err)
		}
	}
}
