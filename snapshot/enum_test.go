package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEnumSnapshot_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		bytes.Repeat([]byte{0x11}, 48),
		bytes.Repeat([]byte{0x22}, 16),
		{},
		bytes.Repeat([]byte{0x33}, 1024),
	}

	var buf bytes.Buffer
	if err := WriteBlocks(&buf, payloads); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got [][]byte
	err := ReadBlocks(&buf, func(p []byte) error {
		got = append(got, p)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(payloads) {
		t.Fatalf("records = %d, want %d", len(got), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(got[i], payloads[i]) {
			t.Errorf("record %d differs", i)
		}
	}
}

func TestEnumSnapshot_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBlocks(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := ReadBlocks(&buf, func([]byte) error {
		t.Fatal("callback invoked for empty snapshot")
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestEnumSnapshot_PreviousMagicAccepted(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBlocks(&buf, [][]byte{{1, 2, 3}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.Bytes()
	copy(raw[0:8], magicEnumV1[:])

	var count int
	if err := ReadBlocks(bytes.NewReader(raw), func(p []byte) error {
		count++
		if !bytes.Equal(p, []byte{1, 2, 3}) {
			t.Errorf("payload = %v", p)
		}
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if count != 1 {
		t.Errorf("records = %d, want 1", count)
	}
}

func TestEnumSnapshot_Corruption(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		err := ReadBlocks(bytes.NewReader(make([]byte, enumHeaderSize)), nil)
		if !errors.Is(err, ErrBadMagic) {
			t.Fatalf("err = %v, want ErrBadMagic", err)
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteBlocks(&buf, [][]byte{bytes.Repeat([]byte{0xff}, 100)}); err != nil {
			t.Fatalf("write: %v", err)
		}
		short := buf.Bytes()[:buf.Len()-10]
		err := ReadBlocks(bytes.NewReader(short), func([]byte) error { return nil })
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("err = %v, want ErrTruncated", err)
		}
	})

	t.Run("total mismatch", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteBlocks(&buf, [][]byte{{1, 2, 3, 4}}); err != nil {
			t.Fatalf("write: %v", err)
		}
		raw := buf.Bytes()
		binary.LittleEndian.PutUint64(raw[16:], 999)
		err := ReadBlocks(bytes.NewReader(raw), func([]byte) error { return nil })
		if err == nil {
			t.Fatal("expected total mismatch error")
		}
	})

	t.Run("implausible record size", func(t *testing.T) {
		raw := make([]byte, enumHeaderSize+8)
		copy(raw[0:8], magicEnumV2[:])
		binary.LittleEndian.PutUint64(raw[8:], 1)
		binary.LittleEndian.PutUint64(raw[16:], 0)
		binary.LittleEndian.PutUint64(raw[24:], maxEnumBlockSize+1)
		err := ReadBlocks(bytes.NewReader(raw), func([]byte) error { return nil })
		if err == nil {
			t.Fatal("expected size rejection")
		}
	})
}

func TestEnumSnapshot_AllocErrorStopsReplay(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBlocks(&buf, [][]byte{{1}, {2}, {3}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	sentinel := errors.New("allocator full")
	var calls int
	err := ReadBlocks(&buf, func([]byte) error {
		calls++
		if calls == 2 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
