package snapshot

import "testing"

func TestChecksum(t *testing.T) {
	t.Run("known values", func(t *testing.T) {
		cases := []struct {
			data []byte
			want uint64
		}{
			{nil, 0},
			{[]byte{0}, 0},
			{[]byte{1}, 1},
			{[]byte{1, 0}, 2},
			{[]byte{1, 1}, 3},
			{[]byte{0xff}, 0xff},
			{[]byte{0xff, 0xff}, 0x101}, // (0xff<<1)^0xff
		}
		for _, tc := range cases {
			if got := Sum(tc.data); got != tc.want {
				t.Errorf("Sum(% x) = %#x, want %#x", tc.data, got, tc.want)
			}
		}
	})

	t.Run("order sensitive", func(t *testing.T) {
		if Sum([]byte{1, 2}) == Sum([]byte{2, 1}) {
			t.Error("checksum ignores byte order")
		}
	})

	t.Run("streaming matches one-shot", func(t *testing.T) {
		data := []byte("weapons and armor and food rations")
		var c Checksum
		if _, err := c.Write(data[:10]); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := c.Write(data[10:]); err != nil {
			t.Fatalf("write: %v", err)
		}
		if c.Sum64() != Sum(data) {
			t.Errorf("streaming %#x != one-shot %#x", c.Sum64(), Sum(data))
		}
	})

	t.Run("reset", func(t *testing.T) {
		var c Checksum
		_, _ = c.Write([]byte{1, 2, 3})
		c.Reset()
		if c.Sum64() != 0 {
			t.Errorf("sum after reset = %#x", c.Sum64())
		}
	})
}
