package snapshot

// The region checksum is the legacy shift-XOR fold
//
//	c = (c << 1) ^ byte
//
// over the used prefix of the region. It is an integrity signal against
// accidental corruption, not a cryptographic digest; a mismatch on load is
// warned about but does not reject the snapshot.

// Checksum accumulates the shift-XOR sum. It implements io.Writer so it can
// sit behind an io.MultiWriter on the save path.
type Checksum struct {
	sum uint64
}

// Write folds p into the running sum. It never fails.
func (c *Checksum) Write(p []byte) (int, error) {
	s := c.sum
	for _, b := range p {
		s = s<<1 ^ uint64(b)
	}
	c.sum = s
	return len(p), nil
}

// Sum64 returns the current checksum value.
func (c *Checksum) Sum64() uint64 { return c.sum }

// Reset clears the running sum.
func (c *Checksum) Reset() { c.sum = 0 }

// Sum computes the checksum of data in one call.
func Sum(data []byte) uint64 {
	var c Checksum
	_, _ = c.Write(data)
	return c.Sum64()
}
