package sharedmmap

// PageStats reports the read counters of a single locked page (spec §6.3
// "page_stats"), gated by Options.EnableStats.
type PageStats struct {
	NReads    uint64
	NReadHits uint64
}

// PageStats returns the currently-locked page's read counters.
func (c *Cache) PageStats() (PageStats, error) {
	if err := c.requireLocked(); err != nil {
		return PageStats{}, c.setErr(err)
	}
	return PageStats{NReads: c.hdr.NReads, NReadHits: c.hdr.NReadHits}, nil
}

// ResetPageStats zeroes the currently-locked page's read counters (spec
// §6.3 "reset_page_stats").
func (c *Cache) ResetPageStats() error {
	if err := c.requireLocked(); err != nil {
		return c.setErr(err)
	}
	c.hdr.NReads = 0
	c.hdr.NReadHits = 0
	c.hdrDirty = true
	c.lastErr = nil
	return nil
}
