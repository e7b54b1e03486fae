package sharedmmap

import "fmt"

// Lock acquires the exclusive byte-range lock covering page p and loads its
// header into the session. Locking while already locked is a programmer
// error (spec §4.2 "Acquire").
func (c *Cache) Lock(p int) error {
	if c.IsLocked() {
		return c.setErr(fmt.Errorf("already locked on page %d: %w", c.curPage, ErrUsage))
	}
	if p < 0 || p >= c.opts.NumPages {
		return c.setErr(fmt.Errorf("page %d out of range [0, %d): %w", p, c.opts.NumPages, ErrUsage))
	}

	if err := c.store.LockPage(p, c.opts.CatchDeadlocks); err != nil {
		return c.setErr(err)
	}

	buf := c.pageBytes(p)
	if err := validatePage(buf, c.opts.PageSize, c.opts.StartSlots); err != nil {
		c.store.UnlockPage(p)
		return c.setErr(err)
	}

	c.curPage = p
	c.hdr = loadPageHeader(buf)
	c.hdrDirty = false
	c.lastErr = nil
	return nil
}

// Unlock writes back the session's header if it changed, then releases the
// page's byte-range lock (spec §4.2 "Release"). Unlocking an unlocked
// session is a usage error.
func (c *Cache) Unlock() error {
	if !c.IsLocked() {
		return c.setErr(fmt.Errorf("unlock called with no page locked: %w", ErrUsage))
	}

	p := c.curPage
	if c.hdrDirty {
		storePageHeader(c.pageBytes(p), c.hdr)
	}

	err := c.store.UnlockPage(p)
	c.curPage = noPage
	c.hdrDirty = false
	if err != nil {
		return c.setErr(err)
	}
	return nil
}

// IsLocked reports whether the session currently holds a page lock.
func (c *Cache) IsLocked() bool {
	return c.curPage != noPage
}

func (c *Cache) requireLocked() error {
	if !c.IsLocked() {
		return fmt.Errorf("operation requires a locked page: %w", ErrUsage)
	}
	return nil
}

func (c *Cache) arenaStart() int {
	return headerSizeBytes + int(c.hdr.NumSlots)*wordSize
}

// Read services a read against the currently locked page (spec §4.2
// "read"). The returned value is a borrow into the mapping, valid only
// until the next Unlock or mutating call on this session.
func (c *Cache) Read(intraHash uint64, key []byte) (value []byte, flags uint64, err error) {
	if err := c.requireLocked(); err != nil {
		return nil, 0, c.setErr(err)
	}
	buf := c.pageBytes(c.curPage)

	if c.opts.EnableStats {
		c.hdr.NReads++
		c.hdrDirty = true
	}

	idx, state := findSlot(buf, int(c.hdr.NumSlots), intraHash, key, false)
	if state != slotStateMatch {
		return nil, 0, c.setErr(fmt.Errorf("key not found: %w", ErrNotFound))
	}

	off := int(getSlot(buf, idx))
	e := loadEntryHeader(buf, off)

	now := c.nowFunc()
	if e.ExpireTime != 0 && now > e.ExpireTime {
		setSlot(buf, idx, slotTombstone)
		c.hdr.FreeSlots++
		c.hdr.OldSlots++
		c.hdrDirty = true
		return nil, 0, c.setErr(fmt.Errorf("key expired: %w", ErrNotFound))
	}

	e.LastAccess = now
	storeEntryHeader(buf, off, e)
	if c.opts.EnableStats {
		c.hdr.NReadHits++
		c.hdrDirty = true
	}

	c.lastErr = nil
	return entryValue(buf, off, e), e.Flags, nil
}

// Write services a write against the currently locked page (spec §4.2
// "write"). expireSeconds of 0 means never-expire; ExpireUseDefault
// requests Options.DefaultExpireSeconds. It returns ErrNotStored, without
// mutating the page, if there is no room — callers are expected to have
// run CalcExpunge/DoExpunge first.
func (c *Cache) Write(intraHash uint64, key, value []byte, expireSeconds uint64, flags uint64) error {
	if err := c.requireLocked(); err != nil {
		return c.setErr(err)
	}
	buf := c.pageBytes(c.curPage)
	numSlots := int(c.hdr.NumSlots)

	needed := entrySize(len(key), len(value))
	if uint64(needed) > c.hdr.FreeBytes {
		return c.setErr(fmt.Errorf("no room for %d-byte entry: %w", needed, ErrNotStored))
	}

	idx, state := findSlot(buf, numSlots, intraHash, key, true)

	if state == slotStateMatch {
		// A write always relocates to fresh arena bytes rather than
		// editing in place, since the new value may be a different
		// size; tombstone the old slot first.
		setSlot(buf, idx, slotTombstone)
		c.hdr.FreeSlots++
		c.hdr.OldSlots++
		idx, state = findSlot(buf, numSlots, intraHash, key, true)
	}

	if state == slotStateExhausted || uint64(needed) > c.hdr.FreeBytes {
		return c.setErr(fmt.Errorf("no room for %d-byte entry: %w", needed, ErrNotStored))
	}

	if expireSeconds == ExpireUseDefault {
		expireSeconds = c.opts.DefaultExpireSeconds
	}
	now := c.nowFunc()
	var expireAt uint64
	if expireSeconds != 0 {
		expireAt = now + expireSeconds
	}

	off := int(c.hdr.FreeData)
	storeEntryHeader(buf, off, entryHeader{
		LastAccess: now,
		ExpireTime: expireAt,
		SlotHash:   intraHash,
		Flags:      flags,
		KeyLen:     uint64(len(key)),
		ValLen:     uint64(len(value)),
	})
	copy(buf[off+entryHeaderBytes:], key)
	copy(buf[off+entryHeaderBytes+len(key):], value)

	wasTombstone := state == slotStateReuseTombstone
	setSlot(buf, idx, uint64(off))

	c.hdr.FreeData += uint64(needed)
	c.hdr.FreeBytes -= uint64(needed)
	if state == slotStateEmpty {
		c.hdr.FreeSlots--
	} else if wasTombstone {
		c.hdr.FreeSlots--
		c.hdr.OldSlots--
	}
	c.hdrDirty = true
	c.lastErr = nil
	return nil
}

// Delete services a delete against the currently locked page (spec §4.2
// "delete"): on a hit, the slot becomes a tombstone and the deleted
// entry's flags are returned; arena bytes are reclaimed only by expunge.
func (c *Cache) Delete(intraHash uint64, key []byte) (flags uint64, err error) {
	if err := c.requireLocked(); err != nil {
		return 0, c.setErr(err)
	}
	buf := c.pageBytes(c.curPage)

	idx, state := findSlot(buf, int(c.hdr.NumSlots), intraHash, key, false)
	if state != slotStateMatch {
		return 0, c.setErr(fmt.Errorf("key not found: %w", ErrNotFound))
	}

	off := int(getSlot(buf, idx))
	e := loadEntryHeader(buf, off)

	setSlot(buf, idx, slotTombstone)
	c.hdr.FreeSlots++
	c.hdr.OldSlots++
	c.hdrDirty = true
	c.lastErr = nil
	return e.Flags, nil
}
