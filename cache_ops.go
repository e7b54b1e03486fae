package sharedmmap

// GetByKey hashes key, locks its page, reads it, and unlocks — a
// convenience wrapper around Hash/Lock/Read/Unlock for callers that only
// need a single operation per lock. The returned value is a copy, safe to
// use after the call returns (unlike Read's borrow, which is only valid
// while locked).
func (c *Cache) GetByKey(key []byte) (value []byte, flags uint64, err error) {
	page, intraHash := c.Hash(key)
	if err := c.Lock(page); err != nil {
		return nil, 0, err
	}
	defer c.Unlock()

	v, flags, err := c.Read(intraHash, key)
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), v...), flags, nil
}

// PutByKey hashes key, locks its page, writes (key, value), and unlocks.
// If the page has no room, PutByKey runs a single make-room expunge pass
// and retries once before giving up with ErrNotStored.
func (c *Cache) PutByKey(key, value []byte, expireSeconds uint64, flags uint64) error {
	page, intraHash := c.Hash(key)
	if err := c.Lock(page); err != nil {
		return err
	}
	defer c.Unlock()

	err := c.Write(intraHash, key, value, expireSeconds, flags)
	if err == nil {
		return nil
	}

	plan, calcErr := c.CalcExpunge(ExpungeMakeRoom, len(key)+len(value))
	if calcErr != nil {
		return err
	}
	if !plan.NoOp() {
		if doErr := c.DoExpunge(plan); doErr != nil {
			return err
		}
	}

	return c.Write(intraHash, key, value, expireSeconds, flags)
}

// DeleteByKey hashes key, locks its page, deletes it, and unlocks.
func (c *Cache) DeleteByKey(key []byte) (flags uint64, err error) {
	page, intraHash := c.Hash(key)
	if err := c.Lock(page); err != nil {
		return 0, err
	}
	defer c.Unlock()

	return c.Delete(intraHash, key)
}
