package sharedmmap

import "fmt"

// EntryView is a borrow of a single stored entry's details (spec §6.3
// "get_entry_details"), valid only until the next call to Next or Close on
// the iterator that produced it — it points directly into the mapping.
type EntryView struct {
	Key        []byte
	Value      []byte
	Flags      uint64
	LastAccess uint64
	ExpireTime uint64
}

// Iterator visits every live, unexpired entry across all pages, locking one
// page at a time in slot-table order (spec §4.4). It never holds more than
// one lock at a time, so concurrent writers may freely mutate other pages
// — and even the page currently being scanned, once the iterator has moved
// past it. There are no snapshot semantics: entries may appear or
// disappear between calls to Next.
type Iterator struct {
	c      *Cache
	page   int
	slot   int
	closed bool
}

// NewIterator starts a fresh iteration over c. The returned Iterator holds
// no lock until the first call to Next.
func (c *Cache) NewIterator() *Iterator {
	return &Iterator{c: c, page: 0, slot: 0}
}

// Next advances to and returns the next live entry, locking pages as
// needed. It returns (nil, nil) once every page has been visited. Callers
// must eventually call Close, including after Next returns (nil, nil).
func (it *Iterator) Next() (*EntryView, error) {
	if it.closed {
		return nil, fmt.Errorf("iterator already closed: %w", ErrUsage)
	}

	for {
		if !it.c.IsLocked() {
			if it.page >= it.c.opts.NumPages {
				return nil, nil
			}
			if err := it.c.Lock(it.page); err != nil {
				return nil, err
			}
			it.slot = 0
		}

		buf := it.c.pageBytes(it.page)
		numSlots := int(it.c.hdr.NumSlots)
		now := it.c.nowFunc()

		for it.slot < numSlots {
			i := it.slot
			it.slot++

			v := getSlot(buf, i)
			if v == slotEmpty || v == slotTombstone {
				continue
			}
			off := int(v)
			e := loadEntryHeader(buf, off)
			if e.ExpireTime != 0 && now > e.ExpireTime {
				continue
			}
			return &EntryView{
				Key:        entryKey(buf, off, e),
				Value:      entryValue(buf, off, e),
				Flags:      e.Flags,
				LastAccess: e.LastAccess,
				ExpireTime: e.ExpireTime,
			}, nil
		}

		if err := it.c.Unlock(); err != nil {
			return nil, err
		}
		it.page++
	}
}

// Close releases any page lock the iterator currently holds. It is safe to
// call Close multiple times and at any point during iteration.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.c.IsLocked() {
		return it.c.Unlock()
	}
	return nil
}
