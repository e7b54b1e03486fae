package sharedmmap

import (
	"fmt"
	"sort"
)

// ExpungeMode selects what CalcExpunge discards (spec §4.3).
type ExpungeMode int

const (
	// ExpungeExpiredOnly keeps everything except entries that have
	// expired.
	ExpungeExpiredOnly ExpungeMode = 0
	// ExpungeAll discards every entry on the page.
	ExpungeAll ExpungeMode = 1
	// ExpungeMakeRoom keeps everything unexpired, then evicts the
	// least-recently-accessed survivors until used arena bytes drop
	// below 60% of arena capacity.
	ExpungeMakeRoom ExpungeMode = 2
)

// keptEntry is a self-contained copy of a surviving entry's header, key,
// and value, decoupled from the page's own bytes so DoExpunge can rewrite
// the page freely while applying the plan.
type keptEntry struct {
	header entryHeader
	key    []byte
	value  []byte
}

// ExpungePlan is the pure result of CalcExpunge: an ordered keep-list plus
// the slot-table size DoExpunge should rehash into. It can be inspected
// (e.g. via KeptCount and EvictedCount) before deciding whether to apply
// it with DoExpunge.
type ExpungePlan struct {
	kept        []keptEntry
	newNumSlots int
	evicted     int
	noop        bool
}

// NoOp reports whether CalcExpunge determined nothing needed to change
// (the length short-circuit of spec §4.3 "calc").
func (p *ExpungePlan) NoOp() bool { return p.noop }

// EvictedCount is the number of entries CalcExpunge dropped.
func (p *ExpungePlan) EvictedCount() int { return p.evicted }

// NewNumSlots is the slot-table size DoExpunge will rehash into.
func (p *ExpungePlan) NewNumSlots() int { return p.newNumSlots }

// KeptCount is the number of entries CalcExpunge's plan retains.
func (p *ExpungePlan) KeptCount() int { return len(p.kept) }

const rehashOccupancyNumerator = 30   // percent
const makeRoomThresholdNumerator = 60 // percent

// CalcExpunge computes, without mutating the page, which entries to keep
// and whether to grow the slot table (spec §4.3 "calc"). length, if >= 0,
// is the sum of key+value bytes the caller wants room for; when occupancy
// is already low and that much space is free, CalcExpunge short-circuits
// to a no-op plan. Pass a negative length to skip that short-circuit.
func (c *Cache) CalcExpunge(mode ExpungeMode, length int) (*ExpungePlan, error) {
	if err := c.requireLocked(); err != nil {
		return nil, c.setErr(err)
	}
	buf := c.pageBytes(c.curPage)
	numSlots := int(c.hdr.NumSlots)
	arenaStart := c.arenaStart()
	arenaCap := c.opts.PageSize - arenaStart

	liveCount := numSlots - int(c.hdr.FreeSlots)

	if length >= 0 {
		needed := roundUp(entryHeaderBytes + length)
		if liveCount*100 < rehashOccupancyNumerator*numSlots && uint64(needed) <= c.hdr.FreeBytes {
			return &ExpungePlan{noop: true, newNumSlots: numSlots}, nil
		}
	}

	now := c.nowFunc()

	type survivor struct {
		off int
		e   entryHeader
	}
	var survivors []survivor

	for i := 0; i < numSlots; i++ {
		v := getSlot(buf, i)
		if v == slotEmpty || v == slotTombstone {
			continue
		}
		off := int(v)
		e := loadEntryHeader(buf, off)

		switch mode {
		case ExpungeAll:
			continue
		case ExpungeExpiredOnly:
			if e.ExpireTime != 0 && now >= e.ExpireTime {
				continue
			}
		case ExpungeMakeRoom:
			if e.ExpireTime != 0 && now >= e.ExpireTime {
				continue
			}
		default:
			return nil, c.setErr(fmt.Errorf("unknown expunge mode %d: %w", mode, ErrUsage))
		}
		survivors = append(survivors, survivor{off: off, e: e})
	}

	evicted := liveCount - len(survivors)

	if mode == ExpungeMakeRoom && len(survivors) > 0 {
		sort.Slice(survivors, func(i, j int) bool {
			return survivors[i].e.LastAccess < survivors[j].e.LastAccess
		})
		used := 0
		for _, s := range survivors {
			used += entrySize(int(s.e.KeyLen), int(s.e.ValLen))
		}
		i := 0
		for i < len(survivors) && used*100 >= makeRoomThresholdNumerator*arenaCap {
			used -= entrySize(int(survivors[i].e.KeyLen), int(survivors[i].e.ValLen))
			i++
		}
		evicted += i
		survivors = survivors[i:]
	}

	kept := make([]keptEntry, 0, len(survivors))
	usedAfter := 0
	for _, s := range survivors {
		key := append([]byte(nil), entryKey(buf, s.off, s.e)...)
		val := append([]byte(nil), entryValue(buf, s.off, s.e)...)
		kept = append(kept, keptEntry{header: s.e, key: key, value: val})
		usedAfter += entrySize(len(key), len(val))
	}

	occupied := len(kept)
	newNumSlots := numSlots
	freeBytesAfter := arenaCap - usedAfter
	hasHeadroom := freeBytesAfter >= numSlots*wordSize
	if occupied*100 > rehashOccupancyNumerator*numSlots && (hasHeadroom || mode == ExpungeMakeRoom) {
		newNumSlots = 2*numSlots + 1
	}

	c.lastErr = nil
	return &ExpungePlan{kept: kept, newNumSlots: newNumSlots, evicted: evicted}, nil
}

// DoExpunge applies a plan computed by CalcExpunge against the currently
// locked page (spec §4.3 "do"): it builds a fresh slot table and arena in
// scratch buffers, rehashing each kept entry by SlotHash mod newNumSlots,
// then writes both back into the page and updates the header.
func (c *Cache) DoExpunge(plan *ExpungePlan) error {
	if err := c.requireLocked(); err != nil {
		return c.setErr(err)
	}
	if plan.noop {
		return nil
	}

	buf := c.pageBytes(c.curPage)
	newNumSlots := plan.newNumSlots
	arenaStart := headerSizeBytes + newNumSlots*wordSize
	arenaSize := c.opts.PageSize - arenaStart
	if arenaSize < 0 {
		return c.setErr(fmt.Errorf("new_num_slots %d leaves no room for an arena: %w", newNumSlots, ErrCorrupt))
	}

	scratchSlots := make([]uint64, newNumSlots)
	scratchArena := make([]byte, arenaSize)
	writeOff := 0

	for _, ent := range plan.kept {
		slot := int(ent.header.SlotHash % uint64(newNumSlots))
		for scratchSlots[slot] != slotEmpty {
			slot = (slot + 1) % newNumSlots
		}
		storeEntryHeader(scratchArena, writeOff, ent.header)
		copy(scratchArena[writeOff+entryHeaderBytes:], ent.key)
		copy(scratchArena[writeOff+entryHeaderBytes+len(ent.key):], ent.value)
		scratchSlots[slot] = uint64(writeOff + arenaStart)
		writeOff += entrySize(len(ent.key), len(ent.value))
	}

	for i, v := range scratchSlots {
		setSlot(buf, i, v)
	}
	copy(buf[arenaStart:], scratchArena)

	c.hdr.NumSlots = uint64(newNumSlots)
	c.hdr.FreeSlots = uint64(newNumSlots - len(plan.kept))
	c.hdr.OldSlots = 0
	c.hdr.FreeData = uint64(arenaStart + writeOff)
	c.hdr.FreeBytes = uint64(c.opts.PageSize - arenaStart - writeOff)
	c.hdrDirty = true
	c.lastErr = nil
	return nil
}
