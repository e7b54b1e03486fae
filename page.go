package sharedmmap

import "fmt"

// pageHeader is the decoded form of a page's 8-word header (spec §3).
type pageHeader struct {
	Magic      uint64
	NumSlots   uint64
	FreeSlots  uint64
	OldSlots   uint64
	FreeData   uint64
	FreeBytes  uint64
	NReads     uint64
	NReadHits  uint64
}

func loadPageHeader(buf []byte) pageHeader {
	return pageHeader{
		Magic:     readWord(buf, hdrMagic*wordSize),
		NumSlots:  readWord(buf, hdrNumSlots*wordSize),
		FreeSlots: readWord(buf, hdrFreeSlots*wordSize),
		OldSlots:  readWord(buf, hdrOldSlots*wordSize),
		FreeData:  readWord(buf, hdrFreeData*wordSize),
		FreeBytes: readWord(buf, hdrFreeBytes*wordSize),
		NReads:    readWord(buf, hdrNReads*wordSize),
		NReadHits: readWord(buf, hdrNReadHits*wordSize),
	}
}

func storePageHeader(buf []byte, h pageHeader) {
	writeWord(buf, hdrMagic*wordSize, h.Magic)
	writeWord(buf, hdrNumSlots*wordSize, h.NumSlots)
	writeWord(buf, hdrFreeSlots*wordSize, h.FreeSlots)
	writeWord(buf, hdrOldSlots*wordSize, h.OldSlots)
	writeWord(buf, hdrFreeData*wordSize, h.FreeData)
	writeWord(buf, hdrFreeBytes*wordSize, h.FreeBytes)
	writeWord(buf, hdrNReads*wordSize, h.NReads)
	writeWord(buf, hdrNReadHits*wordSize, h.NReadHits)
}

func getSlot(buf []byte, i int) uint64 {
	return readWord(buf, slotOffset(i))
}

func setSlot(buf []byte, i int, v uint64) {
	writeWord(buf, slotOffset(i), v)
}

// entryHeader is the decoded form of an entry's fixed 6-word header
// (spec §3).
type entryHeader struct {
	LastAccess uint64
	ExpireTime uint64
	SlotHash   uint64
	Flags      uint64
	KeyLen     uint64
	ValLen     uint64
}

func loadEntryHeader(buf []byte, off int) entryHeader {
	return entryHeader{
		LastAccess: readWord(buf, off+entLastAccess*wordSize),
		ExpireTime: readWord(buf, off+entExpireTime*wordSize),
		SlotHash:   readWord(buf, off+entSlotHash*wordSize),
		Flags:      readWord(buf, off+entFlags*wordSize),
		KeyLen:     readWord(buf, off+entKeyLen*wordSize),
		ValLen:     readWord(buf, off+entValLen*wordSize),
	}
}

func storeEntryHeader(buf []byte, off int, e entryHeader) {
	writeWord(buf, off+entLastAccess*wordSize, e.LastAccess)
	writeWord(buf, off+entExpireTime*wordSize, e.ExpireTime)
	writeWord(buf, off+entSlotHash*wordSize, e.SlotHash)
	writeWord(buf, off+entFlags*wordSize, e.Flags)
	writeWord(buf, off+entKeyLen*wordSize, e.KeyLen)
	writeWord(buf, off+entValLen*wordSize, e.ValLen)
}

// entryKey returns a borrow of the key bytes for the entry at off.
func entryKey(buf []byte, off int, e entryHeader) []byte {
	start := off + entryHeaderBytes
	return buf[start : start+int(e.KeyLen)]
}

// entryValue returns a borrow of the value bytes for the entry at off.
func entryValue(buf []byte, off int, e entryHeader) []byte {
	start := off + entryHeaderBytes + int(e.KeyLen)
	return buf[start : start+int(e.ValLen)]
}

// slotState classifies the outcome of findSlot.
type slotState int

const (
	// slotStateEmpty: the probe reached an unused (0) slot; idx is an
	// insertion point, nothing was found.
	slotStateEmpty slotState = iota
	// slotStateMatch: idx holds a live entry whose key equals the one
	// searched for.
	slotStateMatch
	// slotStateReuseTombstone: write mode only; no live match exists, but
	// idx is the first tombstone seen along the probe chain and may be
	// reused.
	slotStateReuseTombstone
	// slotStateExhausted: the table wrapped all the way around with no
	// empty slot, no match, and (in write mode) no tombstone either.
	slotStateExhausted
)

// findSlot implements the probe described in spec §4.2: open-addressed
// linear probing from intraHash % numSlots, wrapping once through the full
// table.
//
// Tombstone-reuse contract (see DESIGN.md, Open Question 2): in write
// mode the first tombstone encountered is remembered, but probing
// continues past it so an existing live entry for the same key further
// down the chain is still found (and replaced by the caller rather than
// duplicated). An empty slot always ends the probe and is itself returned;
// the remembered tombstone is returned only when the probe wraps the whole
// table without reaching an empty slot or a match.
func findSlot(buf []byte, numSlots int, intraHash uint64, key []byte, write bool) (idx int, state slotState) {
	start := int(intraHash % uint64(numSlots))
	tombstoneIdx := -1

	for step := 0; step < numSlots; step++ {
		i := (start + step) % numSlots
		v := getSlot(buf, i)

		switch v {
		case slotEmpty:
			return i, slotStateEmpty
		case slotTombstone:
			if write && tombstoneIdx == -1 {
				tombstoneIdx = i
			}
			continue
		default:
			off := int(v)
			e := loadEntryHeader(buf, off)
			if int(e.KeyLen) == len(key) {
				if bytesEqual(entryKey(buf, off, e), key) {
					return i, slotStateMatch
				}
			}
		}
	}

	if write && tombstoneIdx != -1 {
		return tombstoneIdx, slotStateReuseTombstone
	}
	return -1, slotStateExhausted
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// validatePage checks invariants 1-8 of spec §3 against a locked page's
// raw bytes. startSlots is the configured minimum slot-table size
// (invariant 2).
func validatePage(buf []byte, pageSize, startSlots int) error {
	h := loadPageHeader(buf)

	if h.Magic != pageMagic {
		return fmt.Errorf("bad magic %#x: %w", h.Magic, ErrCorrupt)
	}
	if !(uint64(startSlots) <= h.NumSlots && h.NumSlots < uint64(pageSize)) {
		return fmt.Errorf("num_slots %d out of range [%d, %d): %w", h.NumSlots, startSlots, pageSize, ErrCorrupt)
	}
	if h.FreeSlots > h.NumSlots {
		return fmt.Errorf("free_slots %d exceeds num_slots %d: %w", h.FreeSlots, h.NumSlots, ErrCorrupt)
	}
	if h.OldSlots > h.FreeSlots {
		return fmt.Errorf("old_slots %d exceeds free_slots %d: %w", h.OldSlots, h.FreeSlots, ErrCorrupt)
	}
	if h.FreeData+h.FreeBytes != uint64(pageSize) {
		return fmt.Errorf("free_data %d + free_bytes %d != page_size %d: %w", h.FreeData, h.FreeBytes, pageSize, ErrCorrupt)
	}
	minFreeData := uint64(headerSizeBytes) + h.NumSlots*wordSize
	if h.FreeData < minFreeData {
		return fmt.Errorf("free_data %d below header+slots size %d: %w", h.FreeData, minFreeData, ErrCorrupt)
	}

	numSlots := int(h.NumSlots)
	arenaStart := headerSizeBytes + numSlots*wordSize
	var freeCount, oldCount uint64
	var usedArena int

	for i := 0; i < numSlots; i++ {
		v := getSlot(buf, i)
		switch v {
		case slotEmpty:
			freeCount++
		case slotTombstone:
			freeCount++
			oldCount++
		default:
			off := int(v)
			if off%wordSize != 0 || off < arenaStart || off >= pageSize {
				return fmt.Errorf("slot %d holds out-of-range offset %d: %w", i, off, ErrCorrupt)
			}
			e := loadEntryHeader(buf, off)
			size := entrySize(int(e.KeyLen), int(e.ValLen))
			usedArena += size

			// This re-walks the probe chain from the entry's own stored
			// SlotHash to confirm slot i is where that hash's chain would
			// actually land the key, but it doesn't re-derive hash(key)
			// from scratch to confirm SlotHash itself is correct — doing
			// that needs numPages, which validatePage doesn't have (only
			// Cache.Hash does, one level up).
			reachedIdx, state := findSlot(buf, numSlots, e.SlotHash, entryKey(buf, off, e), false)
			if state != slotStateMatch || reachedIdx != i {
				return fmt.Errorf("hash chain broken for slot %d: %w", i, ErrCorrupt)
			}
		}
	}

	if freeCount != h.FreeSlots {
		return fmt.Errorf("free_slots mismatch: header %d, scan %d: %w", h.FreeSlots, freeCount, ErrCorrupt)
	}
	if oldCount != h.OldSlots {
		return fmt.Errorf("old_slots mismatch: header %d, scan %d: %w", h.OldSlots, oldCount, ErrCorrupt)
	}
	if usedArena > pageSize-arenaStart {
		return fmt.Errorf("used arena %d exceeds arena capacity %d: %w", usedArena, pageSize-arenaStart, ErrCorrupt)
	}

	return nil
}
