package sharedmmap

// initPage resets a page to the empty state described in spec §4.5: zero
// it, then write the fixed header with a fresh slot table and an empty
// arena. buf must be exactly pageSize bytes.
func initPage(buf []byte, pageSize, startSlots int) {
	for i := range buf {
		buf[i] = 0
	}

	freeData := headerSizeBytes + startSlots*wordSize
	storePageHeader(buf, pageHeader{
		Magic:     pageMagic,
		NumSlots:  uint64(startSlots),
		FreeSlots: uint64(startSlots),
		OldSlots:  0,
		FreeData:  uint64(freeData),
		FreeBytes: uint64(pageSize - freeData),
		NReads:    0,
		NReadHits: 0,
	})
}
