package sharedmmap

// hashSeed is the fixed starting value for the rolling hash. It must never
// change: every backing file's page placement depends on it being stable
// across processes and restarts. Extended to 64 bits from the historical
// 32-bit seed 0x92f7e3b1 to match this package's 8-byte-word layout (see
// DESIGN.md, Open Question 1).
const hashSeed uint64 = 0x92f7e3b1_92f7e3b1

// hashKey computes the dual-level hash of key: a page index in
// [0, numPages) and an intra-page hash used to select a slot and to detect
// rehash-chain integrity. It is a fixed-seed rolling shift-add hash,
// deterministic across processes and restarts.
//
// Dividing (rather than taking a second modulo) for the intra-page hash
// keeps its entropy independent of NumSlots, since the per-page probe
// applies intraHash % NumSlots itself.
func hashKey(key []byte, numPages int) (page int, intraHash uint64) {
	h := hashSeed
	for _, b := range key {
		h = (h << 4) + (h >> 60) + uint64(b)
	}
	page = int(h % uint64(numPages))
	intraHash = h / uint64(numPages)
	return page, intraHash
}
