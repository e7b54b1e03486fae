package sharedmmap

import (
	"path/filepath"
	"testing"
)

// newTestCache opens a Cache over a fresh temp file, applying small test
// defaults (callers may still override fields in opts before calling).
func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.SharePath == "" {
		opts.SharePath = filepath.Join(t.TempDir(), "cache.bin")
	}
	if opts.NumPages == 0 {
		opts.NumPages = 3
	}
	if opts.PageSize == 0 {
		opts.PageSize = testPageSize
	}
	if opts.StartSlots == 0 {
		opts.StartSlots = testStartSlots
	}

	c, err := Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if c.IsLocked() {
			c.Unlock()
		}
		c.Close()
	})
	return c
}

// withLockedPage locks the page key hashes to, runs fn, then unlocks.
func withLockedPage(t *testing.T, c *Cache, key []byte, fn func(intraHash uint64)) {
	t.Helper()
	page, intraHash := c.Hash(key)
	if err := c.Lock(page); err != nil {
		t.Fatalf("Lock(%d): %v", page, err)
	}
	defer func() {
		if err := c.Unlock(); err != nil {
			t.Fatalf("Unlock: %v", err)
		}
	}()
	fn(intraHash)
}
