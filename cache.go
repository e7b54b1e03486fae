package sharedmmap

import (
	"fmt"
	"time"
)

// noPage marks a Cache session as unlocked.
const noPage = -1

// Cache is a handle onto a shared-memory page cache backing file: one open
// file descriptor, one memory mapping, and the state of at most one
// currently-locked page (spec §5, "process-wide state"). Multiple handles
// may be open in the same process; each keeps its own session state. On
// Unix the page locks are fcntl byte-range locks, which are held per
// process, so two handles in the same process do not exclude each other;
// only handles in different processes are serialized by the lock protocol.
//
// A Cache is not safe for concurrent use by multiple goroutines — exactly
// like the single-threaded handle this is modeled on, each goroutine that
// wants independent locking should Open its own handle.
type Cache struct {
	opts  Options
	store platformStore

	curPage  int
	hdr      pageHeader
	hdrDirty bool

	lastErr error
	nowFunc func() uint64
}

// Open creates or reuses the backing file described by opts, maps it, and
// returns a ready Cache handle. If the file doesn't exist, is the wrong
// size, or opts.InitFile is set, every page is freshly initialized. If
// opts.TestFile is set, every existing page is additionally validated and
// any page that fails is reinitialized in place.
func Open(opts Options) (*Cache, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	store, err := openStore(newOpenOptions(opts))
	if err != nil {
		return nil, err
	}

	c := &Cache{
		opts:    opts,
		store:   store,
		curPage: noPage,
		nowFunc: func() uint64 { return uint64(time.Now().Unix()) },
	}

	if store.Created() {
		if err := c.initAllPages(); err != nil {
			store.Close()
			return nil, err
		}
	} else if opts.TestFile {
		if err := c.testAllPages(); err != nil {
			store.Close()
			return nil, err
		}
	}

	return c, nil
}

// initAllPages initializes every page fresh, used right after the backing
// file is created (or forcibly re-created via InitFile).
func (c *Cache) initAllPages() error {
	for p := 0; p < c.opts.NumPages; p++ {
		if err := c.store.LockPage(p, false); err != nil {
			return err
		}
		initPage(c.pageBytes(p), c.opts.PageSize, c.opts.StartSlots)
		if err := c.store.UnlockPage(p); err != nil {
			return err
		}
	}
	return nil
}

// testAllPages validates every page, reinitializing any that fails (spec
// §4.5, §6.2 "test_file").
func (c *Cache) testAllPages() error {
	for p := 0; p < c.opts.NumPages; p++ {
		if err := c.store.LockPage(p, false); err != nil {
			return err
		}
		buf := c.pageBytes(p)
		if err := validatePage(buf, c.opts.PageSize, c.opts.StartSlots); err != nil {
			initPage(buf, c.opts.PageSize, c.opts.StartSlots)
		}
		if err := c.store.UnlockPage(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) pageBytes(p int) []byte {
	off := p * c.opts.PageSize
	return c.store.Bytes()[off : off+c.opts.PageSize]
}

// Close releases the mapping and backing file handle. It is an error to
// call Close while a page is locked.
func (c *Cache) Close() error {
	if c.IsLocked() {
		return fmt.Errorf("close called while page %d is locked: %w", c.curPage, ErrUsage)
	}
	return c.store.Close()
}

// LastError returns the error recorded by the most recent failing
// operation on this handle. Successful Lock, Read, Write, Delete,
// CalcExpunge, DoExpunge and ResetPageStats calls reset it to nil. It
// mirrors the last_error(handle) accessor of spec
// §6.3; most callers can simply use the error value returned directly by
// each method instead.
func (c *Cache) LastError() error {
	return c.lastErr
}

func (c *Cache) setErr(err error) error {
	c.lastErr = err
	return err
}

// Hash computes the dual-level hash of key: the page it belongs to, and
// the intra-page hash used to select and verify its slot.
func (c *Cache) Hash(key []byte) (page int, intraHash uint64) {
	return hashKey(key, c.opts.NumPages)
}

// DefaultExpireSeconds returns the cache-wide default TTL configured via
// Options, for callers that want to pass it explicitly instead of
// ExpireUseDefault.
func (c *Cache) DefaultExpireSeconds() uint64 {
	return c.opts.DefaultExpireSeconds
}
