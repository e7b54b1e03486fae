package sharedmmap

import (
	"fmt"
)

// ExpireUseDefault, passed as the expireSeconds argument to Write or
// PutByKey, requests the cache-wide default expiry configured via
// Options.DefaultExpireSeconds instead of a never-expire or fixed TTL.
const ExpireUseDefault = ^uint64(0)

const (
	defaultNumPages    = 89
	defaultPageSize    = 65536
	defaultStartSlots  = 89
	defaultPermissions = 0o644

	minPageSize = 1024
	maxPageSize = 16 << 20
)

// Options configures a Cache. It mirrors the recognized-option table of the
// engine this package is modeled on: share_file, num_pages, page_size,
// start_slots, expire_time, init_file, test_file, catch_deadlocks,
// enable_stats, permissions.
type Options struct {
	// SharePath is the path of the backing file.
	SharePath string

	// NumPages is the page count. Must match across every process sharing
	// the file. Defaults to 89.
	NumPages int

	// PageSize is bytes per page. Must match across every process sharing
	// the file. Defaults to 65536. Practical range 1 KiB .. 16 MiB.
	PageSize int

	// StartSlots is the initial slot-table size per page. Defaults to 89.
	StartSlots int

	// DefaultExpireSeconds is used by Write/PutByKey when the caller
	// passes ExpireUseDefault.
	DefaultExpireSeconds uint64

	// InitFile forces re-creation of the backing file at Open, discarding
	// any existing contents.
	InitFile bool

	// TestFile, if true, validates every page at Open and reinitializes
	// any page that fails its invariant check.
	TestFile bool

	// CatchDeadlocks wraps the blocking page-lock call with a bounded
	// timer so a stuck lock surfaces as an I/O error instead of hanging
	// forever. This applies on Unix only; on Windows the flag has no
	// effect and the lock call blocks until it is granted.
	CatchDeadlocks bool

	// EnableStats increments NReads/NReadHits on every read.
	EnableStats bool

	// Permissions are the file mode bits used when creating the backing
	// file.
	Permissions uint32
}

// withDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) withDefaults() Options {
	if o.NumPages == 0 {
		o.NumPages = defaultNumPages
	}
	if o.PageSize == 0 {
		o.PageSize = defaultPageSize
	}
	if o.StartSlots == 0 {
		o.StartSlots = defaultStartSlots
	}
	if o.Permissions == 0 {
		o.Permissions = defaultPermissions
	}
	return o
}

// validate checks Options against the constraints the page layout depends
// on, returning ErrConfig wrapped with the offending field on failure.
func (o Options) validate() error {
	if o.SharePath == "" {
		return fmt.Errorf("share path is empty: %w", ErrConfig)
	}
	if o.NumPages <= 0 {
		return fmt.Errorf("num_pages must be positive, got %d: %w", o.NumPages, ErrConfig)
	}
	if o.PageSize < minPageSize || o.PageSize > maxPageSize {
		return fmt.Errorf("page_size %d out of range [%d, %d]: %w", o.PageSize, minPageSize, maxPageSize, ErrConfig)
	}
	if o.PageSize%wordSize != 0 {
		return fmt.Errorf("page_size %d not a multiple of word size %d: %w", o.PageSize, wordSize, ErrConfig)
	}
	if o.StartSlots <= 0 {
		return fmt.Errorf("start_slots must be positive, got %d: %w", o.StartSlots, ErrConfig)
	}
	minHeader := headerSizeBytes + o.StartSlots*wordSize
	if minHeader >= o.PageSize {
		return fmt.Errorf("start_slots %d too large for page_size %d: %w", o.StartSlots, o.PageSize, ErrConfig)
	}
	if o.DefaultExpireSeconds == ExpireUseDefault {
		return fmt.Errorf("default_expire_seconds collides with the use-default sentinel: %w", ErrConfig)
	}
	return nil
}

// fileSize is the exact total size a backing file must have for these
// Options: NumPages * PageSize, per spec §6.1.
func (o Options) fileSize() int64 {
	return int64(o.NumPages) * int64(o.PageSize)
}
