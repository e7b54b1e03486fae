package sharedmmap

import "errors"

// Sentinel errors classify every failure the cache can return. Callers
// should use errors.Is against these rather than matching message text.
var (
	// ErrConfig marks a rejected Options value (bad page size, zero pages,
	// start slots too large for the page, and the like).
	ErrConfig = errors.New("sharedmmap: invalid configuration")

	// ErrIO marks a failure talking to the backing store: open, truncate,
	// mmap, or an advisory-lock syscall.
	ErrIO = errors.New("sharedmmap: backing store I/O failed")

	// ErrCorrupt marks a page that failed its invariant self-check.
	ErrCorrupt = errors.New("sharedmmap: page failed invariant check")

	// ErrUsage marks a caller contract violation: locking while already
	// locked, a page index out of range, operating or unlocking with no
	// page locked, closing while locked, an unknown expunge mode, or using
	// a closed iterator.
	ErrUsage = errors.New("sharedmmap: invalid use of cache handle")

	// ErrNotFound is returned by Read/GetByKey and Delete/DeleteByKey when
	// the key isn't present (or was present but has expired).
	ErrNotFound = errors.New("sharedmmap: key not found")

	// ErrNotStored is returned by Write when the page has no free slot or
	// too few free arena bytes for the entry, and by PutByKey when the
	// entry still does not fit after its one make-room expunge pass.
	ErrNotStored = errors.New("sharedmmap: entry does not fit")
)
