package sharedmmap

import "fmt"

// platformStore is the backing-store adapter contract (spec §2 component
// 1): open/create the shared file at a fixed total size, map it into the
// process, and expose an exclusive byte-range lock over a single page.
// store_unix.go and store_windows.go each provide one implementation; the
// rest of the package never branches on OS.
type platformStore interface {
	// Bytes returns the full mapped region, NumPages*PageSize bytes.
	// Callers may only mutate the byte range of a page they currently
	// hold locked.
	Bytes() []byte

	// LockPage blocks until it holds the exclusive byte-range lock
	// covering page p's region. catchDeadlocks requests a bounded timer
	// around the blocking call (spec §5).
	LockPage(p int, catchDeadlocks bool) error

	// UnlockPage releases the lock acquired by LockPage for page p.
	UnlockPage(p int) error

	// Created reports whether Open had to create a fresh backing file
	// (as opposed to reusing an existing one of the right size).
	Created() bool

	// Close releases the mapping and the file handle.
	Close() error
}

// openOptions bundles what a platformStore implementation needs from
// Options without importing the whole package-level Options type's
// validation concerns into store_*.go.
type openOptions struct {
	Path        string
	Size        int64
	PageSize    int
	InitFile    bool
	Permissions uint32
}

func newOpenOptions(o Options) openOptions {
	return openOptions{
		Path:        o.SharePath,
		Size:        o.fileSize(),
		PageSize:    o.PageSize,
		InitFile:    o.InitFile,
		Permissions: o.Permissions,
	}
}

// wrapIOErr wraps err with ErrIO and a short operation description,
// matching the "backing-store I/O" error kind of spec §7.
func wrapIOErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrIO)
}
