//go:build !windows

package sharedmmap

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// deadlockTimeoutSeconds bounds a page lock wait when CatchDeadlocks is
// set, mirroring the 10-second alarm() window of the adapter this is
// modeled on.
const deadlockTimeoutSeconds = 10
const deadlockTimeout = deadlockTimeoutSeconds * time.Second

// unixStore implements platformStore over an os.File, golang.org/x/sys/unix
// mmap, and per-page fcntl byte-range locks.
type unixStore struct {
	f       *os.File
	data    []byte
	pageLen int64
	created bool
}

func openStore(o openOptions) (platformStore, error) {
	f, err := os.OpenFile(o.Path, os.O_RDWR|os.O_CREATE, os.FileMode(o.Permissions))
	if err != nil {
		return nil, wrapIOErr("open share file", err)
	}

	// Whole-file exclusive lock guards the create/truncate/zero-fill
	// bootstrap against a concurrent opener, mirroring the source's
	// open_cache_file: take F_WRLCK over the whole file, resize under it,
	// then release before mapping.
	wholeLock := unix.Flock_t{Type: unix.F_WRLCK, Whence: int16(os.SEEK_SET)}
	if err := fcntlFlockRetry(f, unix.F_SETLKW, &wholeLock); err != nil {
		f.Close()
		return nil, wrapIOErr("lock share file", err)
	}

	created := false
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapIOErr("stat share file", err)
	}
	if o.InitFile || st.Size() != o.Size {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return nil, wrapIOErr("truncate share file", err)
		}
		if err := f.Truncate(o.Size); err != nil {
			f.Close()
			return nil, wrapIOErr("grow share file", err)
		}
		created = true
	}

	wholeLock.Type = unix.F_UNLCK
	if err := fcntlFlockRetry(f, unix.F_SETLK, &wholeLock); err != nil {
		f.Close()
		return nil, wrapIOErr("unlock share file", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(o.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, wrapIOErr("mmap share file", err)
	}

	return &unixStore{f: f, data: data, pageLen: int64(o.PageSize), created: created}, nil
}

func (s *unixStore) Bytes() []byte { return s.data }
func (s *unixStore) Created() bool { return s.created }

// LockPage blocks on F_SETLKW for the page's byte range. When
// catchDeadlocks is set it arms a real alarm(2) via unix.Alarm, the same
// mechanism the adapter this is modeled on uses: SIGALRM interrupts the
// blocked fcntl call with EINTR, which is distinguished here from any
// other benign EINTR by checking whether the alarm's signal actually
// arrived before retrying.
func (s *unixStore) LockPage(p int, catchDeadlocks bool) error {
	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(os.SEEK_SET),
		Start:  int64(p) * s.pageLen,
		Len:    s.pageLen,
	}

	var alarmCh chan os.Signal
	if catchDeadlocks {
		alarmCh = make(chan os.Signal, 1)
		signal.Notify(alarmCh, syscall.SIGALRM)
		defer signal.Stop(alarmCh)
		defer unix.Alarm(0)
		unix.Alarm(deadlockTimeoutSeconds)
	}

	for {
		err := unix.FcntlFlock(s.f.Fd(), unix.F_SETLKW, &lock)
		if err == nil {
			return nil
		}
		if err == unix.EINTR {
			if catchDeadlocks {
				select {
				case <-alarmCh:
					return wrapIOErr("lock page", fmt.Errorf("timed out after %s", deadlockTimeout))
				default:
				}
			}
			continue
		}
		return wrapIOErr("lock page", err)
	}
}

func (s *unixStore) UnlockPage(p int) error {
	lock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: int16(os.SEEK_SET),
		Start:  int64(p) * s.pageLen,
		Len:    s.pageLen,
	}
	if err := fcntlFlockRetry(s.f, unix.F_SETLKW, &lock); err != nil {
		return wrapIOErr("unlock page", err)
	}
	return nil
}

func (s *unixStore) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return wrapIOErr("munmap share file", err)
	}
	if err := s.f.Close(); err != nil {
		return wrapIOErr("close share file", err)
	}
	return nil
}

// fcntlFlockRetry retries an fcntl byte-range lock call across benign
// EINTR interruptions, for the uncatchable (no deadlock timer) path.
func fcntlFlockRetry(f *os.File, cmd int, lock *unix.Flock_t) error {
	for {
		err := unix.FcntlFlock(f.Fd(), cmd, lock)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}
