package receipt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another nixup process holds the receipt lock.
var ErrLocked = errors.New("another nixup process is already running against this host")

// Lock is an advisory flock on a sibling of the receipt file. It serializes
// installer invocations; concurrent installs are not supported.
type Lock struct {
	f *os.File
}

// Acquire takes the lock non-blocking. A held lock means another install or
// uninstall is in progress and the caller must refuse to proceed. Before the
// first install the receipt directory does not exist yet; the lock then
// lives in the system temp directory instead.
func (s *Store) Acquire() (*Lock, error) {
	path := s.Path + ".lock"
	if _, err := os.Stat(filepath.Dir(s.Path)); errors.Is(err, fs.ErrNotExist) {
		path = filepath.Join(os.TempDir(), "nixup-"+filepath.Base(s.Path)+".lock")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. The lock file itself is left in place; its
// presence carries no meaning without the flock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if closeErr := l.f.Close(); err == nil {
		err = closeErr
	}
	l.f = nil
	return err
}
