// Package lock provides an advisory file lock so only one orchestrator
// invocation mutates state at a time. Acquisition is fail-fast: a second
// invocation reports Busy instead of waiting.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrBusy is returned when another invocation holds the lock.
var ErrBusy = errors.New("another orchestrator run is in progress")

// DefaultStaleAge is how old a lock file may be before it is presumed
// abandoned by a crashed process and broken.
const DefaultStaleAge = 2 * time.Hour

// Guard is an advisory lock backed by an exclusively-created file holding
// the owner's pid and acquisition time.
type Guard struct {
	path     string
	staleAge time.Duration
	now      func() time.Time
}

// NewGuard creates a guard over the lock file at path.
func NewGuard(path string, staleAge time.Duration) *Guard {
	if staleAge <= 0 {
		staleAge = DefaultStaleAge
	}
	return &Guard{path: path, staleAge: staleAge, now: time.Now}
}

// Acquire takes the lock or fails immediately with ErrBusy. A lock older
// than the stale age is broken and re-acquired; one fresh enough is honored.
func (g *Guard) Acquire() error {
	if dir := filepath.Dir(g.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	if err := g.tryCreate(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	// Staleness is judged by the lock file's mtime, not its content: the
	// file may exist before the holder has finished writing its payload.
	info, serr := os.Stat(g.path)
	if serr != nil {
		if os.IsNotExist(serr) {
			// Holder released between our create attempt and the stat.
			if err := g.tryCreate(); err != nil {
				if os.IsExist(err) {
					return ErrBusy
				}
				return fmt.Errorf("failed to create lock file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to stat lock file: %w", serr)
	}
	if g.now().Sub(info.ModTime()) < g.staleAge {
		return fmt.Errorf("%w (held since %s)", ErrBusy, info.ModTime().Format(time.RFC3339))
	}

	// Stale: break it and try once more. A race here still yields exactly
	// one winner via O_EXCL.
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lock: %w", err)
	}
	if err := g.tryCreate(); err != nil {
		if os.IsExist(err) {
			return ErrBusy
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// Release removes the lock file. Releasing an already-released lock is a
// no-op so it is safe to defer on every exit path.
func (g *Guard) Release() error {
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (g *Guard) tryCreate() error {
	f, err := os.OpenFile(g.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), g.now().UTC().Format(time.RFC3339Nano))
	return err
}

