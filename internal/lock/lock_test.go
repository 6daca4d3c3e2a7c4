package lock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	g := NewGuard(filepath.Join(t.TempDir(), "run.lock"), 0)

	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// Re-acquirable after release.
	if err := g.Acquire(); err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if err := g.Release(); err != nil {
		t.Fatal(err)
	}
	// Double release is harmless.
	if err := g.Release(); err != nil {
		t.Errorf("double Release: %v", err)
	}
}

func TestSecondAcquireFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	first := NewGuard(path, 0)
	second := NewGuard(path, 0)

	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	start := time.Now()
	err := second.Acquire()
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire = %v, want ErrBusy", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("second Acquire blocked for %v, want fail-fast", elapsed)
	}
}

func TestConcurrentAcquireExactlyOneWinner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = NewGuard(path, 0).Acquire()
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrBusy) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestStaleLockIsBroken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	holder := NewGuard(path, time.Hour)
	if err := holder.Acquire(); err != nil {
		t.Fatalf("holder Acquire: %v", err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	g := NewGuard(path, time.Hour)
	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	defer g.Release()
}

func TestFreshLockIsHonored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	holder := NewGuard(path, time.Hour)
	if err := holder.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer holder.Release()

	g := NewGuard(path, time.Hour)
	if err := g.Acquire(); !errors.Is(err, ErrBusy) {
		t.Fatalf("Acquire = %v, want ErrBusy for fresh lock", err)
	}
}
