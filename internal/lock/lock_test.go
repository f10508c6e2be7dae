//go:build unix

package lock

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireWritesPIDAndBlocksSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, "post-archiver")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer first.Release()

	raw, err := os.ReadFile(first.Path())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(raw)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", raw)
	}

	_, err = Acquire(dir, "post-archiver")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, "post-archiver")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release should be a no-op: %v", err)
	}
	raw, err := os.ReadFile(first.Path())
	if err != nil {
		t.Fatalf("expected pid file kept after release: %v", err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected pid cleared on release, got %q", raw)
	}

	second, err := Acquire(dir, "post-archiver")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	second.Release()
}

func TestContenderOpenedBeforeReleaseSharesLock(t *testing.T) {
	dir := t.TempDir()

	first, err := Acquire(dir, "post-archiver")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	waiting, err := os.OpenFile(first.Path(), os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("open pid file: %v", err)
	}
	defer waiting.Close()

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := tryLock(waiting); err != nil {
		t.Fatalf("lock through the earlier handle: %v", err)
	}
	defer unlock(waiting)

	if _, err := Acquire(dir, "post-archiver"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning while the earlier handle holds the lock, got %v", err)
	}
}

func TestAcquireRejectsEmptyName(t *testing.T) {
	if _, err := Acquire(t.TempDir(), " "); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
