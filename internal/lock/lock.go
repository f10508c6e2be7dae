package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAlreadyRunning reports that another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

var errLocked = errors.New("lock held")

// Lock is an exclusive, process-scoped pid file lock. The lock is an advisory
// flock on the pid file, so it is dropped by the kernel if the process dies.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock <dir>/<name>.pid without blocking. When another process
// holds it the returned error wraps ErrAlreadyRunning.
func Acquire(dir, name string) (*Lock, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("lock name is empty")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	path := filepath.Join(dir, name+".pid")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := tryLock(f); err != nil {
		f.Close()
		if errors.Is(err, errLocked) {
			return nil, fmt.Errorf("%w: %s held by pid %s", ErrAlreadyRunning, path, holderPID(path))
		}
		return nil, fmt.Errorf("lock pid file: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		unlock(f)
		f.Close()
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		unlock(f)
		f.Close()
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &Lock{path: path, file: f}, nil
}

// Path returns the pid file location.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release clears the pid file and drops the lock. It is safe to call more than once.
// The file itself stays in place: every contender must lock the same inode.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	var errs []error
	if err := f.Truncate(0); err != nil {
		errs = append(errs, fmt.Errorf("clear pid file: %w", err))
	}
	if err := unlock(f); err != nil {
		errs = append(errs, fmt.Errorf("unlock pid file: %w", err))
	}
	if err := f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pid file: %w", err))
	}
	return errors.Join(errs...)
}

func holderPID(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	pid := strings.TrimSpace(string(raw))
	if pid == "" {
		return "unknown"
	}
	return pid
}
