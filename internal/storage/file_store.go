package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/samvad-hq/post-archiver/internal/domain"
)

// fileStore keeps one text file per account at "<prefix>.<handle>", each holding a
// single decimal post id.
type fileStore struct {
	prefix string
	mu     sync.Mutex
}

func openFile(prefix string) (Store, error) {
	dir := filepath.Dir(prefix)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	return &fileStore{prefix: prefix}, nil
}

func (f *fileStore) pathFor(handle string) string {
	return f.prefix + "." + handle
}

// Read returns the watermark, creating the record on first use.
func (f *fileStore) Read(handle string) (domain.PostID, error) {
	if err := validateHandle(handle); err != nil {
		return domain.NoPostID, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	raw, exists, err := f.load(handle)
	if err != nil {
		return domain.NoPostID, err
	}
	if !exists {
		if err := f.store(handle, domain.NoPostID); err != nil {
			return domain.NoPostID, err
		}
		return domain.NoPostID, nil
	}

	id, _ := decodeWatermark(raw)
	return id, nil
}

// Write advances the watermark file when id is newer than its contents.
func (f *fileStore) Write(handle string, id domain.PostID) (bool, error) {
	if err := validateHandle(handle); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	raw, _, err := f.load(handle)
	if err != nil {
		return false, err
	}
	if !advances(raw, id) {
		return false, nil
	}
	if err := f.store(handle, id); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fileStore) Close() error { return nil }

func (f *fileStore) load(handle string) ([]byte, bool, error) {
	raw, err := os.ReadFile(f.pathFor(handle))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read watermark for %s: %w", handle, err)
	}
	return raw, true, nil
}

// store replaces the record through a temp file so a crash never leaves a torn value.
func (f *fileStore) store(handle string, id domain.PostID) error {
	path := f.pathFor(handle)
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create watermark temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(encodeWatermark(id)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write watermark for %s: %w", handle, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync watermark for %s: %w", handle, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close watermark for %s: %w", handle, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace watermark for %s: %w", handle, err)
	}
	return nil
}
