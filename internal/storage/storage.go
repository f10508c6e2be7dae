package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samvad-hq/post-archiver/internal/domain"
)

// Package storage persists per-account watermarks: the newest post id archived for
// each watched account.

// Store reads and advances account watermarks. Write only ever moves a watermark
// forward, so concurrent or repeated writes for the same account are safe.
type Store interface {
	// Read returns the stored watermark for handle. A missing record is created
	// holding domain.NoPostID; an unparseable record reads as domain.NoPostID.
	Read(handle string) (domain.PostID, error)
	// Write stores id when it is greater than the stored watermark or the stored
	// value is missing or unparseable. It reports whether the record changed.
	Write(handle string, id domain.PostID) (bool, error)
	Close() error
}

const (
	TypeFile   = "file"
	TypeBBolt  = "bbolt"
	TypeMemory = "memory"
)

// NewStore creates the configured storage backend. For the file backend path is the
// watermark file prefix; for bbolt it is the database file.
func NewStore(typ, path string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", TypeFile:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("file storage requires a watermark prefix")
		}
		return openFile(path)
	case TypeBBolt:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// decodeWatermark parses a stored decimal watermark.
func decodeWatermark(raw []byte) (domain.PostID, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return domain.NoPostID, false
	}
	return domain.PostID(v), true
}

func encodeWatermark(id domain.PostID) []byte {
	return []byte(id.String())
}

// advances reports whether id should replace the stored raw value.
func advances(raw []byte, id domain.PostID) bool {
	current, ok := decodeWatermark(raw)
	return !ok || id > current
}

func validateHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return fmt.Errorf("account handle is empty")
	}
	if strings.ContainsAny(handle, `/\`) || handle == "." || handle == ".." {
		return fmt.Errorf("account handle %q is not a valid storage key", handle)
	}
	return nil
}
