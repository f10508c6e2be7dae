package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samvad-hq/post-archiver/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const watermarkBucket = "watermarks"

// boltStore implements a Store backed by BoltDB. Each watermark is a decimal string
// keyed by account handle, and every compare-and-advance runs in one transaction.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(watermarkBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Read returns the watermark for handle, seeding the sentinel when absent.
func (b *boltStore) Read(handle string) (domain.PostID, error) {
	if err := validateHandle(handle); err != nil {
		return domain.NoPostID, err
	}

	id := domain.NoPostID
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(watermarkBucket))
		if bucket == nil {
			return fmt.Errorf("watermark bucket missing")
		}

		key := []byte(handle)
		value := bucket.Get(key)
		if value == nil {
			return bucket.Put(key, encodeWatermark(domain.NoPostID))
		}
		if stored, ok := decodeWatermark(value); ok {
			id = stored
		}
		return nil
	})
	if err != nil {
		return domain.NoPostID, fmt.Errorf("read watermark for %s: %w", handle, err)
	}
	return id, nil
}

// Write advances the watermark for handle when id is newer.
func (b *boltStore) Write(handle string, id domain.PostID) (bool, error) {
	if err := validateHandle(handle); err != nil {
		return false, err
	}

	var changed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(watermarkBucket))
		if bucket == nil {
			return fmt.Errorf("watermark bucket missing")
		}

		key := []byte(handle)
		if !advances(bucket.Get(key), id) {
			return nil
		}
		changed = true
		return bucket.Put(key, encodeWatermark(id))
	})
	if err != nil {
		return false, fmt.Errorf("write watermark for %s: %w", handle, err)
	}
	return changed, nil
}
