package storage

import (
	"path/filepath"
	"testing"

	"github.com/samvad-hq/post-archiver/internal/domain"
	bolt "go.etcd.io/bbolt"
)

func TestBoltStoreOverwritesCorruptValue(t *testing.T) {
	storeRaw, err := openBolt(filepath.Join(t.TempDir(), "marks.db"))
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	store := storeRaw.(*boltStore)
	defer store.Close()

	if err := store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(watermarkBucket)).Put([]byte("POTUS"), []byte("not-a-number"))
	}); err != nil {
		t.Fatalf("seed corrupt value: %v", err)
	}

	id, err := store.Read("POTUS")
	if err != nil || id != domain.NoPostID {
		t.Fatalf("expected sentinel for corrupt value, got %d err=%v", id, err)
	}

	changed, err := store.Write("POTUS", 3)
	if err != nil || !changed {
		t.Fatalf("expected corrupt value to be overwritten, changed=%v err=%v", changed, err)
	}
	if id, _ := store.Read("POTUS"); id != 3 {
		t.Fatalf("expected 3, got %d", id)
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "marks.db")

	first, err := openBolt(path)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	if _, err := first.Write("realDonaldTrump", 1234567890123456789); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := openBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	id, err := second.Read("realDonaldTrump")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if id != 1234567890123456789 {
		t.Fatalf("expected persisted id, got %d", id)
	}
}
