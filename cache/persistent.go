package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"now-playing-api-go/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const bucketName = "cache"

// PersistentStore keeps the cache document in a BoltDB file
type PersistentStore struct {
	db     *bolt.DB
	dbPath string
	mu     sync.RWMutex
}

// NewPersistentStore opens (or creates) the database at dbPath.
// A file that is not a valid database is returned as an error.
func NewPersistentStore(dbPath string) (*PersistentStore, error) {
	dir := filepath.Dir(dbPath)

	if info, err := os.Stat(dir); err == nil {
		log.Infof("%s Directory %s exists (IsDir: %v)", logcolors.LogCacheInit, dir, info.IsDir())
	} else {
		log.Infof("%s Directory %s does not exist, creating...", logcolors.LogCacheInit, dir)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	if info, err := os.Stat(dbPath); err == nil {
		log.Infof("%s Found existing database file at: %s (size: %d bytes)", logcolors.LogCacheInit, dbPath, info.Size())
	} else {
		log.Infof("%s Creating new database file at: %s", logcolors.LogCacheInit, dbPath)
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	log.Infof("%s Persistent store initialized at %s", logcolors.LogCache, dbPath)
	return &PersistentStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file location
func (ps *PersistentStore) Path() string {
	return ps.dbPath
}

func (ps *PersistentStore) Load(key Key) ([]byte, bool, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.db == nil {
		return nil, false, ErrStoreClosed
	}

	var data []byte
	err := ps.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		if v := b.Get([]byte(key)); v != nil {
			// bolt memory is only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

func (ps *PersistentStore) Save(key Key, data []byte) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.db == nil {
		return ErrStoreClosed
	}

	return ps.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(key), data)
	})
}

// Reset removes all entries
func (ps *PersistentStore) Reset() error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.db == nil {
		return ErrStoreClosed
	}

	err := ps.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return err
	}

	log.Infof("%s Store reset to empty", logcolors.LogCacheClear)
	return nil
}

// Close closes the database connection
func (ps *PersistentStore) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.db == nil {
		return nil
	}
	err := ps.db.Close()
	ps.db = nil
	return err
}
