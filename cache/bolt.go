package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Meschack/lyriks/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const bucketName = "cache"

// BoltStore wraps BoltDB with an in-memory mirror for fast reads.
type BoltStore struct {
	mu                 sync.RWMutex // guards db swaps during restore
	db                 *bolt.DB
	memCache           sync.Map
	dbPath             string
	backupPath         string
	compressionEnabled bool
	now                func() time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// boltEntry is the on-disk representation. Value is base64 gzip when compression is enabled.
type boltEntry struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expiresAt,omitempty"` // unix nanos, 0 = never
}

func (e boltEntry) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && now.UnixNano() >= e.ExpiresAt
}

// NewBoltStore opens (or creates) the database at dbPath and preloads it into memory.
func NewBoltStore(dbPath string, backupPath string, compressionEnabled bool) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)

	if info, err := os.Stat(dir); err == nil {
		log.Infof("%s Directory %s exists (IsDir: %v)", logcolors.LogCacheInit, dir, info.IsDir())
	} else {
		log.Infof("%s Directory %s does not exist, creating...", logcolors.LogCacheInit, dir)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	log.Infof("%s Backup directory set to: %s", logcolors.LogCacheInit, backupPath)

	bs := &BoltStore{
		dbPath:             dbPath,
		backupPath:         backupPath,
		compressionEnabled: compressionEnabled,
		now:                time.Now,
	}

	if err := bs.open(); err != nil {
		return nil, err
	}

	log.Infof("%s Bolt store initialized at %s (compression: %v)", logcolors.LogCache, dbPath, compressionEnabled)
	return bs, nil
}

func (bs *BoltStore) open() error {
	db, err := bolt.Open(bs.dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create cache bucket: %w", err)
	}

	bs.db = db
	if err := bs.loadToMemory(); err != nil {
		log.Warnf("%s Failed to preload cache to memory: %v", logcolors.LogCache, err)
	}
	return nil
}

// loadToMemory replaces the memory mirror with the live (non-expired) entries on disk.
func (bs *BoltStore) loadToMemory() error {
	bs.memCache.Range(func(k, _ interface{}) bool {
		bs.memCache.Delete(k)
		return true
	})

	now := bs.now()
	count, skipped := 0, 0
	err := bs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var entry boltEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				log.Warnf("%s Failed to unmarshal cache entry for key %s: %v", logcolors.LogCache, string(k), err)
				return nil
			}
			if entry.expired(now) {
				skipped++
				return nil
			}
			bs.memCache.Store(string(k), entry)
			count++
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Infof("%s Loaded %d entries from disk to memory (%d expired)", logcolors.LogCache, count, skipped)
	return nil
}

func (bs *BoltStore) decode(entry boltEntry) ([]byte, error) {
	if !bs.compressionEnabled {
		return []byte(entry.Value), nil
	}
	return decompressValue(entry.Value)
}

// Get returns the value for key, checking memory first and then disk.
func (bs *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	now := bs.now()

	if v, ok := bs.memCache.Load(key); ok {
		entry := v.(boltEntry)
		if entry.expired(now) {
			bs.Delete(ctx, key)
			return nil, ErrNotFound
		}
		return bs.decode(entry)
	}

	bs.mu.RLock()
	defer bs.mu.RUnlock()

	var entry boltEntry
	err := bs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	if entry.expired(now) {
		return nil, ErrNotFound
	}

	bs.memCache.Store(key, entry)
	return bs.decode(entry)
}

// Set stores value under key. A non-positive ttl never expires.
func (bs *BoltStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := boltEntry{Value: string(value)}
	if bs.compressionEnabled {
		compressed, err := compressValue(value)
		if err != nil {
			return fmt.Errorf("compress %s: %w", key, err)
		}
		entry.Value = compressed
	}
	if ttl > 0 {
		entry.ExpiresAt = bs.now().Add(ttl).UnixNano()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	bs.mu.RLock()
	defer bs.mu.RUnlock()

	err = bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return err
	}

	bs.memCache.Store(key, entry)
	return nil
}

// Delete removes key from memory and disk.
func (bs *BoltStore) Delete(ctx context.Context, key string) error {
	bs.memCache.Delete(key)

	bs.mu.RLock()
	defer bs.mu.RUnlock()

	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(key))
	})
}

// DeletePrefix removes every key starting with prefix.
func (bs *BoltStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return bs.deleteWhere(func(k []byte, _ boltEntry) bool {
		return strings.HasPrefix(string(k), prefix)
	})
}

// Sweep deletes expired entries and returns how many were removed.
func (bs *BoltStore) Sweep() (int, error) {
	now := bs.now()
	return bs.deleteWhere(func(_ []byte, e boltEntry) bool {
		return e.expired(now)
	})
}

func (bs *BoltStore) deleteWhere(match func(k []byte, e boltEntry) bool) (int, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	removed := 0
	err := bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		// Collect first: deleting under an active cursor can skip keys.
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry boltEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			if match(k, entry) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			bs.memCache.Delete(string(k))
			removed++
		}
		return nil
	})
	return removed, err
}

// StartSweeper runs Sweep every interval until Close is called.
func (bs *BoltStore) StartSweeper(interval time.Duration) {
	if interval <= 0 || bs.sweepStop != nil {
		return
	}
	bs.sweepStop = make(chan struct{})
	bs.sweepDone = make(chan struct{})

	go func() {
		defer close(bs.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := bs.Sweep()
				if err != nil {
					log.Warnf("%s Sweep failed: %v", logcolors.LogCacheSweep, err)
					continue
				}
				if n > 0 {
					log.Infof("%s Removed %d expired entries", logcolors.LogCacheSweep, n)
				}
			case <-bs.sweepStop:
				return
			}
		}
	}()
	log.Infof("%s Sweeper started (interval: %v)", logcolors.LogCacheSweep, interval)
}

// Ping reports whether the database is open.
func (bs *BoltStore) Ping(ctx context.Context) error {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.db.View(func(tx *bolt.Tx) error { return nil })
}

// Stats returns the number of live keys and their approximate size.
func (bs *BoltStore) Stats() (numKeys int, sizeInKB int) {
	bs.memCache.Range(func(k, v interface{}) bool {
		entry := v.(boltEntry)
		numKeys++
		sizeInKB += len(k.(string)) + len(entry.Value)
		return true
	})
	sizeInKB = sizeInKB / 1024
	return
}

// Close stops the sweeper and closes the database. Safe to call more than once.
func (bs *BoltStore) Close() error {
	var err error
	bs.closeOnce.Do(func() {
		if bs.sweepStop != nil {
			close(bs.sweepStop)
			<-bs.sweepDone
		}
		bs.mu.Lock()
		defer bs.mu.Unlock()
		if bs.db != nil {
			err = bs.db.Close()
		}
	})
	return err
}
