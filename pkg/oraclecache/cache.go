package oraclecache

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketCounts = []byte("counts")

// Cache is a single-bucket bbolt store mapping a password root to the
// breach count last observed for it, so the feedback analyzer never spends
// a k-anonymity query on a root it already asked the oracle about.
type Cache struct {
	db *bolt.DB
}

// Open creates or opens the cache database at path, creating its one
// bucket if missing.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open oracle cache %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCounts)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create counts bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached breach count for root, and whether it was present.
func (c *Cache) Get(root string) (count int64, found bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCounts).Get([]byte(root))
		if v == nil {
			return nil
		}
		found = true
		count = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return count, found, err
}

// Put records count as the breach count for root.
func (c *Cache) Put(root string, count int64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(count))
		return tx.Bucket(bucketCounts).Put([]byte(root), buf)
	})
}

// Len returns the number of roots currently cached.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketCounts).Stats().KeyN
		return nil
	})
	return n, err
}

// ForEach iterates every cached (root, count) pair in key order.
func (c *Cache) ForEach(fn func(root string, count int64) error) error {
	return c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCounts).ForEach(func(k, v []byte) error {
			return fn(string(k), int64(binary.BigEndian.Uint64(v)))
		})
	})
}
