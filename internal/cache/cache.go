// Package cache keeps computed score results on disk so that identical
// administrations scored against an unchanged scale are not recomputed.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/panbanda/rehabscore/pkg/models"
)

// Cache is a file-based result cache.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// Entry is one cached result. Hash is the digest of the scale definition the
// result was computed against.
type Entry struct {
	Hash      string          `json:"hash"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New creates a cache rooted at dir. A disabled cache never hits and never writes.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
	}, nil
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Enabled reports whether the cache reads and writes.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Get returns the data stored under key when it was written for the same
// hash and has not expired.
func (c *Cache) Get(key, hash string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}

	path := c.keyPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}

	if entry.Hash != hash {
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.Timestamp) > c.ttl {
		os.Remove(path)
		return nil, false
	}

	return entry.Data, true
}

// Set stores data under key, tagged with hash.
func (c *Cache) Set(key, hash string, data []byte) error {
	if !c.enabled {
		return nil
	}

	entry := Entry{
		Hash:      hash,
		Timestamp: time.Now(),
		Data:      data,
	}

	entryData, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return os.WriteFile(c.keyPath(key), entryData, 0600)
}

// ResultHash is the validity hash of a cached result: it changes when either
// the scale definition or the norms in effect change.
func ResultHash(scaleDigest, normsDigest string) string {
	return scaleDigest + ":" + normsDigest
}

// ResultKey identifies a cached result. Identical answers from two instances
// are separate entries, so a hit always carries the requested instance id.
func ResultKey(instanceID, inputDigest string) string {
	return instanceID + ":" + inputDigest
}

// GetResult looks up the result of one instance by the input digest of its
// administration. It only hits when the result was computed against the same
// scale and norms. ScoredAt is the time of the cached computation.
func (c *Cache) GetResult(instanceID, inputDigest, scaleDigest, normsDigest string) (*models.ScoreResult, bool) {
	key := ResultKey(instanceID, inputDigest)
	data, ok := c.Get(key, ResultHash(scaleDigest, normsDigest))
	if !ok {
		return nil, false
	}
	var res models.ScoreResult
	if err := json.Unmarshal(data, &res); err != nil || res.InstanceID != instanceID {
		_ = c.Invalidate(key)
		return nil, false
	}
	return &res, true
}

// PutResult caches a result under its instance id and input digest.
func (c *Cache) PutResult(res *models.ScoreResult, normsDigest string) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.Set(ResultKey(res.InstanceID, res.InputDigest), ResultHash(res.ScaleDigest, normsDigest), data)
}

// Invalidate removes a cache entry. A missing entry is not an error.
func (c *Cache) Invalidate(key string) error {
	if !c.enabled {
		return nil
	}
	if err := os.Remove(c.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// keyPath hashes the key so arbitrary strings are safe file names.
func (c *Cache) keyPath(key string) string {
	return filepath.Join(c.dir, HashBytes([]byte(key))+".json")
}

// Stats returns cache statistics.
type Stats struct {
	Entries   int           `json:"entries"`
	TotalSize int64         `json:"total_size"`
	OldestAge time.Duration `json:"oldest_age"`
	NewestAge time.Duration `json:"newest_age"`
}

// GetStats walks the cache directory.
func (c *Cache) GetStats() (*Stats, error) {
	if !c.enabled {
		return &Stats{}, nil
	}

	stats := &Stats{}
	var oldest, newest time.Time

	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		stats.Entries++
		stats.TotalSize += info.Size()

		modTime := info.ModTime()
		if oldest.IsZero() || modTime.Before(oldest) {
			oldest = modTime
		}
		if newest.IsZero() || modTime.After(newest) {
			newest = modTime
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	if !newest.IsZero() {
		stats.NewestAge = time.Since(newest)
	}
	return stats, nil
}
