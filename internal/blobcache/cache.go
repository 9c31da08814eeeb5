// Package blobcache keeps the latest known blob and its digest per owner.
//
// Records are immutable: Set replaces the whole record, nothing ever edits one
// in place. The cache does not transform content.
package blobcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// Record is one owner's blob as last seen by this process.
type Record struct {
	OwnerID    string
	Bytes      []byte
	Hash       string
	SizeBytes  int
	CapturedAt time.Time
}

// HashOf returns the lowercase hex SHA-256 of b. It is the digest used on both
// ends of a transfer.
func HashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type Cache struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func New() *Cache {
	return &Cache{records: make(map[string]Record), now: time.Now}
}

// Get returns the owner's record, if any.
func (c *Cache) Get(owner string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[owner]
	return r, ok
}

// Hash returns the cached digest for owner or "" when nothing is cached.
func (c *Cache) Hash(owner string) string {
	r, _ := c.Get(owner)
	return r.Hash
}

// Set replaces the owner's record with data and hash and returns the new record.
func (c *Cache) Set(owner string, data []byte, hash string) Record {
	r := Record{
		OwnerID:    owner,
		Bytes:      data,
		Hash:       hash,
		SizeBytes:  len(data),
		CapturedAt: c.now(),
	}

	c.mu.Lock()
	c.records[owner] = r
	c.mu.Unlock()

	return r
}

// IsSameBytes compares data with the cached bytes, length first. It does not
// look at the digest.
func (c *Cache) IsSameBytes(owner string, data []byte) bool {
	r, ok := c.Get(owner)
	if !ok || data == nil {
		return false
	}
	if len(r.Bytes) != len(data) {
		return false
	}
	return bytes.Equal(r.Bytes, data)
}

// Delete forgets owner.
func (c *Cache) Delete(owner string) {
	c.mu.Lock()
	delete(c.records, owner)
	c.mu.Unlock()
}

// Owners lists cached owners in sorted order.
func (c *Cache) Owners() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.records))
	for o := range c.records {
		out = append(out, o)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Clear drops every record.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.records = make(map[string]Record)
	c.mu.Unlock()
}
