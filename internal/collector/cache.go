package collector

import (
	"sync"

	"ipcollector/internal/domain"
)

// RecordCache mirrors the persisted collectedIPs list keyed by IP. It is only
// ever replaced wholesale from a persisted snapshot; storage stays authoritative.
type RecordCache struct {
	mu       sync.RWMutex
	records  map[string]domain.IPRecord
	revision int64
}

func NewRecordCache() *RecordCache {
	return &RecordCache{}
}

// Initialized is false until the first Rebuild and after Reset.
func (c *RecordCache) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records != nil
}

// Rebuild replaces the cache with a snapshot taken at revision. A snapshot
// older than the one already held is dropped and Rebuild reports false.
// Revision 0 is unknown and always applied.
func (c *RecordCache) Rebuild(snapshot []domain.IPRecord, revision int64) bool {
	index := domain.IndexByIP(snapshot)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.records != nil && revision != 0 && revision < c.revision {
		return false
	}
	c.records = index
	c.revision = revision
	return true
}

func (c *RecordCache) Reset() {
	c.mu.Lock()
	c.records = nil
	c.revision = 0
	c.mu.Unlock()
}

func (c *RecordCache) Revision() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

func (c *RecordCache) Get(ip string) (domain.IPRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.records[ip]
	return record, ok
}

func (c *RecordCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
