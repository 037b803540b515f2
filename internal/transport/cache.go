package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/odata-gateway/go/internal/models"
)

// MetadataCache holds fetched metadata documents for a short TTL. The remote
// schema can change between deployments, so entries expire rather than being
// evicted explicitly. A duplicate fetch under concurrent misses is
// acceptable.
type MetadataCache struct {
	mu  sync.RWMutex
	ttl time.Duration

	docs    map[string]*models.MetadataDocument
	expires map[string]time.Time
}

// NewMetadataCache creates a cache with the given TTL.
func NewMetadataCache(ttl time.Duration) *MetadataCache {
	return &MetadataCache{
		ttl:     ttl,
		docs:    make(map[string]*models.MetadataDocument),
		expires: make(map[string]time.Time),
	}
}

// CacheKey builds the lookup key for one endpoint's metadata.
func CacheKey(systemID, servicePath, version string) string {
	return fmt.Sprintf("%s|%s|%s", systemID, servicePath, version)
}

// Get returns the cached document if present and not expired.
func (c *MetadataCache) Get(key string) (*models.MetadataDocument, bool) {
	c.mu.RLock()
	doc, ok := c.docs[key]
	expiry := c.expires[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(expiry) {
		return nil, false
	}
	return doc, true
}

// Set stores a document under the cache TTL.
func (c *MetadataCache) Set(key string, doc *models.MetadataDocument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[key] = doc
	c.expires[key] = time.Now().Add(c.ttl)
}

// Len reports the number of entries, expired or not. Used by tests.
func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
