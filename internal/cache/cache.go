package cache

import (
	"sync"
	"time"

	"github.com/pavelc4/aether-fetch/internal/platform"
	"github.com/pavelc4/aether-fetch/internal/provider"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxEntries = 1000
)

// CachedMedia is a document Telegram already stores, reusable without
// uploading again.
type CachedMedia struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	MimeType      string
	Title         string
	Size          int64
	Platform      platform.Platform
	Quality       provider.Quality

	storedAt time.Time
}

// Cache maps a link and quality to the document delivered for it.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	data       map[string]*CachedMedia
}

func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		data:       make(map[string]*CachedMedia),
	}
}

// Key normalizes the link so tracking parameters do not defeat the cache.
func Key(rawURL string, q provider.Quality) string {
	return platform.Sanitize(rawURL) + "|" + string(q)
}

func (c *Cache) Get(key string) (*CachedMedia, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(m.storedAt) >= c.ttl {
		delete(c.data, key)
		return nil, false
	}
	cp := *m
	return &cp, true
}

// Set stores media, evicting the oldest entry when full.
func (c *Cache) Set(key string, media CachedMedia) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.evictOldest()
	}
	media.storedAt = c.now()
	c.data[key] = &media
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, m := range c.data {
		if oldestKey == "" || m.storedAt.Before(oldest) {
			oldestKey, oldest = k, m.storedAt
		}
	}
	delete(c.data, oldestKey)
}
