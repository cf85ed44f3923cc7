package sentry_ext

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	recentErrorDuration = time.Minute * 5
	defaultCacheSize    = 100
)

type cache struct {
	*lru.Cache
}

func newCache(size int) (*cache, error) {
	if size == 0 {
		size = defaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &cache{c}, nil
}

// shouldCapture reports whether the error should be sent to Sentry.
//
// An LRU cache keyed by a hash of the error message tracks when each error
// was last sent; errors seen within recentErrorDuration are skipped.
func (c *cache) shouldCapture(err error) bool {
	h := md5.New()
	h.Write([]byte(err.Error()))
	hash := hex.EncodeToString(h.Sum(nil))

	now := time.Now()
	if lastSent, exists := c.Get(hash); exists {
		if now.Sub(lastSent.(time.Time)) < recentErrorDuration {
			return false
		}
	}

	c.Add(hash, now)
	return true
}
