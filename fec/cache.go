package fec

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type cacheEntry struct {
	decoder   *Decoder
	createdAt time.Time
	delivered bool
	payload   []byte
}

// DecoderCache fans a single Decoder out across every UID currently being
// reassembled, so that symbols for independent broadcasts in flight at the
// same time don't interfere with each other.
//
// hashicorp/golang-lru bounds the cache by entry count but has no notion of
// time; DecoderCache layers a TTL on top by stamping each entry's creation
// time and sweeping expired entries in Prune, which the maintenance loop
// calls periodically (spec §4.3's "per-entry expiry").
type DecoderCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewDecoderCache builds a cache holding up to capacity in-flight UIDs.
func NewDecoderCache(capacity int) (*DecoderCache, error) {
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &DecoderCache{cache: c}, nil
}

// Feed decodes one incoming gossip frame. duplicate is true when the frame
// belongs to a UID whose payload was already fully delivered — the caller
// should drop it rather than reprocess (spec §4.3 post-delivery dedup).
func (c *DecoderCache) Feed(frame []byte) (payload []byte, delivered bool, duplicate bool, err error) {
	cp, err := ParseChunkedPayload(frame)
	if err != nil {
		return nil, false, false, err
	}
	key, err := cp.SafeUID()
	if err != nil {
		return nil, false, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.cache.Get(key); ok {
		entry := v.(*cacheEntry)
		if entry.delivered {
			return entry.payload, true, true, nil
		}
		out, done, err := entry.decoder.Add(cp)
		if err != nil {
			return nil, false, false, err
		}
		if !done {
			return nil, false, false, nil
		}
		entry.delivered = true
		entry.payload = out
		return out, true, false, nil
	}

	dec, err := newDecoderFor(cp.TransmissionInfo)
	if err != nil {
		return nil, false, false, err
	}
	entry := &cacheEntry{decoder: dec, createdAt: time.Now()}
	out, done, err := entry.decoder.Add(cp)
	if err != nil {
		return nil, false, false, err
	}
	if done {
		entry.delivered = true
		entry.payload = out
	}
	c.cache.Add(key, entry)
	if done {
		return out, true, false, nil
	}
	return nil, false, false, nil
}

// Prune drops entries older than ttl, whether or not they were ever
// delivered — an in-flight reconstruction that never completed is as stale
// as a completed one past its dedup window.
func (c *DecoderCache) Prune(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []interface{}
	for _, key := range c.cache.Keys() {
		v, ok := c.cache.Peek(key)
		if !ok {
			continue
		}
		entry := v.(*cacheEntry)
		if time.Since(entry.createdAt) > ttl {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		c.cache.Remove(key)
	}
	return len(stale)
}

// Len returns the number of UIDs currently tracked.
func (c *DecoderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
