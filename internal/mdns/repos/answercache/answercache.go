// Package answercache keeps a TTL-aware LRU of answer records observed on
// the link. KnownAnswers returns the still-fresh cached answers for a
// question, in the form a known-answer list takes (RFC 6762 §7.1); no
// outgoing query in this module is built from them. The cache is in-memory
// only; mDNS state must not survive a restart.
package answercache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

type entry struct {
	record    domain.ResourceRecord
	expiresAt time.Time
}

// Cache is an LRU of observed records keyed by (name, type, class). Each key
// holds the full RRset, since one answer section commonly carries several
// records for the same key.
type Cache struct {
	lru *lru.Cache[string, []entry]
}

// New returns a Cache bounded to size keys.
func New(size int) (*Cache, error) {
	backing, err := lru.New[string, []entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: backing}, nil
}

// Store absorbs records observed at time now. A record with the cache-flush
// bit set replaces the whole RRset for its key; otherwise it is merged,
// replacing any record with identical data. Zero-TTL records (goodbyes)
// evict matching data.
func (c *Cache) Store(records []domain.ResourceRecord, now time.Time) {
	for _, rr := range records {
		key := rr.CacheKey()
		existing, _ := c.lru.Get(key)

		if rr.TTL == 0 {
			kept := existing[:0:0]
			for _, e := range existing {
				if !e.record.DataEqual(rr) {
					kept = append(kept, e)
				}
			}
			if len(kept) == 0 {
				c.lru.Remove(key)
			} else {
				c.lru.Add(key, kept)
			}
			continue
		}

		e := entry{record: rr, expiresAt: now.Add(time.Duration(rr.TTL) * time.Second)}
		if rr.CacheFlush {
			c.lru.Add(key, []entry{e})
			continue
		}
		merged := existing[:0:0]
		for _, old := range existing {
			if !old.record.DataEqual(rr) {
				merged = append(merged, old)
			}
		}
		c.lru.Add(key, append(merged, e))
	}
}

// KnownAnswers returns the unexpired cached records matching q, with TTLs
// rewritten to the seconds remaining at time now. Expired entries are pruned
// as a side effect.
func (c *Cache) KnownAnswers(q domain.Question, now time.Time) []domain.ResourceRecord {
	key := q.CacheKey()
	existing, found := c.lru.Get(key)
	if !found {
		return nil
	}
	var valid []entry
	var out []domain.ResourceRecord
	for _, e := range existing {
		remaining := e.expiresAt.Sub(now)
		if remaining <= 0 {
			continue
		}
		valid = append(valid, e)
		rr := e.record
		rr.TTL = uint32(remaining / time.Second)
		out = append(out, rr)
	}
	if len(valid) == 0 {
		c.lru.Remove(key)
		return nil
	}
	c.lru.Add(key, valid)
	return out
}

// Len returns the number of keys currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
