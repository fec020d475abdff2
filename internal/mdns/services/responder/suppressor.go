package responder

import (
	"sync"
	"time"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// RFC 6762 §6: a responder must not multicast a given record more than once
// per second. The window is tracked with a bloom filter cleared on a one
// second epoch; a false positive merely delays a record to the next epoch,
// which the protocol tolerates.
const suppressionWindow = time.Second

// Filter sizing: a busy link peaks at a few hundred distinct records per
// second; 4096 bits with 3 hash functions keeps the false-positive rate
// under one percent at that load.
const (
	suppressorBits   = 4096
	suppressorHashes = 3
)

// suppressor remembers which records were multicast in the current one
// second epoch.
type suppressor struct {
	mu         sync.Mutex
	bf         *bitsbloom.BloomFilter
	clk        clock.Clock
	epochStart time.Time
}

func newSuppressor(clk clock.Clock) *suppressor {
	return &suppressor{
		bf:         bitsbloom.New(suppressorBits, suppressorHashes),
		clk:        clk,
		epochStart: clk.Now(),
	}
}

// shouldSuppress reports whether rr was (probably) already multicast within
// the window, recording it for the current epoch otherwise.
func (s *suppressor) shouldSuppress(rr domain.ResourceRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	if now.Sub(s.epochStart) >= suppressionWindow {
		s.bf.ClearAll()
		s.epochStart = now
	}
	key := append([]byte(rr.CacheKey()), rr.CanonicalRData()...)
	if s.bf.Test(key) {
		return true
	}
	s.bf.Add(key)
	return false
}
