// Package responder implements the answering half of the protocol engine:
// the delayed, coalescing response queue of RFC 6762 §6, the registry of
// published records, duplicate-answer suppression, and inbound dispatch.
package responder

import (
	"sync"
	"time"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/common/metrics"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/wire"
)

// Response spreading per RFC 6762 §6: each multicast response waits a
// uniform random 20-120 ms, and coalescing must never hold a response more
// than MaxResponseDelay past its creation.
const (
	minResponseDelay = 20 * time.Millisecond
	responseDelaySpan = 100 * time.Millisecond
	// MaxResponseDelay caps the total time from a response's creation to
	// its transmission, merges included.
	MaxResponseDelay = 500 * time.Millisecond
)

// queuedResponse is one pending transmission. The queue owns the timer; the
// entry only carries its cancel handle. A cancelled entry is never
// transmitted and never merged into.
type queuedResponse struct {
	packet      *domain.Packet
	iface       string
	createdAt   time.Time
	scheduledAt time.Time
	cancelled   bool
	timer       clock.Timer
}

// SendFunc transmits one encoded multicast response on an interface.
type SendFunc func(p *domain.Packet, iface string) error

// Queue delays and coalesces outgoing multicast responses, per interface.
// All state is mutated under one mutex; timer callbacks re-enter through it,
// so the queue behaves as a single logical timeline.
type Queue struct {
	clk    clock.Clock
	sched  clock.Scheduler
	rng    clock.Rand
	codec  *wire.PacketCodec
	cap    int
	send   SendFunc
	logger log.Logger

	mu      sync.Mutex
	pending map[string][]*queuedResponse
	closed  bool
}

// QueueOptions carries the collaborators for NewQueue.
type QueueOptions struct {
	Clock       clock.Clock
	Scheduler   clock.Scheduler
	Rand        clock.Rand
	Codec       *wire.PacketCodec
	PayloadSize int
	Send        SendFunc
	Logger      log.Logger
}

// NewQueue constructs a response queue.
func NewQueue(opts QueueOptions) *Queue {
	if opts.PayloadSize <= 0 {
		opts.PayloadSize = wire.DefaultUDPPayloadSize
	}
	return &Queue{
		clk:     opts.Clock,
		sched:   opts.Scheduler,
		rng:     opts.Rand,
		codec:   opts.Codec,
		cap:     opts.PayloadSize,
		send:    opts.Send,
		logger:  opts.Logger,
		pending: make(map[string][]*queuedResponse),
	}
}

// Enqueue schedules p for transmission on iface after a uniform random
// 20-120 ms delay, first trying to coalesce it with the most recent pending
// response on the same interface. A merge is taken only when the headers are
// combine-compatible, the merged packet still fits the payload cap, and no
// constituent ends up waiting longer than MaxResponseDelay from its
// creation.
func (q *Queue) Enqueue(p *domain.Packet, iface string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	now := q.clk.Now()
	delay := minResponseDelay + time.Duration(q.rng.Float64()*float64(responseDelaySpan))
	entry := &queuedResponse{
		packet:      p,
		iface:       iface,
		createdAt:   now,
		scheduledAt: now.Add(delay),
	}

	if q.tryMergeLocked(entry) {
		return
	}

	q.pending[iface] = append(q.pending[iface], entry)
	entry.timer = q.sched.Schedule(delay, func() { q.dispatch(entry) })
}

// tryMergeLocked attempts to fold entry into (or absorb) the most recent
// pending entry on the same interface. On success the earlier-scheduled
// entry is cancelled and the survivor carries the union of records and the
// older creation time, so the MaxResponseDelay bound keeps counting from the
// first response's birth.
func (q *Queue) tryMergeLocked(entry *queuedResponse) bool {
	list := q.pending[entry.iface]
	if len(list) == 0 {
		return false
	}
	last := list[len(list)-1]
	if last.cancelled {
		return false
	}
	if !last.packet.CanCombineWith(entry.packet) {
		return false
	}

	// The later-scheduled entry survives and absorbs the other.
	survivor, absorbed := last, entry
	if entry.scheduledAt.After(last.scheduledAt) {
		survivor, absorbed = entry, last
	}
	earliestCreated := survivor.createdAt
	if absorbed.createdAt.Before(earliestCreated) {
		earliestCreated = absorbed.createdAt
	}
	if survivor.scheduledAt.Sub(earliestCreated) > MaxResponseDelay {
		return false
	}

	merged := survivor.packet.Clone()
	merged.CombineWith(absorbed.packet)
	if n, err := q.codec.EncodedLength(merged); err != nil || n > q.cap {
		return false
	}

	survivor.packet = merged
	survivor.createdAt = earliestCreated
	absorbed.cancelled = true
	if absorbed.timer != nil {
		absorbed.timer.Cancel()
	}
	if survivor == entry {
		// The newcomer replaces the cancelled entry in the pending list and
		// gets its own timer.
		list[len(list)-1] = entry
		entry.timer = q.sched.Schedule(entry.scheduledAt.Sub(q.clk.Now()), func() { q.dispatch(entry) })
	}
	metrics.ResponsesMerged.Inc()
	return true
}

// dispatch runs on timer fire: transmit unless the entry was cancelled or
// the queue closed in the meantime.
func (q *Queue) dispatch(entry *queuedResponse) {
	q.mu.Lock()
	if entry.cancelled || q.closed {
		q.mu.Unlock()
		return
	}
	entry.cancelled = true // consumed; no further merges may touch it
	q.removeLocked(entry)
	q.mu.Unlock()

	if err := q.send(entry.packet, entry.iface); err != nil {
		q.logger.Warn(map[string]any{
			"iface": entry.iface,
			"error": err.Error(),
		}, "Failed to transmit queued response")
	}
}

// removeLocked drops entry from its interface's pending list.
func (q *Queue) removeLocked(entry *queuedResponse) {
	list := q.pending[entry.iface]
	for i, e := range list {
		if e == entry {
			q.pending[entry.iface] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// PendingCount returns the number of uncancelled queued responses on iface.
func (q *Queue) PendingCount(iface string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.pending[iface] {
		if !e.cancelled {
			n++
		}
	}
	return n
}

// Close cancels every pending timer and discards the queue's contents.
// Nothing is transmitted on shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, list := range q.pending {
		for _, e := range list {
			e.cancelled = true
			if e.timer != nil {
				e.timer.Cancel()
			}
		}
	}
	q.pending = make(map[string][]*queuedResponse)
}
