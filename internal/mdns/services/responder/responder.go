package responder

import (
	"errors"
	"net"
	"sync"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/common/metrics"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/transport"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/wire"
	"github.com/haukened/rr-mdns/internal/mdns/repos/answercache"
)

// ProbeHandler receives inbound traffic relevant to an in-flight probe.
// Implemented by the probe service.
type ProbeHandler interface {
	HandleResponse(p *domain.Packet)
	HandleQuery(p *domain.Packet)
}

// Responder parses inbound datagrams and routes them: responses feed the
// answer cache and any in-flight probers; queries are answered from the
// registry through the coalescing queue. It is the single entry point the
// transport delivers into. The transport runs one read loop per address
// family, so HandlePacket serializes all inbound dispatch under one mutex:
// datagrams are processed one at a time, and attaching or detaching a prober
// never races an in-flight packet.
type Responder struct {
	codec     *wire.PacketCodec
	builder   *wire.Builder
	registry  *Registry
	queue     *Queue
	cache     *answercache.Cache
	suppress  *suppressor
	clk       clock.Clock
	transport transport.Transport
	logger    log.Logger

	mu      sync.Mutex
	probers []ProbeHandler
}

// Options carries the collaborators for New.
type Options struct {
	Codec     *wire.PacketCodec
	Builder   *wire.Builder
	Registry  *Registry
	Queue     *Queue
	Cache     *answercache.Cache
	Clock     clock.Clock
	Transport transport.Transport
	Logger    log.Logger
}

// New constructs a Responder.
func New(opts Options) *Responder {
	return &Responder{
		codec:     opts.Codec,
		builder:   opts.Builder,
		registry:  opts.Registry,
		queue:     opts.Queue,
		cache:     opts.Cache,
		suppress:  newSuppressor(opts.Clock),
		clk:       opts.Clock,
		transport: opts.Transport,
		logger:    opts.Logger,
	}
}

// AttachProber routes inbound traffic to h until DetachProber is called.
func (r *Responder) AttachProber(h ProbeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probers = append(r.probers, h)
}

// DetachProber stops routing traffic to h.
func (r *Responder) DetachProber(h ProbeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.probers {
		if p == h {
			r.probers = append(r.probers[:i], r.probers[i+1:]...)
			return
		}
	}
}

// HandlePacket is the transport.Handler entry point. The mutex is held for
// the whole dispatch, so datagrams from both read loops process strictly one
// at a time, in arrival order at the lock.
func (r *Responder) HandlePacket(iface string, src *net.UDPAddr, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.codec.Decode(data)
	if err != nil {
		metrics.DatagramsDropped.WithLabelValues(dropReason(err)).Inc()
		r.logger.Debug(map[string]any{
			"iface": iface,
			"src":   src.String(),
			"size":  len(data),
			"error": err.Error(),
		}, "Dropped undecodable datagram")
		return
	}

	if p.Response {
		r.handleResponse(p)
		return
	}
	r.handleQuery(iface, src, p)
}

// handleResponse absorbs observed answers into the cache and lets in-flight
// probers check for conflicts.
func (r *Responder) handleResponse(p *domain.Packet) {
	now := r.clk.Now()
	r.cache.Store(p.Answers(), now)
	r.cache.Store(p.Additionals(), now)
	for _, prober := range r.probers {
		prober.HandleResponse(p)
	}
}

// handleQuery runs probe tiebreaking, then answers from the registry with
// known-answer suppression and the one-per-second duplicate rule applied.
// Queries from an ephemeral source port are legacy unicast (RFC 6762 §6.7):
// they are answered directly to the querier, with the query id mirrored,
// bypassing the multicast queue.
func (r *Responder) handleQuery(iface string, src *net.UDPAddr, p *domain.Packet) {
	for _, prober := range r.probers {
		prober.HandleQuery(p)
	}

	legacy := src.Port != transport.Port

	var answers []domain.ResourceRecord
	for _, q := range p.Questions() {
		for _, rr := range r.registry.Lookup(q) {
			if knownByQuerier(p.Answers(), rr) {
				continue
			}
			if !legacy && r.suppress.shouldSuppress(rr) {
				metrics.ResponsesSuppressed.Inc()
				continue
			}
			answers = append(answers, rr)
		}
	}
	if len(answers) == 0 {
		return
	}
	additionals := r.additionalsFor(answers)

	if legacy {
		// Legacy responses must not set cache-flush (the querier is a plain
		// DNS client). Record TTLs are sent unchanged.
		for i := range answers {
			answers[i].CacheFlush = false
		}
		for i := range additionals {
			additionals[i].CacheFlush = false
		}
	}

	resp, err := r.builder.BuildResponse(answers, additionals, legacy, p.ID)
	if err != nil {
		r.logger.Error(map[string]any{
			"iface": iface,
			"error": err.Error(),
		}, "Failed to build response")
		return
	}

	if legacy {
		data, err := r.codec.Encode(resp)
		if err != nil {
			r.logger.Error(map[string]any{"error": err.Error()}, "Failed to encode legacy response")
			return
		}
		if err := r.transport.Send(data, iface, src); err != nil {
			r.logger.Warn(map[string]any{
				"iface": iface,
				"dst":   src.String(),
				"error": err.Error(),
			}, "Failed to send legacy unicast response")
		}
		return
	}
	r.queue.Enqueue(resp, iface)
}

// additionalsFor assembles the DNS-SD additional records (RFC 6763 §12):
// SRV and TXT for answered PTRs, addresses for answered SRVs.
func (r *Responder) additionalsFor(answers []domain.ResourceRecord) []domain.ResourceRecord {
	var out []domain.ResourceRecord
	seen := make(map[string]bool)
	for _, rr := range answers {
		seen[rr.CacheKey()] = true
	}
	add := func(extra domain.ResourceRecord) {
		key := extra.CacheKey()
		if !seen[key] {
			seen[key] = true
			out = append(out, extra)
		}
	}
	for _, rr := range answers {
		switch d := rr.Data.(type) {
		case domain.PTRData:
			for _, extra := range r.registry.Lookup(domain.Question{Name: d.Target, Type: domain.RRTypeANY, Class: domain.RRClassIN}) {
				switch extra.Data.(type) {
				case domain.SRVData, domain.TXTData:
					add(extra)
				}
			}
		case domain.SRVData:
			for _, extra := range r.registry.Lookup(domain.Question{Name: d.Target, Type: domain.RRTypeANY, Class: domain.RRClassIN}) {
				switch extra.Data.(type) {
				case domain.AData, domain.AAAAData:
					add(extra)
				}
			}
		}
	}
	return out
}

// knownByQuerier implements known-answer suppression (RFC 6762 §7.1): the
// querier already holds rr if its known-answer list carries the same data
// with at least half the TTL remaining.
func knownByQuerier(known []domain.ResourceRecord, rr domain.ResourceRecord) bool {
	for _, k := range known {
		if k.DataEqual(rr) && k.TTL >= rr.TTL/2 {
			return true
		}
	}
	return false
}

// dropReason maps a decode error to its metrics label.
func dropReason(err error) string {
	switch {
	case errors.Is(err, wire.ErrMalformedName):
		return "malformed_name"
	case errors.Is(err, wire.ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, wire.ErrShortBuffer):
		return "short_buffer"
	case errors.Is(err, wire.ErrTrailingGarbage):
		return "trailing_garbage"
	default:
		return "other"
	}
}
