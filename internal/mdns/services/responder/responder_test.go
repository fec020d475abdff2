package responder

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-mdns/internal/mdns/common/clock"
	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/transport"
	"github.com/haukened/rr-mdns/internal/mdns/gateways/wire"
	"github.com/haukened/rr-mdns/internal/mdns/repos/answercache"
)

type responderHarness struct {
	clk       *clock.MockClock
	sched     *clock.MockScheduler
	codec     *wire.PacketCodec
	registry  *Registry
	queue     *Queue
	cache     *answercache.Cache
	transport *transport.MockTransport
	responder *Responder
}

func newResponderHarness(t *testing.T) *responderHarness {
	t.Helper()
	h := &responderHarness{
		clk:       &clock.MockClock{CurrentTime: time.Unix(0, 0)},
		codec:     wire.NewPacketCodec(log.NewNoopLogger()),
		registry:  NewRegistry(),
		transport: transport.NewMockTransport(),
	}
	h.sched = clock.NewMockScheduler(h.clk)
	cache, err := answercache.New(64)
	require.NoError(t, err)
	h.cache = cache
	h.queue = NewQueue(QueueOptions{
		Clock:       h.clk,
		Scheduler:   h.sched,
		Rand:        &clock.MockRand{Values: []float64{0.5}},
		Codec:       h.codec,
		PayloadSize: 1440,
		Logger:      log.NewNoopLogger(),
		Send: func(p *domain.Packet, iface string) error {
			data, err := h.codec.Encode(p)
			if err != nil {
				return err
			}
			return h.transport.Send(data, iface, nil)
		},
	})
	h.responder = New(Options{
		Codec:     h.codec,
		Builder:   wire.NewBuilder(h.codec, 1440),
		Registry:  h.registry,
		Queue:     h.queue,
		Cache:     h.cache,
		Clock:     h.clk,
		Transport: h.transport,
		Logger:    log.NewNoopLogger(),
	})
	require.NoError(t, h.transport.Start(context.Background(), h.responder.HandlePacket))
	return h
}

func (h *responderHarness) encode(t *testing.T, p *domain.Packet) []byte {
	t.Helper()
	data, err := h.codec.Encode(p)
	require.NoError(t, err)
	return data
}

func registryRecords() (ptr, srv, a domain.ResourceRecord) {
	svc := domain.MustParseName("_http._tcp.local")
	fqdn := domain.MustParseName("Printer._http._tcp.local")
	host := domain.MustParseName("printer.local")
	ptr = domain.ResourceRecord{
		Name: svc, Class: domain.RRClassIN, TTL: 4500,
		Data: domain.PTRData{Target: fqdn},
	}
	srv = domain.ResourceRecord{
		Name: fqdn, Class: domain.RRClassIN, CacheFlush: true, TTL: 120,
		Data: domain.SRVData{Port: 8080, Target: host},
	}
	a = domain.ResourceRecord{
		Name: host, Class: domain.RRClassIN, CacheFlush: true, TTL: 120,
		Data: domain.AData{Addr: netip.MustParseAddr("192.168.1.10")},
	}
	return
}

func mdnsSource() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: transport.Port}
}

func TestRegistry_Lookup(t *testing.T) {
	ptr, srv, a := registryRecords()
	r := NewRegistry()
	r.Register(ptr, srv, a)

	got := r.Lookup(domain.Question{
		Name: domain.MustParseName("_HTTP._tcp.LOCAL"), Type: domain.RRTypePTR, Class: domain.RRClassIN,
	})
	require.Len(t, got, 1, "lookup must be case-insensitive")

	got = r.Lookup(domain.Question{
		Name: domain.MustParseName("Printer._http._tcp.local"), Type: domain.RRTypeANY, Class: domain.RRClassIN,
	})
	require.Len(t, got, 1)

	got = r.Lookup(domain.Question{
		Name: domain.MustParseName("printer.local"), Type: domain.RRTypeTXT, Class: domain.RRClassIN,
	})
	require.Empty(t, got, "type mismatch must not answer")

	r.Deregister(domain.MustParseName("_http._tcp.local"))
	got = r.Lookup(domain.Question{
		Name: domain.MustParseName("_http._tcp.local"), Type: domain.RRTypePTR, Class: domain.RRClassIN,
	})
	require.Empty(t, got)
}

func TestResponder_AnswersQueryThroughQueue(t *testing.T) {
	h := newResponderHarness(t)
	ptr, srv, a := registryRecords()
	h.registry.Register(ptr, srv, a)

	query := domain.NewPacket()
	query.AddQuestion(domain.Question{
		Name: domain.MustParseName("_http._tcp.local"), Type: domain.RRTypePTR, Class: domain.RRClassIN,
	})
	h.transport.Inject("eth0", mdnsSource(), h.encode(t, query))

	require.Empty(t, h.transport.Sent(), "multicast responses wait out the random delay")
	h.sched.Advance(200 * time.Millisecond)

	sent := h.transport.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "eth0", sent[0].Iface)
	require.Nil(t, sent[0].Dst, "standard responses are multicast")

	resp, err := h.codec.Decode(sent[0].Data)
	require.NoError(t, err)
	require.True(t, resp.Response)
	require.True(t, resp.Authoritative)
	require.EqualValues(t, 0, resp.ID)
	require.Len(t, resp.Answers(), 1)
	require.True(t, resp.Answers()[0].DataEqual(ptr))
	// DNS-SD additionals ride along: SRV for the answered PTR.
	require.NotEmpty(t, resp.Additionals())
}

func TestResponder_KnownAnswerSuppression(t *testing.T) {
	h := newResponderHarness(t)
	ptr, _, _ := registryRecords()
	h.registry.Register(ptr)

	// The querier already holds our PTR with more than half its TTL left.
	query := domain.NewPacket()
	query.AddQuestion(domain.Question{
		Name: domain.MustParseName("_http._tcp.local"), Type: domain.RRTypePTR, Class: domain.RRClassIN,
	})
	known := ptr
	known.TTL = 4000
	query.AddAnswer(known)

	h.transport.Inject("eth0", mdnsSource(), h.encode(t, query))
	h.sched.Advance(time.Second)
	require.Empty(t, h.transport.Sent(), "a fresh known answer suppresses the response")

	// A stale known answer (below half TTL) must not suppress.
	query2 := domain.NewPacket()
	query2.AddQuestion(domain.Question{
		Name: domain.MustParseName("_http._tcp.local"), Type: domain.RRTypePTR, Class: domain.RRClassIN,
	})
	stale := ptr
	stale.TTL = 1000
	query2.AddAnswer(stale)

	h.clk.CurrentTime = h.clk.CurrentTime.Add(2 * time.Second) // fresh suppressor epoch
	h.transport.Inject("eth0", mdnsSource(), h.encode(t, query2))
	h.sched.Advance(time.Second)
	require.Len(t, h.transport.Sent(), 1)
}

func TestResponder_LegacyUnicastAnsweredDirectly(t *testing.T) {
	h := newResponderHarness(t)
	ptr, _, _ := registryRecords()
	h.registry.Register(ptr)

	query := domain.NewPacket()
	query.ID = 4242
	query.AddQuestion(domain.Question{
		Name: domain.MustParseName("_http._tcp.local"), Type: domain.RRTypePTR, Class: domain.RRClassIN,
	})
	legacySrc := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 54321}
	h.transport.Inject("eth0", legacySrc, h.encode(t, query))

	sent := h.transport.Sent()
	require.Len(t, sent, 1, "legacy responses bypass the delay queue")
	require.Equal(t, legacySrc, sent[0].Dst)

	resp, err := h.codec.Decode(sent[0].Data)
	require.NoError(t, err)
	require.EqualValues(t, 4242, resp.ID, "legacy responses mirror the query id")
	for _, rr := range resp.Answers() {
		require.False(t, rr.CacheFlush, "legacy responses must not carry the cache-flush bit")
	}
}

func TestResponder_DuplicateAnswerSuppression(t *testing.T) {
	h := newResponderHarness(t)
	ptr, _, _ := registryRecords()
	h.registry.Register(ptr)

	query := domain.NewPacket()
	query.AddQuestion(domain.Question{
		Name: domain.MustParseName("_http._tcp.local"), Type: domain.RRTypePTR, Class: domain.RRClassIN,
	})

	h.transport.Inject("eth0", mdnsSource(), h.encode(t, query))
	h.sched.Advance(200 * time.Millisecond)
	require.Len(t, h.transport.Sent(), 1)

	// The same answer within the one-second window is suppressed.
	h.transport.Inject("eth0", mdnsSource(), h.encode(t, query))
	h.sched.Advance(200 * time.Millisecond)
	require.Len(t, h.transport.Sent(), 1)

	// After the window rolls over it may be sent again.
	h.sched.Advance(time.Second)
	h.transport.Inject("eth0", mdnsSource(), h.encode(t, query))
	h.sched.Advance(200 * time.Millisecond)
	require.Len(t, h.transport.Sent(), 2)
}

func TestResponder_DropsMalformedDatagram(t *testing.T) {
	h := newResponderHarness(t)
	h.transport.Inject("eth0", mdnsSource(), []byte{0x01, 0x02})
	h.sched.Advance(time.Second)
	require.Empty(t, h.transport.Sent(), "undecodable datagrams are dropped silently")
}

// countingProber records how many packets were routed to it.
type countingProber struct {
	mu        sync.Mutex
	responses int
	queries   int
}

func (c *countingProber) HandleResponse(*domain.Packet) {
	c.mu.Lock()
	c.responses++
	c.mu.Unlock()
}

func (c *countingProber) HandleQuery(*domain.Packet) {
	c.mu.Lock()
	c.queries++
	c.mu.Unlock()
}

func (c *countingProber) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responses, c.queries
}

func TestResponder_AttachDetachProber(t *testing.T) {
	h := newResponderHarness(t)
	prober := &countingProber{}
	h.responder.AttachProber(prober)

	_, _, a := registryRecords()
	resp := domain.NewResponsePacket(false, 0)
	resp.AddAnswer(a)
	h.transport.Inject("eth0", mdnsSource(), h.encode(t, resp))

	query := domain.NewPacket()
	query.AddQuestion(domain.Question{
		Name: domain.MustParseName("_http._tcp.local"), Type: domain.RRTypePTR, Class: domain.RRClassIN,
	})
	h.transport.Inject("eth0", mdnsSource(), h.encode(t, query))

	responses, queries := prober.counts()
	require.Equal(t, 1, responses)
	require.Equal(t, 1, queries)

	h.responder.DetachProber(prober)
	h.transport.Inject("eth0", mdnsSource(), h.encode(t, resp))
	responses, _ = prober.counts()
	require.Equal(t, 1, responses, "a detached prober must see no further traffic")
}

func TestResponder_SerializesConcurrentDispatch(t *testing.T) {
	// Datagrams from both read loops funnel through one mutex: hammering
	// HandlePacket from two goroutines while attaching and detaching a
	// prober must neither race nor drop dispatches.
	h := newResponderHarness(t)
	_, _, a := registryRecords()
	resp := domain.NewResponsePacket(false, 0)
	resp.AddAnswer(a)
	data := h.encode(t, resp)

	prober := &countingProber{}
	h.responder.AttachProber(prober)

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.transport.Inject("eth0", mdnsSource(), data)
			}
		}()
	}
	wg.Wait()
	h.responder.DetachProber(prober)

	responses, _ := prober.counts()
	require.Equal(t, 100, responses)
}

func TestResponder_CachesObservedAnswers(t *testing.T) {
	h := newResponderHarness(t)
	_, _, a := registryRecords()

	resp := domain.NewResponsePacket(false, 0)
	resp.AddAnswer(a)
	h.transport.Inject("eth0", mdnsSource(), h.encode(t, resp))

	got := h.cache.KnownAnswers(domain.Question{
		Name: domain.MustParseName("printer.local"), Type: domain.RRTypeA, Class: domain.RRClassIN,
	}, h.clk.Now())
	require.Len(t, got, 1)
}
