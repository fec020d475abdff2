package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/common/metrics"
)

// maxDatagramSize bounds the receive buffer. 9000 covers jumbo-frame links.
const maxDatagramSize = 9000

// MulticastTransport implements Transport over the mDNS multicast groups
// using x/net packet connections, one per address family. Control messages
// carry the receiving interface so the engine can answer on the interface a
// query arrived on.
type MulticastTransport struct {
	filter map[string]bool // nil means all eligible interfaces
	logger log.Logger

	mu      sync.RWMutex
	running bool
	conn4   *ipv4.PacketConn
	conn6   *ipv6.PacketConn
	ifaces  map[int]*net.Interface // index -> joined interface
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// NewMulticastTransport creates a transport bound to the named interfaces,
// or to every multicast-capable interface when the filter is empty.
func NewMulticastTransport(interfaces []string, logger log.Logger) *MulticastTransport {
	var filter map[string]bool
	if len(interfaces) > 0 {
		filter = make(map[string]bool, len(interfaces))
		for _, name := range interfaces {
			filter[name] = true
		}
	}
	return &MulticastTransport{
		filter: filter,
		logger: logger,
		ifaces: make(map[int]*net.Interface),
	}
}

// Start binds port 5353 on both families, joins the multicast groups on each
// eligible interface, and runs one read loop per family until Stop closes
// the sockets. Cancelling ctx alone does not end a loop blocked in a read.
func (t *MulticastTransport) Start(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("multicast transport already running")
	}

	eligible, err := t.eligibleInterfaces()
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		return fmt.Errorf("no multicast-capable interfaces available")
	}

	udp4, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: Port})
	if err != nil {
		return fmt.Errorf("failed to bind udp4 port %d: %w", Port, err)
	}
	conn4 := ipv4.NewPacketConn(udp4)
	_ = conn4.SetControlMessage(ipv4.FlagInterface, true)
	_ = conn4.SetMulticastLoopback(true)

	udp6, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.IPv6unspecified, Port: Port})
	if err != nil {
		udp4.Close()
		return fmt.Errorf("failed to bind udp6 port %d: %w", Port, err)
	}
	conn6 := ipv6.NewPacketConn(udp6)
	_ = conn6.SetControlMessage(ipv6.FlagInterface, true)
	_ = conn6.SetMulticastLoopback(true)

	joined := 0
	for i := range eligible {
		ifi := &eligible[i]
		ok := false
		if err := conn4.JoinGroup(ifi, GroupV4); err == nil {
			ok = true
		}
		if err := conn6.JoinGroup(ifi, GroupV6); err == nil {
			ok = true
		}
		if ok {
			t.ifaces[ifi.Index] = ifi
			joined++
		} else {
			t.logger.Warn(map[string]any{
				"iface": ifi.Name,
			}, "Failed to join multicast group on interface")
		}
	}
	if joined == 0 {
		udp4.Close()
		udp6.Close()
		return fmt.Errorf("failed to join multicast group on any interface")
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, runCtx := errgroup.WithContext(runCtx)
	t.conn4 = conn4
	t.conn6 = conn6
	t.group = g
	t.cancel = cancel
	t.running = true

	g.Go(func() error { return t.readLoop4(runCtx, handler) })
	g.Go(func() error { return t.readLoop6(runCtx, handler) })

	t.logger.Info(map[string]any{
		"transport":  "multicast",
		"port":       Port,
		"interfaces": joined,
	}, "mDNS transport started")

	return nil
}

// Stop shuts the transport down and waits for the read loops to exit.
func (t *MulticastTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.cancel()
	conn4, conn6, g := t.conn4, t.conn6, t.group
	t.mu.Unlock()

	var closeErr error
	if conn4 != nil {
		closeErr = conn4.Close()
	}
	if conn6 != nil {
		if err := conn6.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	_ = g.Wait()

	t.logger.Info(map[string]any{
		"transport": "multicast",
	}, "mDNS transport stopped")
	return closeErr
}

// Send transmits data on the named interface: multicast to the group when
// dst is nil, unicast to dst otherwise.
func (t *MulticastTransport) Send(data []byte, iface string, dst *net.UDPAddr) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.running {
		return fmt.Errorf("multicast transport not running")
	}

	ifi := t.interfaceByName(iface)
	if ifi == nil {
		return fmt.Errorf("unknown interface %q", iface)
	}

	if dst == nil {
		// Multicast on both families; at least one must succeed.
		err4 := t.sendMulticast4(data, ifi)
		err6 := t.sendMulticast6(data, ifi)
		if err4 != nil && err6 != nil {
			return fmt.Errorf("multicast send failed on %s: %w", iface, err4)
		}
		metrics.PacketsSent.WithLabelValues(iface).Inc()
		return nil
	}

	var err error
	if dst.IP.To4() != nil {
		_, err = t.conn4.WriteTo(data, nil, dst)
	} else {
		_, err = t.conn6.WriteTo(data, nil, dst)
	}
	if err != nil {
		return fmt.Errorf("unicast send to %s failed: %w", dst, err)
	}
	metrics.PacketsSent.WithLabelValues(iface).Inc()
	return nil
}

func (t *MulticastTransport) sendMulticast4(data []byte, ifi *net.Interface) error {
	if err := t.conn4.SetMulticastInterface(ifi); err != nil {
		return err
	}
	_, err := t.conn4.WriteTo(data, nil, GroupV4)
	return err
}

func (t *MulticastTransport) sendMulticast6(data []byte, ifi *net.Interface) error {
	if err := t.conn6.SetMulticastInterface(ifi); err != nil {
		return err
	}
	_, err := t.conn6.WriteTo(data, nil, GroupV6)
	return err
}

func (t *MulticastTransport) readLoop4(ctx context.Context, handler Handler) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, cm, src, err := t.conn4.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || !t.isRunning() {
				return nil
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "Failed to read udp4 packet")
			continue
		}
		iface := ""
		if cm != nil {
			iface = t.interfaceName(cm.IfIndex)
		}
		t.dispatch(handler, iface, src, buf[:n])
	}
}

func (t *MulticastTransport) readLoop6(ctx context.Context, handler Handler) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, cm, src, err := t.conn6.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || !t.isRunning() {
				return nil
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "Failed to read udp6 packet")
			continue
		}
		iface := ""
		if cm != nil {
			iface = t.interfaceName(cm.IfIndex)
		}
		t.dispatch(handler, iface, src, buf[:n])
	}
}

func (t *MulticastTransport) dispatch(handler Handler, iface string, src net.Addr, data []byte) {
	udpSrc, ok := src.(*net.UDPAddr)
	if !ok {
		return
	}
	packet := make([]byte, len(data))
	copy(packet, data)
	metrics.PacketsReceived.WithLabelValues(iface).Inc()
	handler(iface, udpSrc, packet)
}

func (t *MulticastTransport) isRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *MulticastTransport) interfaceName(index int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ifi, ok := t.ifaces[index]; ok {
		return ifi.Name
	}
	return ""
}

func (t *MulticastTransport) interfaceByName(name string) *net.Interface {
	for _, ifi := range t.ifaces {
		if ifi.Name == name {
			return ifi
		}
	}
	return nil
}

// eligibleInterfaces lists up, multicast-capable interfaces, applying the
// configured name filter.
func (t *MulticastTransport) eligibleInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}
	var out []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if t.filter != nil && !t.filter[ifi.Name] {
			continue
		}
		out = append(out, ifi)
	}
	return out, nil
}

var _ Transport = &MulticastTransport{}
