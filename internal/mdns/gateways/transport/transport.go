// Package transport carries encoded mDNS datagrams between the protocol
// engine and the network. The engine only sees the facade: send bytes to a
// destination on a named interface, receive (interface, source, bytes)
// triples. Delivery is lossy and unordered; all correctness obligations live
// in the layers above.
package transport

import (
	"context"
	"net"
)

// Port is the well-known mDNS port.
const Port = 5353

// Multicast groups per RFC 6762 §3.
var (
	GroupV4 = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: Port}
	GroupV6 = &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: Port}
)

// Handler consumes one inbound datagram. The multicast transport invokes it
// from one read loop per address family, so implementations that need a
// single timeline must serialize internally (the responder does).
type Handler func(iface string, src *net.UDPAddr, data []byte)

// Transport is the multicast send/receive facade. A nil destination on Send
// means the interface's multicast group; a non-nil one means unicast to that
// address (legacy-unicast responses).
type Transport interface {
	Start(ctx context.Context, handler Handler) error
	Send(data []byte, iface string, dst *net.UDPAddr) error
	Stop() error
}
