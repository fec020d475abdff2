package domain

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sort"
)

// RData is the tagged payload of a resource record. Each variant knows its
// owning record type and its canonical wire form: uncompressed, with any
// embedded names lowercased (RFC 4034 §6.2). The canonical form is what
// tiebreak comparison and data equality operate on; message encoding with
// compression lives in the wire package.
type RData interface {
	// RType returns the record type this payload belongs to.
	RType() RRType
	// Canonical returns the canonical rdata bytes.
	Canonical() []byte
	// Validate checks variant-specific constraints.
	Validate() error
}

// AData is a 4-byte IPv4 address.
type AData struct {
	Addr netip.Addr
}

func (AData) RType() RRType { return RRTypeA }

func (d AData) Canonical() []byte {
	v4 := d.Addr.As4()
	return v4[:]
}

func (d AData) Validate() error {
	if !d.Addr.Is4() && !d.Addr.Is4In6() {
		return fmt.Errorf("A record requires an IPv4 address, got %s", d.Addr)
	}
	return nil
}

// AAAAData is a 16-byte IPv6 address.
type AAAAData struct {
	Addr netip.Addr
}

func (AAAAData) RType() RRType { return RRTypeAAAA }

func (d AAAAData) Canonical() []byte {
	v6 := d.Addr.As16()
	return v6[:]
}

func (d AAAAData) Validate() error {
	if !d.Addr.Is6() || d.Addr.Is4In6() {
		return fmt.Errorf("AAAA record requires an IPv6 address, got %s", d.Addr)
	}
	return nil
}

// PTRData points at another name. The target participates in message
// compression.
type PTRData struct {
	Target Name
}

func (PTRData) RType() RRType { return RRTypePTR }

func (d PTRData) Canonical() []byte { return d.Target.CanonicalWire() }

func (d PTRData) Validate() error {
	if d.Target.IsZero() {
		return fmt.Errorf("PTR target must not be empty")
	}
	return nil
}

// CNAMEData aliases the owner name to its target.
type CNAMEData struct {
	Target Name
}

func (CNAMEData) RType() RRType { return RRTypeCNAME }

func (d CNAMEData) Canonical() []byte { return d.Target.CanonicalWire() }

func (d CNAMEData) Validate() error {
	if d.Target.IsZero() {
		return fmt.Errorf("CNAME target must not be empty")
	}
	return nil
}

// SRVData locates a service endpoint (RFC 2782). The target is compressed in
// multicast responses but never in legacy-unicast responses, because some
// legacy resolvers mis-parse compressed SRV targets.
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   Name
}

func (SRVData) RType() RRType { return RRTypeSRV }

func (d SRVData) Canonical() []byte {
	buf := make([]byte, 6, 6+d.Target.WireLength())
	binary.BigEndian.PutUint16(buf[0:2], d.Priority)
	binary.BigEndian.PutUint16(buf[2:4], d.Weight)
	binary.BigEndian.PutUint16(buf[4:6], d.Port)
	return append(buf, d.Target.CanonicalWire()...)
}

func (d SRVData) Validate() error {
	if d.Target.IsZero() {
		return fmt.Errorf("SRV target must not be empty")
	}
	return nil
}

// TXTData is an ordered list of byte strings. An empty record encodes as a
// single zero byte (one empty string).
type TXTData struct {
	Strings [][]byte
}

func (TXTData) RType() RRType { return RRTypeTXT }

func (d TXTData) Canonical() []byte {
	if len(d.Strings) == 0 {
		return []byte{0}
	}
	size := 0
	for _, s := range d.Strings {
		size += 1 + len(s)
	}
	buf := make([]byte, 0, size)
	for _, s := range d.Strings {
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

func (d TXTData) Validate() error {
	total := 0
	for i, s := range d.Strings {
		if len(s) > 255 {
			return fmt.Errorf("TXT string %d too long: %d bytes", i, len(s))
		}
		total += 1 + len(s)
	}
	if total > 65535 {
		return fmt.Errorf("TXT rdata too long: %d bytes", total)
	}
	return nil
}

// NSECData asserts the nonexistence of record types at a name (RFC 4034 §4).
// mDNS uses it for negative responses. The next-name is never compressed
// (RFC 3845 §2.1); the owner name is encoded like any other record's owner.
type NSECData struct {
	NextName Name
	Types    []RRType
}

func (NSECData) RType() RRType { return RRTypeNSEC }

func (d NSECData) Canonical() []byte {
	buf := d.NextName.CanonicalWire()
	return append(buf, encodeTypeBitmap(d.Types)...)
}

func (d NSECData) Validate() error {
	if d.NextName.IsZero() {
		return fmt.Errorf("NSEC next name must not be empty")
	}
	for _, t := range d.Types {
		if t == RRTypeANY {
			return fmt.Errorf("ANY is not a concrete type and cannot appear in an NSEC bitmap")
		}
	}
	return nil
}

// OPTData is the EDNS0 pseudo-record payload (RFC 6891). UDPSize is the
// requestor's UDP payload size; on the wire it occupies the record's class
// field, which the wire codec reads and writes in its place (the record's
// Class and CacheFlush fields do not apply to OPT). Options carries the raw
// option bytes.
type OPTData struct {
	UDPSize uint16
	Options []byte
}

func (OPTData) RType() RRType { return RRTypeOPT }

func (d OPTData) Canonical() []byte { return append([]byte(nil), d.Options...) }

func (d OPTData) Validate() error { return nil }

// RawData preserves the rdata of record types this module does not model, so
// foreign records survive a section walk and re-encode byte-identically.
type RawData struct {
	Type RRType
	Data []byte
}

func (d RawData) RType() RRType { return d.Type }

func (d RawData) Canonical() []byte { return append([]byte(nil), d.Data...) }

func (d RawData) Validate() error { return nil }

// encodeTypeBitmap builds the NSEC window-block encoding of RFC 4034 §4.1.2:
// for each 256-type window that has members, a window byte, a length byte,
// and up to 32 bitmap bytes with bit 0x80 of byte 0 meaning type window*256.
func encodeTypeBitmap(types []RRType) []byte {
	if len(types) == 0 {
		return nil
	}
	sorted := make([]RRType, len(types))
	copy(sorted, types)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var out []byte
	window := -1
	var bits [32]byte
	maxByte := 0
	flush := func() {
		if window >= 0 {
			out = append(out, byte(window), byte(maxByte+1))
			out = append(out, bits[:maxByte+1]...)
		}
	}
	for _, t := range sorted {
		w := int(t >> 8)
		if w != window {
			flush()
			window = w
			bits = [32]byte{}
			maxByte = 0
		}
		lo := int(t & 0xFF)
		bits[lo/8] |= 0x80 >> (lo % 8)
		if lo/8 > maxByte {
			maxByte = lo / 8
		}
	}
	flush()
	return out
}

// DecodeTypeBitmap parses an RFC 4034 §4.1.2 window-block encoding.
func DecodeTypeBitmap(data []byte) ([]RRType, error) {
	var types []RRType
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("truncated NSEC bitmap window header")
		}
		window := int(data[0])
		length := int(data[1])
		if length == 0 || length > 32 {
			return nil, fmt.Errorf("invalid NSEC bitmap length %d", length)
		}
		if len(data) < 2+length {
			return nil, fmt.Errorf("truncated NSEC bitmap window")
		}
		for i := 0; i < length; i++ {
			for bit := 0; bit < 8; bit++ {
				if data[2+i]&(0x80>>bit) != 0 {
					types = append(types, RRType(window<<8|i*8+bit))
				}
			}
		}
		data = data[2+length:]
	}
	return types, nil
}
