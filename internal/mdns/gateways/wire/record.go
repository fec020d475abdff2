package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// appendQuestion appends a question entry. The unicast-response bit rides in
// the top bit of the qclass field (RFC 6762 §5.4).
func appendQuestion(c *labelCoder, buf []byte, q domain.Question) []byte {
	buf = c.appendName(buf, q.Name)
	buf = binary.BigEndian.AppendUint16(buf, uint16(q.Type))
	class := uint16(q.Class) & domain.ClassMask
	if q.UnicastResponse {
		class |= domain.ClassTopBit
	}
	return binary.BigEndian.AppendUint16(buf, class)
}

// decodeQuestion parses one question entry at off.
func decodeQuestion(msg []byte, off int) (domain.Question, int, error) {
	name, off, err := decodeName(msg, off)
	if err != nil {
		return domain.Question{}, 0, err
	}
	if off+4 > len(msg) {
		return domain.Question{}, 0, fmt.Errorf("%w: truncated question", ErrShortBuffer)
	}
	rawClass := binary.BigEndian.Uint16(msg[off+2 : off+4])
	q := domain.Question{
		Name:            name,
		Type:            domain.RRType(binary.BigEndian.Uint16(msg[off : off+2])),
		Class:           domain.RRClass(rawClass & domain.ClassMask),
		UnicastResponse: rawClass&domain.ClassTopBit != 0,
	}
	return q, off + 4, nil
}

// appendRecord appends a resource record. The cache-flush bit rides in the
// top bit of the class field, except for OPT, whose class field carries the
// EDNS0 UDP payload size instead (RFC 6891 §6.1.2). legacyUnicast disables
// compression of SRV targets, which some legacy resolvers mis-parse.
func appendRecord(c *labelCoder, buf []byte, rr domain.ResourceRecord, legacyUnicast bool) ([]byte, error) {
	buf = c.appendName(buf, rr.Name)
	buf = binary.BigEndian.AppendUint16(buf, uint16(rr.Type()))
	class := uint16(rr.Class) & domain.ClassMask
	if rr.CacheFlush {
		class |= domain.ClassTopBit
	}
	if opt, ok := rr.Data.(domain.OPTData); ok {
		class = opt.UDPSize
	}
	buf = binary.BigEndian.AppendUint16(buf, class)
	buf = binary.BigEndian.AppendUint32(buf, rr.TTL)

	rdStart := len(buf)
	buf = append(buf, 0, 0) // rdlength backpatched below
	buf, err := appendRData(c, buf, rr.Data, legacyUnicast)
	if err != nil {
		return nil, err
	}
	rdLen := len(buf) - rdStart - 2
	if rdLen > 65535 {
		return nil, fmt.Errorf("rdata too large: %d bytes", rdLen)
	}
	binary.BigEndian.PutUint16(buf[rdStart:rdStart+2], uint16(rdLen))
	return buf, nil
}

// appendRData appends the rdata for one variant. PTR and CNAME targets go
// through the message coder; SRV targets do too unless the packet is
// legacy-unicast; NSEC names are never compressed (RFC 3845 §2.1).
func appendRData(c *labelCoder, buf []byte, data domain.RData, legacyUnicast bool) ([]byte, error) {
	switch d := data.(type) {
	case domain.AData:
		v4 := d.Addr.As4()
		return append(buf, v4[:]...), nil
	case domain.AAAAData:
		v6 := d.Addr.As16()
		return append(buf, v6[:]...), nil
	case domain.PTRData:
		return c.appendName(buf, d.Target), nil
	case domain.CNAMEData:
		return c.appendName(buf, d.Target), nil
	case domain.SRVData:
		buf = binary.BigEndian.AppendUint16(buf, d.Priority)
		buf = binary.BigEndian.AppendUint16(buf, d.Weight)
		buf = binary.BigEndian.AppendUint16(buf, d.Port)
		if legacyUnicast {
			return newPlainCoder().appendName(buf, d.Target), nil
		}
		return c.appendName(buf, d.Target), nil
	case domain.TXTData:
		return append(buf, d.Canonical()...), nil
	case domain.NSECData:
		return append(buf, d.Canonical()...), nil
	case domain.OPTData:
		return append(buf, d.Options...), nil
	case domain.RawData:
		return append(buf, d.Data...), nil
	default:
		return nil, fmt.Errorf("unsupported rdata variant %T", data)
	}
}

// decodeRecord parses one resource record at off.
func decodeRecord(msg []byte, off int) (domain.ResourceRecord, int, error) {
	name, off, err := decodeName(msg, off)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	if off+10 > len(msg) {
		return domain.ResourceRecord{}, 0, fmt.Errorf("%w: truncated record header", ErrShortBuffer)
	}
	rtype := domain.RRType(binary.BigEndian.Uint16(msg[off : off+2]))
	rawClass := binary.BigEndian.Uint16(msg[off+2 : off+4])
	ttl := binary.BigEndian.Uint32(msg[off+4 : off+8])
	rdLen := int(binary.BigEndian.Uint16(msg[off+8 : off+10]))
	off += 10
	if off+rdLen > len(msg) {
		return domain.ResourceRecord{}, 0, fmt.Errorf("%w: truncated rdata", ErrShortBuffer)
	}

	data, err := decodeRData(msg, off, rdLen, rtype)
	if err != nil {
		return domain.ResourceRecord{}, 0, err
	}
	rr := domain.ResourceRecord{
		Name:       name,
		Class:      domain.RRClass(rawClass & domain.ClassMask),
		CacheFlush: rawClass&domain.ClassTopBit != 0,
		TTL:        ttl,
		Data:       data,
	}
	if opt, ok := data.(domain.OPTData); ok {
		// For OPT the class field is the UDP payload size, not a class.
		opt.UDPSize = rawClass
		rr.Data = opt
		rr.Class = domain.RRClassIN
		rr.CacheFlush = false
	}
	return rr, off + rdLen, nil
}

// decodeRData parses rdLen bytes of rdata at off. Embedded names may point
// anywhere earlier in the message, so the whole message is passed through.
func decodeRData(msg []byte, off, rdLen int, rtype domain.RRType) (domain.RData, error) {
	rdata := msg[off : off+rdLen]
	switch rtype {
	case domain.RRTypeA:
		if rdLen != 4 {
			return nil, fmt.Errorf("%w: A rdata is %d bytes, want 4", ErrMalformedRecord, rdLen)
		}
		addr, _ := netip.AddrFromSlice(rdata)
		return domain.AData{Addr: addr}, nil
	case domain.RRTypeAAAA:
		if rdLen != 16 {
			return nil, fmt.Errorf("%w: AAAA rdata is %d bytes, want 16", ErrMalformedRecord, rdLen)
		}
		addr, _ := netip.AddrFromSlice(rdata)
		return domain.AAAAData{Addr: addr}, nil
	case domain.RRTypePTR:
		target, end, err := decodeName(msg, off)
		if err != nil {
			return nil, err
		}
		if end != off+rdLen {
			return nil, fmt.Errorf("%w: PTR rdata has %d stray bytes", ErrMalformedRecord, off+rdLen-end)
		}
		return domain.PTRData{Target: target}, nil
	case domain.RRTypeCNAME:
		target, end, err := decodeName(msg, off)
		if err != nil {
			return nil, err
		}
		if end != off+rdLen {
			return nil, fmt.Errorf("%w: CNAME rdata has %d stray bytes", ErrMalformedRecord, off+rdLen-end)
		}
		return domain.CNAMEData{Target: target}, nil
	case domain.RRTypeSRV:
		if rdLen < 7 {
			return nil, fmt.Errorf("%w: SRV rdata is %d bytes, want at least 7", ErrMalformedRecord, rdLen)
		}
		target, end, err := decodeName(msg, off+6)
		if err != nil {
			return nil, err
		}
		if end != off+rdLen {
			return nil, fmt.Errorf("%w: SRV rdata has %d stray bytes", ErrMalformedRecord, off+rdLen-end)
		}
		return domain.SRVData{
			Priority: binary.BigEndian.Uint16(rdata[0:2]),
			Weight:   binary.BigEndian.Uint16(rdata[2:4]),
			Port:     binary.BigEndian.Uint16(rdata[4:6]),
			Target:   target,
		}, nil
	case domain.RRTypeTXT:
		var strs [][]byte
		for i := 0; i < rdLen; {
			l := int(rdata[i])
			if i+1+l > rdLen {
				return nil, fmt.Errorf("%w: TXT string runs past rdata", ErrMalformedRecord)
			}
			strs = append(strs, append([]byte(nil), rdata[i+1:i+1+l]...))
			i += 1 + l
		}
		return domain.TXTData{Strings: strs}, nil
	case domain.RRTypeNSEC:
		next, end, err := decodeName(msg, off)
		if err != nil {
			return nil, err
		}
		if end > off+rdLen {
			return nil, fmt.Errorf("%w: NSEC next name runs past rdata", ErrMalformedRecord)
		}
		types, err := domain.DecodeTypeBitmap(msg[end : off+rdLen])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		return domain.NSECData{NextName: next, Types: types}, nil
	case domain.RRTypeOPT:
		return domain.OPTData{Options: append([]byte(nil), rdata...)}, nil
	default:
		return domain.RawData{Type: rtype, Data: append([]byte(nil), rdata...)}, nil
	}
}
