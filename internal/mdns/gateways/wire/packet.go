package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/haukened/rr-mdns/internal/mdns/common/log"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// PacketCodec encodes and decodes whole DNS messages. Encoding uses a fresh
// label coder per pass so measurements stay pure; decoding walks the header
// counts exactly and rejects trailing bytes.
type PacketCodec struct {
	logger log.Logger
}

// NewPacketCodec creates a PacketCodec using the provided logger.
func NewPacketCodec(logger log.Logger) *PacketCodec {
	return &PacketCodec{logger: logger}
}

// Encode serializes p and records the measured length on the packet.
func (c *PacketCodec) Encode(p *domain.Packet) ([]byte, error) {
	buf := make([]byte, 0, p.UpperBoundLength())
	buf = binary.BigEndian.AppendUint16(buf, p.ID)
	buf = binary.BigEndian.AppendUint16(buf, p.FlagsWord())
	for _, n := range [4]int{
		len(p.Questions()), len(p.Answers()), len(p.Authorities()), len(p.Additionals()),
	} {
		if n > 65535 {
			return nil, fmt.Errorf("section too large: %d entries", n)
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(n))
	}

	coder := newLabelCoder()
	for _, q := range p.Questions() {
		buf = appendQuestion(coder, buf, q)
	}
	var err error
	for _, section := range [][]domain.ResourceRecord{p.Answers(), p.Authorities(), p.Additionals()} {
		for _, rr := range section {
			buf, err = appendRecord(coder, buf, rr, p.LegacyUnicast)
			if err != nil {
				return nil, err
			}
		}
	}
	p.SetMeasuredLength(len(buf))
	return buf, nil
}

// EncodedLength returns the real (compressed) encoded size of p, preferring
// the packet's cached measurement when it is still valid.
func (c *PacketCodec) EncodedLength(p *domain.Packet) (int, error) {
	if n, ok := p.MeasuredLength(); ok {
		return n, nil
	}
	buf, err := c.Encode(p)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Decode parses a DNS message. Section counts in the header are honored
// exactly; a message that ends early fails with ErrShortBuffer and one with
// bytes left over fails with ErrTrailingGarbage.
func (c *PacketCodec) Decode(data []byte) (*domain.Packet, error) {
	if len(data) < domain.HeaderLength {
		return nil, fmt.Errorf("%w: message is %d bytes, header needs %d", ErrShortBuffer, len(data), domain.HeaderLength)
	}
	p := domain.NewPacket()
	p.ID = binary.BigEndian.Uint16(data[0:2])
	p.SetFlagsWord(binary.BigEndian.Uint16(data[2:4]))
	qdCount := int(binary.BigEndian.Uint16(data[4:6]))
	anCount := int(binary.BigEndian.Uint16(data[6:8]))
	nsCount := int(binary.BigEndian.Uint16(data[8:10]))
	arCount := int(binary.BigEndian.Uint16(data[10:12]))

	off := domain.HeaderLength
	for i := 0; i < qdCount; i++ {
		q, next, err := decodeQuestion(data, off)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		p.AddQuestion(q)
		off = next
	}
	for s, section := range [3]struct {
		count int
		add   func(domain.ResourceRecord)
	}{
		{anCount, p.AddAnswer},
		{nsCount, p.AddAuthority},
		{arCount, p.AddAdditional},
	} {
		for i := 0; i < section.count; i++ {
			rr, next, err := decodeRecord(data, off)
			if err != nil {
				return nil, fmt.Errorf("section %d record %d: %w", s, i, err)
			}
			section.add(rr)
			off = next
		}
	}
	if off != len(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingGarbage, len(data)-off)
	}
	p.SetMeasuredLength(len(data))
	return p, nil
}
