package wire

import (
	"sort"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// DefaultUDPPayloadSize is the default outgoing datagram cap (RFC 6762 §17
// recommends staying within the interface MTU; 1440 leaves headroom for IP
// and UDP headers on a 1500-byte link).
const DefaultUDPPayloadSize = 1440

// Builder assembles outgoing packets under a UDP payload cap.
type Builder struct {
	codec       *PacketCodec
	payloadSize int
}

// NewBuilder creates a Builder. A payloadSize <= 0 selects the default.
func NewBuilder(codec *PacketCodec, payloadSize int) *Builder {
	if payloadSize <= 0 {
		payloadSize = DefaultUDPPayloadSize
	}
	return &Builder{codec: codec, payloadSize: payloadSize}
}

// PayloadSize returns the configured datagram cap.
func (b *Builder) PayloadSize() int {
	return b.payloadSize
}

// BuildQuery assembles a query with known-answer suppression, fragmenting
// across datagrams per RFC 6762 §7.2. All questions ride in the first
// packet; known answers are sorted by uncompressed size ascending and packed
// greedily, accepting a record when the size estimate stays under the cap or,
// failing that, when the real compressed size still fits. A record that no
// longer fits closes the current packet (TC set on every non-final packet)
// and opens a continuation. A single record larger than the cap is emitted
// alone in an otherwise empty packet, per the RFC 6762 §17 carve-out, leaving
// IP fragmentation to the OS.
func (b *Builder) BuildQuery(questions []domain.Question, knownAnswers []domain.ResourceRecord) ([]*domain.Packet, error) {
	p := domain.NewPacket()
	for _, q := range questions {
		p.AddQuestion(q)
	}
	n, err := b.codec.EncodedLength(p)
	if err != nil {
		return nil, err
	}
	if n > b.payloadSize {
		return nil, ErrQuerySectionTooLarge
	}

	sorted := make([]domain.ResourceRecord, len(knownAnswers))
	copy(sorted, knownAnswers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpperBoundWireLength() < sorted[j].UpperBoundWireLength()
	})

	var out []*domain.Packet
	flush := func() {
		out = append(out, p)
		p = domain.NewPacket()
	}
	for _, rr := range sorted {
		p.AddAnswer(rr)
		if p.UpperBoundLength() <= b.payloadSize {
			continue
		}
		if n, err := b.codec.EncodedLength(p); err == nil && n <= b.payloadSize {
			continue
		}
		p.RemoveLastAnswer()
		if len(p.Questions()) == 0 && len(p.Answers()) == 0 {
			// The record alone exceeds the cap and the packet holds nothing
			// else: include it anyway and emit it alone (§17 carve-out).
			p.AddAnswer(rr)
			flush()
			continue
		}
		flush()
		p.AddAnswer(rr)
		if p.UpperBoundLength() > b.payloadSize {
			if n, err := b.codec.EncodedLength(p); err != nil || n > b.payloadSize {
				// Oversize even as the continuation's sole record.
				flush()
			}
		}
	}
	if len(p.Questions()) > 0 || len(p.Answers()) > 0 || len(out) == 0 {
		out = append(out, p)
	}
	for _, pkt := range out[:len(out)-1] {
		pkt.SetTruncated(true)
	}
	return out, nil
}

// BuildProbeQuery assembles the probe query of RFC 6762 §8.1: one ANY
// question for the service name and, when it differs, one for the host name,
// both requesting
// unicast responses, with the proposed records in the authority section
// sorted canonically so receivers can run tiebreaking directly. Probes are
// never split; one that does not fit fails with ErrProbeTooLarge.
func (b *Builder) BuildProbeQuery(service, host domain.Name, records []domain.ResourceRecord) (*domain.Packet, error) {
	p := domain.NewPacket()
	p.AddQuestion(domain.Question{
		Name:            service,
		Type:            domain.RRTypeANY,
		Class:           domain.RRClassIN,
		UnicastResponse: true,
	})
	if !host.Equal(service) {
		p.AddQuestion(domain.Question{
			Name:            host,
			Type:            domain.RRTypeANY,
			Class:           domain.RRClassIN,
			UnicastResponse: true,
		})
	}
	sorted := make([]domain.ResourceRecord, len(records))
	copy(sorted, records)
	domain.SortCanonically(sorted)
	for _, rr := range sorted {
		p.AddAuthority(rr)
	}
	n, err := b.codec.EncodedLength(p)
	if err != nil {
		return nil, err
	}
	if n > b.payloadSize {
		return nil, ErrProbeTooLarge
	}
	return p, nil
}

// BuildResponse assembles a response packet. AA is always set (RFC 6762
// §18.4). The id is zero for multicast responses and mirrors the query id
// for legacy unicast. A response that does not fit fails with
// ErrResponseTooLarge; callers must decompose the record set.
func (b *Builder) BuildResponse(answers, additionals []domain.ResourceRecord, legacyUnicast bool, queryID uint16) (*domain.Packet, error) {
	p := domain.NewResponsePacket(legacyUnicast, queryID)
	for _, rr := range answers {
		p.AddAnswer(rr)
	}
	for _, rr := range additionals {
		p.AddAdditional(rr)
	}
	n, err := b.codec.EncodedLength(p)
	if err != nil {
		return nil, err
	}
	if n > b.payloadSize {
		return nil, ErrResponseTooLarge
	}
	return p, nil
}
