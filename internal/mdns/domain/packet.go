package domain

// HeaderLength is the fixed size of the DNS message header.
const HeaderLength = 12

// Flag word layout per RFC 1035 §4.1.1.
const (
	flagQR uint16 = 1 << 15
	flagAA uint16 = 1 << 10
	flagTC uint16 = 1 << 9
	flagRD uint16 = 1 << 8
	flagRA uint16 = 1 << 7
	flagAD uint16 = 1 << 5
	flagCD uint16 = 1 << 4

	opcodeShift = 11
	opcodeMask  = 0xF
	rcodeMask   = 0xF
)

// Packet is a DNS message: header, four record sections, and the mDNS
// legacy-unicast marker. LegacyUnicast changes encoding (SRV targets are not
// compressed) and id handling; it is ORed when packets are combined.
//
// Packet keeps two length caches: an uncompressed upper bound maintained
// incrementally by the mutators, and the last measured real (compressed)
// length with a validity flag that every mutation clears. Sections are
// reached through accessors so the caches cannot be bypassed.
type Packet struct {
	ID                 uint16
	Response           bool
	Opcode             uint8
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	AuthenticData      bool
	CheckingDisabled   bool
	RCode              RCode

	LegacyUnicast bool

	questions   []Question
	answers     []ResourceRecord
	authorities []ResourceRecord
	additionals []ResourceRecord

	upperBound   int
	realLen      int
	realLenValid bool
}

// NewPacket returns an empty query packet.
func NewPacket() *Packet {
	return &Packet{upperBound: HeaderLength}
}

// NewResponsePacket returns an empty response packet with AA set, as every
// mDNS response must be (RFC 6762 §18.4). The id is zero for multicast
// responses and mirrors the query id for legacy unicast.
func NewResponsePacket(legacyUnicast bool, id uint16) *Packet {
	p := NewPacket()
	p.Response = true
	p.Authoritative = true
	p.LegacyUnicast = legacyUnicast
	if legacyUnicast {
		p.ID = id
	}
	return p
}

// Questions returns the question section. Callers must not mutate it.
func (p *Packet) Questions() []Question { return p.questions }

// Answers returns the answer section. Callers must not mutate it.
func (p *Packet) Answers() []ResourceRecord { return p.answers }

// Authorities returns the authority section. Callers must not mutate it.
func (p *Packet) Authorities() []ResourceRecord { return p.authorities }

// Additionals returns the additional section. Callers must not mutate it.
func (p *Packet) Additionals() []ResourceRecord { return p.additionals }

// AddQuestion appends q to the question section.
func (p *Packet) AddQuestion(q Question) {
	p.questions = append(p.questions, q)
	p.upperBound += q.WireLength()
	p.realLenValid = false
}

// AddAnswer appends rr to the answer section.
func (p *Packet) AddAnswer(rr ResourceRecord) {
	p.answers = append(p.answers, rr)
	p.upperBound += rr.UpperBoundWireLength()
	p.realLenValid = false
}

// RemoveLastAnswer drops the most recently added answer. Used by the query
// builder when a tentatively packed known-answer does not fit.
func (p *Packet) RemoveLastAnswer() {
	if len(p.answers) == 0 {
		return
	}
	last := p.answers[len(p.answers)-1]
	p.answers = p.answers[:len(p.answers)-1]
	p.upperBound -= last.UpperBoundWireLength()
	p.realLenValid = false
}

// AddAuthority appends rr to the authority section.
func (p *Packet) AddAuthority(rr ResourceRecord) {
	p.authorities = append(p.authorities, rr)
	p.upperBound += rr.UpperBoundWireLength()
	p.realLenValid = false
}

// AddAdditional appends rr to the additional section.
func (p *Packet) AddAdditional(rr ResourceRecord) {
	p.additionals = append(p.additionals, rr)
	p.upperBound += rr.UpperBoundWireLength()
	p.realLenValid = false
}

// SetTruncated sets or clears the TC bit.
func (p *Packet) SetTruncated(tc bool) {
	p.Truncated = tc
	p.realLenValid = false
}

// UpperBoundLength returns the incrementally maintained uncompressed size
// estimate. The real encoding is never larger.
func (p *Packet) UpperBoundLength() int {
	return p.upperBound
}

// MeasuredLength returns the cached real encoded length, if still valid.
func (p *Packet) MeasuredLength() (int, bool) {
	return p.realLen, p.realLenValid
}

// SetMeasuredLength records a real encoded length computed by the codec.
func (p *Packet) SetMeasuredLength(n int) {
	p.realLen = n
	p.realLenValid = true
}

// FlagsWord packs the header flag bits into their wire representation.
func (p *Packet) FlagsWord() uint16 {
	var w uint16
	if p.Response {
		w |= flagQR
	}
	w |= uint16(p.Opcode&opcodeMask) << opcodeShift
	if p.Authoritative {
		w |= flagAA
	}
	if p.Truncated {
		w |= flagTC
	}
	if p.RecursionDesired {
		w |= flagRD
	}
	if p.RecursionAvailable {
		w |= flagRA
	}
	if p.AuthenticData {
		w |= flagAD
	}
	if p.CheckingDisabled {
		w |= flagCD
	}
	w |= uint16(p.RCode) & rcodeMask
	return w
}

// SetFlagsWord unpacks a wire flag word into the header fields.
func (p *Packet) SetFlagsWord(w uint16) {
	p.Response = w&flagQR != 0
	p.Opcode = uint8(w >> opcodeShift & opcodeMask)
	p.Authoritative = w&flagAA != 0
	p.Truncated = w&flagTC != 0
	p.RecursionDesired = w&flagRD != 0
	p.RecursionAvailable = w&flagRA != 0
	p.AuthenticData = w&flagAD != 0
	p.CheckingDisabled = w&flagCD != 0
	p.RCode = RCode(w & rcodeMask)
	p.realLenValid = false
}

// CanCombineWith reports whether two packets are header-compatible for
// merging: same id, same QR, same opcode, same rcode, and byte-equal flags.
// Size is the caller's problem; the wire codec measures the merged result.
func (p *Packet) CanCombineWith(o *Packet) bool {
	return p.ID == o.ID &&
		p.Response == o.Response &&
		p.Opcode == o.Opcode &&
		p.RCode == o.RCode &&
		p.FlagsWord() == o.FlagsWord()
}

// CombineWith concatenates o's sections onto p and ORs the legacy-unicast
// marker. Callers must have checked CanCombineWith and the merged size first.
func (p *Packet) CombineWith(o *Packet) {
	for _, q := range o.questions {
		p.AddQuestion(q)
	}
	for _, rr := range o.answers {
		p.AddAnswer(rr)
	}
	for _, rr := range o.authorities {
		p.AddAuthority(rr)
	}
	for _, rr := range o.additionals {
		p.AddAdditional(rr)
	}
	p.LegacyUnicast = p.LegacyUnicast || o.LegacyUnicast
}

// Clone returns a copy of the packet with independent section slices. The
// records themselves are immutable and shared.
func (p *Packet) Clone() *Packet {
	c := *p
	c.questions = append([]Question(nil), p.questions...)
	c.answers = append([]ResourceRecord(nil), p.answers...)
	c.authorities = append([]ResourceRecord(nil), p.authorities...)
	c.additionals = append([]ResourceRecord(nil), p.additionals...)
	return &c
}
