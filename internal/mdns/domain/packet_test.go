package domain

import (
	"testing"
)

func TestPacket_FlagsWord_RoundTrip(t *testing.T) {
	p := NewPacket()
	p.Response = true
	p.Opcode = 2
	p.Authoritative = true
	p.Truncated = true
	p.RCode = 3

	w := p.FlagsWord()
	q := NewPacket()
	q.SetFlagsWord(w)

	if !q.Response || q.Opcode != 2 || !q.Authoritative || !q.Truncated || q.RCode != 3 {
		t.Errorf("Flags did not survive round trip: %04x", w)
	}
	if q.RecursionDesired || q.RecursionAvailable || q.AuthenticData || q.CheckingDisabled {
		t.Error("Unset flags came back set")
	}
}

func TestPacket_UpperBoundTracking(t *testing.T) {
	p := NewPacket()
	if p.UpperBoundLength() != HeaderLength {
		t.Fatalf("Empty packet estimate should be %d, got %d", HeaderLength, p.UpperBoundLength())
	}

	q := Question{Name: MustParseName("printer.local"), Type: RRTypeANY, Class: RRClassIN}
	p.AddQuestion(q)
	want := HeaderLength + q.WireLength()
	if p.UpperBoundLength() != want {
		t.Errorf("Expected estimate %d after question, got %d", want, p.UpperBoundLength())
	}

	rr := txtRecord("a=1")
	p.AddAnswer(rr)
	want += rr.UpperBoundWireLength()
	if p.UpperBoundLength() != want {
		t.Errorf("Expected estimate %d after answer, got %d", want, p.UpperBoundLength())
	}

	p.RemoveLastAnswer()
	want -= rr.UpperBoundWireLength()
	if p.UpperBoundLength() != want {
		t.Errorf("Expected estimate %d after removal, got %d", want, p.UpperBoundLength())
	}
}

func TestPacket_MeasuredLengthInvalidation(t *testing.T) {
	p := NewPacket()
	p.SetMeasuredLength(42)
	if n, ok := p.MeasuredLength(); !ok || n != 42 {
		t.Fatal("Expected cached measurement to be readable")
	}
	p.AddAnswer(txtRecord("x"))
	if _, ok := p.MeasuredLength(); ok {
		t.Error("Expected mutation to invalidate the cached measurement")
	}
}

func TestPacket_CanCombineWith(t *testing.T) {
	base := func() *Packet {
		p := NewResponsePacket(false, 0)
		return p
	}

	a := base()
	b := base()
	if !a.CanCombineWith(b) {
		t.Error("Identical headers should be combinable")
	}

	c := base()
	c.ID = 7
	if a.CanCombineWith(c) {
		t.Error("Different ids should not be combinable")
	}

	d := base()
	d.Truncated = true
	if a.CanCombineWith(d) {
		t.Error("Differing flag bits should not be combinable")
	}

	e := NewPacket() // query, not response
	if a.CanCombineWith(e) {
		t.Error("Query and response should not be combinable")
	}
}

func TestPacket_CombineWith(t *testing.T) {
	a := NewResponsePacket(false, 0)
	a.AddAnswer(aRecord("10.0.0.1"))
	b := NewResponsePacket(true, 0)
	b.AddAnswer(aRecord("10.0.0.2"))
	b.AddAdditional(txtRecord("k=v"))

	a.CombineWith(b)
	if len(a.Answers()) != 2 {
		t.Errorf("Expected 2 answers after combine, got %d", len(a.Answers()))
	}
	if len(a.Additionals()) != 1 {
		t.Errorf("Expected 1 additional after combine, got %d", len(a.Additionals()))
	}
	if !a.LegacyUnicast {
		t.Error("Expected legacy-unicast flag to be ORed")
	}
}

func TestPacket_Clone(t *testing.T) {
	a := NewResponsePacket(false, 0)
	a.AddAnswer(aRecord("10.0.0.1"))
	c := a.Clone()
	c.AddAnswer(aRecord("10.0.0.2"))
	if len(a.Answers()) != 1 {
		t.Error("Mutating a clone must not affect the original")
	}
	if len(c.Answers()) != 2 {
		t.Error("Clone lost its own mutation")
	}
}
