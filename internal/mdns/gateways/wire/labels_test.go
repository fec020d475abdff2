package wire

import (
	"bytes"
	"testing"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

func TestLabelCoder_CompressesSharedSuffix(t *testing.T) {
	c := newLabelCoder()
	var msg []byte
	msg = append(msg, make([]byte, domain.HeaderLength)...) // stand-in header

	first := domain.MustParseName("printer._http._tcp.local")
	msg = c.appendName(msg, first)
	firstLen := len(msg) - domain.HeaderLength
	if firstLen != first.WireLength() {
		t.Fatalf("First occurrence should be uncompressed: %d vs %d", firstLen, first.WireLength())
	}

	// A second name sharing the _http._tcp.local suffix compresses to the
	// unmatched prefix plus a 2-byte pointer.
	second := domain.MustParseName("scanner._http._tcp.local")
	before := len(msg)
	msg = c.appendName(msg, second)
	wrote := len(msg) - before
	want := 1 + len("scanner") + 2
	if wrote != want {
		t.Errorf("Expected %d bytes for compressed name, got %d", want, wrote)
	}
	// The pointer targets the suffix inside the first name: offset 12 + the
	// "printer" label (8 bytes).
	ptr := msg[len(msg)-2:]
	wantPtr := []byte{0xC0, byte(domain.HeaderLength + 8)}
	if !bytes.Equal(ptr, wantPtr) {
		t.Errorf("Expected pointer %x, got %x", wantPtr, ptr)
	}

	// An identical name (modulo case) collapses to a bare pointer.
	third := domain.MustParseName("PRINTER._http._tcp.local")
	before = len(msg)
	msg = c.appendName(msg, third)
	if len(msg)-before != 2 {
		t.Errorf("Expected bare 2-byte pointer for repeated name, got %d bytes", len(msg)-before)
	}

	// Everything must decode back to the original labels.
	got1, _, err := decodeName(msg, domain.HeaderLength)
	if err != nil {
		t.Fatalf("Unexpected decode error: %v", err)
	}
	if !got1.Equal(first) {
		t.Errorf("First name did not round-trip: %s", got1)
	}
	got2, _, err := decodeName(msg, domain.HeaderLength+firstLen)
	if err != nil {
		t.Fatalf("Unexpected decode error: %v", err)
	}
	if !got2.Equal(second) {
		t.Errorf("Second name did not round-trip: %s", got2)
	}
}

func TestPlainCoder_NeverCompresses(t *testing.T) {
	c := newPlainCoder()
	name := domain.MustParseName("host.local")
	var msg []byte
	msg = c.appendName(msg, name)
	msg = c.appendName(msg, name)
	if len(msg) != 2*name.WireLength() {
		t.Errorf("Plain coder must emit full labels every time: %d bytes", len(msg))
	}
}

func TestLabelCoder_Reset(t *testing.T) {
	c := newLabelCoder()
	name := domain.MustParseName("host.local")
	msg := c.appendName(nil, name)
	c.reset()
	msg2 := c.appendName(nil, name)
	if !bytes.Equal(msg, msg2) {
		t.Error("After reset the coder must encode from scratch")
	}
}

func TestDecodeName_Malformed(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
		off  int
	}{
		{
			name: "offset out of bounds",
			msg:  []byte{0},
			off:  5,
		},
		{
			name: "truncated label",
			msg:  []byte{5, 'a', 'b'},
			off:  0,
		},
		{
			name: "missing terminator",
			msg:  []byte{1, 'a'},
			off:  0,
		},
		{
			name: "self-referencing pointer",
			msg:  []byte{0xC0, 0x00},
			off:  0,
		},
		{
			name: "forward pointer",
			msg:  []byte{1, 'a', 0xC0, 0x04, 1, 'b', 0},
			off:  2,
		},
		{
			name: "truncated pointer",
			msg:  []byte{1, 'a', 0xC0},
			off:  2,
		},
		{
			name: "reserved label type 0x80",
			msg:  []byte{0x80, 'a', 0},
			off:  0,
		},
		{
			name: "reserved label type 0x40",
			msg:  []byte{0x41, 'a', 0},
			off:  0,
		},
		{
			name: "empty root name",
			msg:  []byte{0},
			off:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeName(tt.msg, tt.off)
			if err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestDecodeName_PointerChainBounded(t *testing.T) {
	// A long chain of backwards pointers: each pointer hops to the previous
	// one, 200 hops deep, ending at a real label. Decoding must give up at
	// the hop bound rather than walk arbitrarily long chains.
	msg := []byte{1, 'a', 0}
	for i := 0; i < 200; i++ {
		target := len(msg) - 2
		if i == 0 {
			target = 0
		}
		msg = append(msg, 0xC0|byte(target>>8), byte(target))
	}
	_, _, err := decodeName(msg, len(msg)-2)
	if err == nil {
		t.Error("Expected pointer chain over 128 hops to be rejected")
	}
}

func TestDecodeName_TotalLengthBounded(t *testing.T) {
	// Labels totalling more than 255 wire bytes must be rejected even when
	// each label is individually legal.
	var msg []byte
	label := bytes.Repeat([]byte{'a'}, 63)
	for i := 0; i < 5; i++ {
		msg = append(msg, 63)
		msg = append(msg, label...)
	}
	msg = append(msg, 0)
	_, _, err := decodeName(msg, 0)
	if err == nil {
		t.Error("Expected name over 255 wire bytes to be rejected")
	}
}

func TestLabelCoder_NoPointersPastOffsetLimit(t *testing.T) {
	// Suffixes first seen beyond 0x3FFF cannot be pointer targets; names
	// there must still encode, just without registering the far offset.
	c := newLabelCoder()
	msg := make([]byte, maxPointerOffset+1)
	name := domain.MustParseName("far.example")
	before := len(msg)
	msg = c.appendName(msg, name)
	if len(msg)-before != name.WireLength() {
		t.Fatalf("Name past the pointer limit should encode uncompressed")
	}
	// A second occurrence cannot point at the first.
	before = len(msg)
	msg = c.appendName(msg, name)
	if len(msg)-before != name.WireLength() {
		t.Errorf("Suffix beyond 0x3FFF must not be used as a pointer target")
	}
}
