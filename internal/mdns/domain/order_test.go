package domain

import (
	"net/netip"
	"testing"
)

func aRecord(addr string) ResourceRecord {
	return ResourceRecord{
		Name:  MustParseName("host.local"),
		Class: RRClassIN,
		TTL:   120,
		Data:  AData{Addr: netip.MustParseAddr(addr)},
	}
}

func txtRecord(s string) ResourceRecord {
	return ResourceRecord{
		Name:  MustParseName("host.local"),
		Class: RRClassIN,
		TTL:   4500,
		Data:  TXTData{Strings: [][]byte{[]byte(s)}},
	}
}

func TestCompareRecords(t *testing.T) {
	tests := []struct {
		name string
		a, b ResourceRecord
		want int
	}{
		{
			name: "type orders before rdata",
			a:    aRecord("10.0.0.1"), // type 1
			b:    txtRecord("zzz"),    // type 16
			want: -1,
		},
		{
			name: "rdata bytes decide within a type",
			a:    aRecord("9.0.0.1"),
			b:    aRecord("10.0.0.1"),
			want: -1,
		},
		{
			name: "identical records compare equal",
			a:    aRecord("10.0.0.1"),
			b:    aRecord("10.0.0.1"),
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareRecords(tt.a, tt.b); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
			if got := CompareRecords(tt.b, tt.a); got != -tt.want {
				t.Errorf("Expected symmetry: %d, got %d", -tt.want, got)
			}
		})
	}
}

func TestSortCanonically(t *testing.T) {
	records := []ResourceRecord{txtRecord("b"), aRecord("10.0.0.2"), aRecord("10.0.0.1"), txtRecord("a")}
	SortCanonically(records)
	wantOrder := []ResourceRecord{aRecord("10.0.0.1"), aRecord("10.0.0.2"), txtRecord("a"), txtRecord("b")}
	for i := range wantOrder {
		if !records[i].DataEqual(wantOrder[i]) {
			t.Errorf("Position %d: expected %v rdata %x", i, wantOrder[i].Type(), wantOrder[i].CanonicalRData())
		}
	}
}

func TestTiebreak(t *testing.T) {
	tests := []struct {
		name   string
		ours   []ResourceRecord
		theirs []ResourceRecord
		want   TiebreakResult
	}{
		{
			name:   "identical sets report no conflict",
			ours:   []ResourceRecord{aRecord("10.0.0.1")},
			theirs: []ResourceRecord{aRecord("10.0.0.1")},
			want:   NoConflict,
		},
		{
			name:   "smaller rdata wins for the holder",
			ours:   []ResourceRecord{aRecord("9.0.0.1")},
			theirs: []ResourceRecord{aRecord("10.0.0.1")},
			want:   HostWins,
		},
		{
			name:   "opponent with smaller rdata wins",
			ours:   []ResourceRecord{aRecord("10.0.0.1")},
			theirs: []ResourceRecord{aRecord("9.0.0.1")},
			want:   OpponentWins,
		},
		{
			name:   "strict prefix wins",
			ours:   []ResourceRecord{aRecord("10.0.0.1")},
			theirs: []ResourceRecord{aRecord("10.0.0.1"), txtRecord("x")},
			want:   HostWins,
		},
		{
			name:   "strict superset loses",
			ours:   []ResourceRecord{aRecord("10.0.0.1"), txtRecord("x")},
			theirs: []ResourceRecord{aRecord("10.0.0.1")},
			want:   OpponentWins,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortCanonically(tt.ours)
			SortCanonically(tt.theirs)
			if got := Tiebreak(tt.ours, tt.theirs); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTiebreak_Totality(t *testing.T) {
	// For any two non-equal sorted sets, exactly one side wins.
	ours := []ResourceRecord{aRecord("10.0.0.1"), txtRecord("a")}
	theirs := []ResourceRecord{aRecord("10.0.0.1"), txtRecord("b")}
	SortCanonically(ours)
	SortCanonically(theirs)
	forward := Tiebreak(ours, theirs)
	backward := Tiebreak(theirs, ours)
	if forward == NoConflict || backward == NoConflict {
		t.Fatal("Non-equal sets must produce a winner")
	}
	if (forward == HostWins) == (backward == HostWins) {
		t.Error("Expected exactly one side to win")
	}
}
