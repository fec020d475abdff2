package domain

import (
	"bytes"
	"sort"
)

// CompareRecords orders two records canonically for probe tiebreaking
// (RFC 6762 §8.2.1): by class (without the cache-flush bit), then type, then
// canonical rdata bytes. Returns -1, 0, or 1.
func CompareRecords(a, b ResourceRecord) int {
	if a.Class != b.Class {
		if a.Class < b.Class {
			return -1
		}
		return 1
	}
	if a.Type() != b.Type() {
		if a.Type() < b.Type() {
			return -1
		}
		return 1
	}
	return bytes.Compare(a.CanonicalRData(), b.CanonicalRData())
}

// SortCanonically sorts records in place into canonical order.
func SortCanonically(records []ResourceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return CompareRecords(records[i], records[j]) < 0
	})
}

// TiebreakResult is the outcome of comparing two simultaneous probes.
type TiebreakResult int

const (
	// NoConflict means both probe sets are identical: the same host is
	// probing twice, and neither side needs to yield.
	NoConflict TiebreakResult = iota
	// HostWins means our record set orders first; the opponent must yield.
	HostWins
	// OpponentWins means the opponent's set orders first; we must back off.
	OpponentWins
)

// String returns the textual representation of the TiebreakResult.
func (r TiebreakResult) String() string {
	switch r {
	case HostWins:
		return "HOST_WINS"
	case OpponentWins:
		return "OPPONENT_WINS"
	default:
		return "NO_CONFLICT"
	}
}

// Tiebreak compares our sorted probe authority records against an opponent's
// sorted set, pairwise in canonical order. The first differing comparison
// decides: the side holding the smaller value wins. If one sequence is a
// strict prefix of the other, the shorter sequence wins. Identical sequences
// mean there is no real conflict. Both slices must already be sorted with
// SortCanonically.
func Tiebreak(ours, theirs []ResourceRecord) TiebreakResult {
	n := len(ours)
	if len(theirs) < n {
		n = len(theirs)
	}
	for i := 0; i < n; i++ {
		switch CompareRecords(ours[i], theirs[i]) {
		case -1:
			return HostWins
		case 1:
			return OpponentWins
		}
	}
	switch {
	case len(ours) < len(theirs):
		return HostWins
	case len(ours) > len(theirs):
		return OpponentWins
	default:
		return NoConflict
	}
}
