// Package wire provides encoding and decoding of mDNS messages in the DNS
// wire format of RFC 1035 as constrained by RFC 6762, including label
// compression, and the outbound packet builders that enforce payload-size
// discipline.
package wire

import "errors"

// Decode-side errors. Datagrams failing with these are dropped and logged;
// the responder continues.
var (
	// ErrMalformedName reports an undecodable DNS name: a forward or
	// self-referencing compression pointer, a pointer chain over 128 hops, a
	// reserved label-length pattern, or a decoded length over 255 bytes.
	ErrMalformedName = errors.New("malformed name")
	// ErrMalformedRecord reports a resource record whose rdata does not
	// parse under its record type.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrShortBuffer reports a message that ends before its declared
	// sections do.
	ErrShortBuffer = errors.New("short buffer")
	// ErrTrailingGarbage reports bytes remaining after the last declared
	// section.
	ErrTrailingGarbage = errors.New("trailing bytes after last section")
)

// Build-side errors. These indicate a caller or configuration problem and
// propagate; retrying cannot fix them.
var (
	// ErrQuerySectionTooLarge means the question section alone exceeds the
	// UDP payload size even after compression.
	ErrQuerySectionTooLarge = errors.New("question section exceeds payload size")
	// ErrProbeTooLarge means a probe query with its authority records does
	// not fit in one datagram. Probes are never split.
	ErrProbeTooLarge = errors.New("probe query exceeds payload size")
	// ErrResponseTooLarge means a response does not fit in one datagram;
	// the caller must decompose the record set.
	ErrResponseTooLarge = errors.New("response exceeds payload size")
)
