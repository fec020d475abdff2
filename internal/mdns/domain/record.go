package domain

import (
	"bytes"
	"fmt"
)

// ResourceRecord represents a DNS resource record. CacheFlush is the mDNS
// bit telling receivers to drop cached records of the same (name, type,
// class) before absorbing this one; on the wire it occupies the top bit of
// the class field.
type ResourceRecord struct {
	Name       Name
	Class      RRClass
	CacheFlush bool
	TTL        uint32
	Data       RData
}

// NewResourceRecord constructs a ResourceRecord and validates it.
func NewResourceRecord(name Name, class RRClass, cacheFlush bool, ttl uint32, data RData) (ResourceRecord, error) {
	rr := ResourceRecord{
		Name:       name,
		Class:      class,
		CacheFlush: cacheFlush,
		TTL:        ttl,
		Data:       data,
	}
	if err := rr.Validate(); err != nil {
		return ResourceRecord{}, err
	}
	return rr, nil
}

// Type returns the record type, derived from the rdata variant.
func (rr ResourceRecord) Type() RRType {
	if rr.Data == nil {
		return 0
	}
	return rr.Data.RType()
}

// Validate checks whether the ResourceRecord fields are valid.
func (rr ResourceRecord) Validate() error {
	if rr.Name.IsZero() {
		return fmt.Errorf("record name must not be empty")
	}
	if rr.Data == nil {
		return fmt.Errorf("record data must not be nil")
	}
	if !rr.Class.IsValid() {
		return fmt.Errorf("invalid RRClass: %d", rr.Class)
	}
	return rr.Data.Validate()
}

// CanonicalRData returns the canonical rdata bytes: uncompressed, embedded
// names lowercased.
func (rr ResourceRecord) CanonicalRData() []byte {
	return rr.Data.Canonical()
}

// SameData reports whether two records represent the same data: equal name
// (ignoring case), type, and class (ignoring the cache-flush bit).
func (rr ResourceRecord) SameData(o ResourceRecord) bool {
	return rr.Type() == o.Type() && rr.Class == o.Class && rr.Name.Equal(o.Name)
}

// DataEqual reports whether two records carry identical data: SameData plus
// byte-equal canonical rdata.
func (rr ResourceRecord) DataEqual(o ResourceRecord) bool {
	return rr.SameData(o) && bytes.Equal(rr.CanonicalRData(), o.CanonicalRData())
}

// UpperBoundWireLength returns the uncompressed encoded size of the record.
// Compression only ever shrinks an encoding, so this bounds the real size.
func (rr ResourceRecord) UpperBoundWireLength() int {
	return rr.Name.WireLength() + 10 + len(rr.CanonicalRData()) // type+class+ttl+rdlength = 10
}

// CacheKey returns a cache key string derived from the record's name, type, and class.
func (rr ResourceRecord) CacheKey() string {
	return fmt.Sprintf("%s:%d:%d", rr.Name.Key(), rr.Type(), rr.Class)
}
