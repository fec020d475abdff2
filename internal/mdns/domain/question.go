package domain

import "fmt"

// Question represents a single entry in the question section of a DNS message.
// UnicastResponse is the mDNS "QU" bit: the querier is willing to accept a
// unicast reply (RFC 6762 §5.4). On the wire it occupies the top bit of the
// qclass field.
type Question struct {
	Name            Name
	Type            RRType
	Class           RRClass
	UnicastResponse bool
}

// NewQuestion constructs a Question and validates its fields.
func NewQuestion(name Name, rrtype RRType, class RRClass) (Question, error) {
	q := Question{
		Name:  name,
		Type:  rrtype,
		Class: class,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks whether the Question fields are structurally and semantically valid.
func (q Question) Validate() error {
	if q.Name.IsZero() {
		return fmt.Errorf("question name must not be empty")
	}
	if !q.Type.IsValid() {
		return fmt.Errorf("unsupported RRType: %d", q.Type)
	}
	if !q.Class.IsValid() {
		return fmt.Errorf("unsupported RRClass: %d", q.Class)
	}
	return nil
}

// WireLength returns the uncompressed encoded size of the question.
func (q Question) WireLength() int {
	return q.Name.WireLength() + 4 // type + class
}

// CacheKey returns a cache key string derived from the question's name, type, and class.
func (q Question) CacheKey() string {
	return fmt.Sprintf("%s:%d:%d", q.Name.Key(), q.Type, q.Class)
}
