package responder

import (
	"sync"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// Registry holds the records this responder is authoritative for, keyed by
// lowercase owner name. Records land here only after probing has confirmed
// their uniqueness (or they are inherently shared, like PTR enumeration
// records).
type Registry struct {
	mu     sync.RWMutex
	byName map[string][]domain.ResourceRecord
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string][]domain.ResourceRecord)}
}

// Register publishes records, replacing any record with identical
// (name, type, class) and data.
func (r *Registry) Register(records ...domain.ResourceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rr := range records {
		key := rr.Name.Key()
		list := r.byName[key]
		replaced := false
		for i, old := range list {
			if old.DataEqual(rr) {
				list[i] = rr
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, rr)
		}
		r.byName[key] = list
	}
}

// Deregister withdraws every record owned by name.
func (r *Registry) Deregister(name domain.Name) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name.Key())
}

// Lookup returns the records answering q: those at the question's name whose
// type matches, or all of them for an ANY question.
func (r *Registry) Lookup(q domain.Question) []domain.ResourceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byName[q.Name.Key()]
	if len(list) == 0 {
		return nil
	}
	var out []domain.ResourceRecord
	for _, rr := range list {
		if q.Type == domain.RRTypeANY || rr.Type() == q.Type {
			out = append(out, rr)
		}
	}
	return out
}

// Records returns every registered record.
func (r *Registry) Records() []domain.ResourceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ResourceRecord
	for _, list := range r.byName {
		out = append(out, list...)
	}
	return out
}
