package ledger

import "sync"

// Registry keeps one ledger per operator terminal.
type Registry struct {
	mu      sync.Mutex
	ledgers map[string]*Ledger
}

func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[string]*Ledger)}
}

// Get returns the ledger for key, creating it on first use.
func (r *Registry) Get(key string) *Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[key]
	if !ok {
		l = New()
		r.ledgers[key] = l
	}
	return l
}

// Find returns the ledger that owns orderID, if any terminal has it loaded.
func (r *Registry) Find(orderID string) (*Ledger, bool) {
	r.mu.Lock()
	all := make([]*Ledger, 0, len(r.ledgers))
	for _, l := range r.ledgers {
		all = append(all, l)
	}
	r.mu.Unlock()

	for _, l := range all {
		if _, ok := l.Order(orderID); ok {
			return l, true
		}
	}
	return nil, false
}
