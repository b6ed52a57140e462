package detect

import "sync"

// State is the per-candidate detection verdict. The zero value means the
// candidate has not been analyzed yet.
type State int

const (
	StateUnknown State = iota
	StateClothing
	StateNonClothing
)

func (s State) String() string {
	switch s {
	case StateClothing:
		return "clothing"
	case StateNonClothing:
		return "non-clothing"
	default:
		return "unknown"
	}
}

// Arena records detection state per candidate identity, decoupled from any
// rendering surface. Incremental passes consult it to skip elements that
// were already decided.
type Arena struct {
	mu sync.RWMutex
	m  map[string]State
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{m: make(map[string]State)}
}

// Get returns the recorded state for an identity.
func (a *Arena) Get(id string) State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.m[id]
}

// Set records the state for an identity.
func (a *Arena) Set(id string, s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m[id] = s
}

// Reset forgets all recorded state.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m = make(map[string]State)
}

// Len returns the number of decided identities.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.m)
}
