package game

import (
	"sync"

	"github.com/quizlive/quizlive/internal/models"
)

// Binding ties a transient connection to a stable participant identity
// within one session. Game-state lookups always key off the identity, never
// the connection handle, so reconnection is a pure rebind.
type Binding struct {
	JoinCode string
	Identity models.Identity
	IsHost   bool
}

// Binder maps connection ids to bindings. It survives reconnects: a rejoin
// binds the participant's identity to the new connection id and the old id
// simply goes stale until its disconnect arrives.
type Binder struct {
	mu     sync.RWMutex
	byConn map[string]Binding
}

func NewBinder() *Binder {
	return &Binder{byConn: make(map[string]Binding)}
}

// Bind associates a connection with a session-scoped identity, replacing any
// previous binding for that connection.
func (b *Binder) Bind(connID string, binding Binding) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byConn[connID] = binding
}

// Lookup resolves the binding for a connection.
func (b *Binder) Lookup(connID string) (Binding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	binding, ok := b.byConn[connID]
	return binding, ok
}

// Unbind drops a connection's binding. Idempotent.
func (b *Binder) Unbind(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byConn, connID)
}
