package conversation

import "sync"

// KeepField names a session field preserved across Clear calls.
type KeepField string

const (
	// KeepTenant preserves the tenant the user is signed in to.
	KeepTenant KeepField = "tenant_id"
	// KeepAuth preserves the authenticated flag.
	KeepAuth KeepField = "authenticated"
)

// DefaultKeep is the whitelist used by cancellation and timeout: the user
// stays signed in to their tenant across aborted sub-flows.
var DefaultKeep = []KeepField{KeepTenant, KeepAuth}

// Store holds the active sessions keyed by chat id.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewStore constructs an empty in-memory session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns the session for a chat, creating an idle one on first use.
func (st *Store) Get(id int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := &Session{State: StateIdle}
	st.sessions[id] = s
	return s
}

// Peek returns the session if it exists, without creating one.
func (st *Store) Peek(id int64) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// SetState updates the current state of a chat session.
func (st *Store) SetState(id int64, state State) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		s = &Session{}
		st.sessions[id] = s
	}
	s.State = state
}

// Clear resets a session, preserving only the whitelisted fields that
// were present before the call. An empty keep list drops everything.
func (st *Store) Clear(id int64, keep ...KeepField) {
	st.mu.Lock()
	defer st.mu.Unlock()
	old, ok := st.sessions[id]
	if !ok {
		return
	}
	fresh := &Session{State: old.State}
	for _, k := range keep {
		switch k {
		case KeepTenant:
			fresh.TenantID = old.TenantID
		case KeepAuth:
			fresh.Authenticated = old.Authenticated
		}
	}
	st.sessions[id] = fresh
}

// Destroy removes a session entirely.
func (st *Store) Destroy(id int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Active reports whether the chat has a session outside the idle state.
func (st *Store) Active(id int64) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return ok && s.State != StateIdle
}
