package usecase

import (
	"sync"

	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"
)

// SessionStore holds live scan sessions. The registry is injected so the
// lifecycle is explicit; the default is an in-process map, a shared cache
// can stand in for multi-instance deployments.
type SessionStore interface {
	Put(session *scandomain.ScanSession)
	Get(id string) (*scandomain.ScanSession, bool)
	// Cancel requests cooperative cancellation. Returns false when no such
	// session exists or it already reached a terminal status.
	Cancel(id string) bool
	// Delete evicts a session; terminal sessions live on in the history
	// table only.
	Delete(id string)
	ListByAccountID(accountID string) []*scandomain.ScanSession
}

type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*scandomain.ScanSession
}

// NewMemorySessionStore creates a new in-process session store
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]*scandomain.ScanSession),
	}
}

func (s *memorySessionStore) Put(session *scandomain.ScanSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

func (s *memorySessionStore) Get(id string) (*scandomain.ScanSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *memorySessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *memorySessionStore) Cancel(id string) bool {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return session.Cancel()
}

func (s *memorySessionStore) ListByAccountID(accountID string) []*scandomain.ScanSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*scandomain.ScanSession
	for _, session := range s.sessions {
		if session.AccountID == accountID {
			out = append(out, session)
		}
	}
	return out
}
