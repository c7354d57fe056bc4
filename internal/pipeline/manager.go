package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps live sessions in memory.
type Manager struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a Manager whose sessions share deps.
func NewManager(cfg Config, deps Deps) *Manager {
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new empty session.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.now().UTC(), m.cfg, m.deps)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close cancels in-flight work of a session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	return nil
}

// List summarises every session, oldest first.
func (m *Manager) List() []Stats {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	out := make([]Stats, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Stats())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}
