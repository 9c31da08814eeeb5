package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
)

type slot struct {
	owner string
	dir   Direction
}

// Manager tracks every in-flight session of one process. At most one session
// exists per (owner, direction): creating another replaces the previous one.
type Manager struct {
	mu        sync.Mutex
	chunkSize int
	clock     Clock
	sessions  map[string]*Session
	active    map[slot]string
}

func NewManager(chunkSize int, clock Clock) *Manager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Manager{
		chunkSize: chunkSize,
		clock:     clock,
		sessions:  make(map[string]*Session),
		active:    make(map[slot]string),
	}
}

// ChunkSize is the size every chunk but the last must have.
func (m *Manager) ChunkSize() int { return m.chunkSize }

// CreateSession registers a session, overwriting one with the same id. A
// different session already active for (owner, dir) is dropped and its id
// returned.
func (m *Manager) CreateSession(id, owner string, dir Direction, totalChunks, totalBytes int, expectedHash string, opts ...SessionOption) (replaced string) {
	now := m.clock.Now()
	s := &Session{
		ID:           id,
		OwnerID:      owner,
		Direction:    dir,
		TotalChunks:  totalChunks,
		TotalBytes:   totalBytes,
		ExpectedHash: expectedHash,
		CreatedAt:    now,
		LastUpdateAt: now,
		chunkSize:    m.chunkSize,
		chunks:       make(map[int][]byte, totalChunks),
	}
	for _, opt := range opts {
		opt(s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[id]; ok {
		m.unlink(old)
	}
	key := slot{owner: owner, dir: dir}
	if prev, ok := m.active[key]; ok && prev != id {
		if old, ok := m.sessions[prev]; ok {
			m.unlink(old)
			replaced = prev
		}
	}

	m.sessions[id] = s
	m.active[key] = id
	return replaced
}

// AddChunk stores data at index, overwriting a previous copy of the same index.
// It reports whether the session is complete afterwards.
func (m *Manager) AddChunk(id string, index int, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, fmt.Errorf("chunk %d for session %s: %w", index, id, common.ErrSessionNotFound)
	}
	if index < 0 || index >= s.TotalChunks {
		return false, fmt.Errorf("chunk index %d outside [0,%d) for session %s: %w", index, s.TotalChunks, id, common.ErrValidation)
	}

	s.chunks[index] = data
	s.LastUpdateAt = m.clock.Now()

	return s.Complete(), nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.snapshot(), true
}

func (m *Manager) IsComplete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	return ok && s.Complete()
}

// Assemble builds the blob of a session that is still registered.
func (m *Manager) Assemble(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("assemble %s: %w", id, common.ErrSessionNotFound)
	}
	return s.Assemble()
}

// Take removes the session and hands it to the caller. Of two racing callers
// exactly one gets ok == true.
func (m *Manager) Take(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	m.unlink(s)
	return s, true
}

func (m *Manager) RemoveSession(id string) bool {
	_, ok := m.Take(id)
	return ok
}

// RemoveOwner drops every session of owner and returns their ids.
func (m *Manager) RemoveOwner(owner string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, dir := range []Direction{Upload, Download} {
		id, ok := m.active[slot{owner: owner, dir: dir}]
		if !ok {
			continue
		}
		if s, ok := m.sessions[id]; ok {
			m.unlink(s)
			ids = append(ids, id)
		}
	}
	return ids
}

// Active returns the session currently open for (owner, dir).
func (m *Manager) Active(owner string, dir Direction) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.active[slot{owner: owner, dir: dir}]
	if !ok {
		return Session{}, false
	}
	return m.sessions[id].snapshot(), true
}

// SweepExpired removes every session whose last update is more than ttl
// before now, complete or not, and returns what it removed.
func (m *Manager) SweepExpired(now time.Time, ttl time.Duration) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []Session
	for _, s := range m.sessions {
		if now.Sub(s.LastUpdateAt) > ttl {
			expired = append(expired, s.snapshot())
			m.unlink(s)
		}
	}
	return expired
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// unlink must be called with mu held.
func (m *Manager) unlink(s *Session) {
	delete(m.sessions, s.ID)
	key := slot{owner: s.OwnerID, dir: s.Direction}
	if m.active[key] == s.ID {
		delete(m.active, key)
	}
}
