package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// Manager handles session lifecycle
type Manager struct {
	sessions    map[string]*Session
	persistence SessionPersistence
	options     []Option
	logger      *zap.Logger
	mu          sync.RWMutex
}

// NewManager creates a new in-memory session manager. opts apply to every
// session the manager creates or loads.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	return NewManagerWithPersistence(nil, logger, opts...)
}

// NewManagerWithPersistence creates a new session manager with persistence
func NewManagerWithPersistence(persistence SessionPersistence, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		persistence: persistence,
		options:     opts,
		logger:      logger,
	}
}

// Create creates a new idle session. An empty id is replaced by a generated
// one.
func (m *Manager) Create(id string) (*Session, error) {
	if strings.ContainsAny(id, `/\. `) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.generateSessionID()
	}
	if _, exists := m.sessions[strings.ToLower(id)]; exists {
		return nil, ErrSessionAlreadyExists
	}

	session := New(id, m.options...)
	m.sessions[strings.ToLower(id)] = session
	m.persist(session)
	return session, nil
}

// Get retrieves a session by ID (case-insensitive), loading it from
// persistence if it is not in memory.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[strings.ToLower(id)]
	m.mu.RUnlock()
	if exists {
		return session, nil
	}

	if m.persistence != nil && m.persistence.Exists(id) {
		session, err := m.persistence.Load(id, m.options...)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted session: %w", err)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if cached, ok := m.sessions[strings.ToLower(id)]; ok {
			return cached, nil
		}
		m.sessions[strings.ToLower(id)] = session
		return session, nil
	}

	return nil, ErrSessionNotFound
}

// GetOrCreate gets an existing session or creates a new one
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	session, err := m.Get(id)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id)
	}
	return nil, err
}

// List returns all sessions in memory, oldest first
func (m *Manager) List() []*Session {
	m.mu.RLock()
	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Delete removes a session from memory and persistence
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lowerID := strings.ToLower(id)
	session, inMemory := m.sessions[lowerID]
	if inMemory {
		_ = session.Cancel()
		delete(m.sessions, lowerID)
	}

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}

	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory removes a session from memory only (not from persistence)
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lowerID := strings.ToLower(id)
	if _, exists := m.sessions[lowerID]; !exists {
		return ErrSessionNotFound
	}
	delete(m.sessions, lowerID)
	return nil
}

// UpdateLastAccessed updates the last accessed time for a session
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.RLock()
	session, exists := m.sessions[strings.ToLower(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}

	session.Touch()
	m.persist(session)
	return nil
}

// Save saves a specific session to persistence
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	session, exists := m.sessions[strings.ToLower(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}
	return m.persistence.Save(session)
}

// CleanupExpiredSessions removes idle sessions that haven't been accessed in
// the given duration. Running sessions are kept.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, session := range m.sessions {
		if session.State() == StateRunning {
			continue
		}
		if session.LastAccessed().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("expired sessions removed", zap.Int("count", removed))
	}
	return removed
}

// Count returns the number of sessions in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// generateSessionID generates a random, unused 4-character session ID.
// Callers hold mu.
func (m *Manager) generateSessionID() string {
	bytes := make([]byte, 2)
	for {
		rand.Read(bytes)
		id := hex.EncodeToString(bytes)
		if _, taken := m.sessions[id]; !taken {
			return id
		}
	}
}

// persist auto-saves a session. Failures are logged, not returned.
func (m *Manager) persist(session *Session) {
	if m.persistence == nil {
		return
	}
	if err := m.persistence.Save(session); err != nil {
		m.logger.Warn("failed to persist session",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}

// LoadPersistedSessions loads all persisted sessions into memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	sessionIDs, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loadedCount := 0
	for _, id := range sessionIDs {
		if _, exists := m.sessions[strings.ToLower(id)]; exists {
			continue
		}

		session, err := m.persistence.Load(id, m.options...)
		if err != nil {
			m.logger.Warn("failed to load persisted session",
				zap.String("session_id", id),
				zap.Error(err),
			)
			continue
		}

		m.sessions[strings.ToLower(id)] = session
		loadedCount++
	}

	if loadedCount > 0 {
		m.logger.Info("loaded persisted sessions", zap.Int("count", loadedCount))
	}
	return nil
}

// SaveAllSessions saves all in-memory sessions to persistence
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	sessions := m.List()
	errorCount := 0
	for _, session := range sessions {
		if err := m.persistence.Save(session); err != nil {
			m.logger.Warn("failed to save session",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to save %d sessions", errorCount)
	}
	return nil
}
