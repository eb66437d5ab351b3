package session

import (
	"time"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *Session) error

	// Load retrieves a session from storage by ID
	Load(id string, opts ...Option) (*Session, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// PersistedSessionData represents the JSON metadata stored next to a
// session's world file. InitialWorld holds the world Reset returns to.
type PersistedSessionData struct {
	ID             string    `json:"id"`
	WorldName      string    `json:"world_name"`
	State          State     `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	InitialWorld   string    `json:"initial_world,omitempty"`
	LastResult     *Result   `json:"last_result,omitempty"`
}
