package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/karel/game/engine"
)

// FilePersistence implements SessionPersistence using file system storage.
// Each session is two files: <id>.json with its metadata and <id>.w with the
// current world.
type FilePersistence struct {
	sessionsDir string
}

// NewFilePersistence creates a new file-based session persistence layer
func NewFilePersistence(sessionsDir string) (*FilePersistence, error) {
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &FilePersistence{sessionsDir: sessionsDir}, nil
}

// Save persists a session's metadata and world
func (fp *FilePersistence) Save(session *Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	data, current := session.persisted()

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	worldPath := fp.worldPath(session.ID)
	if current != "" {
		if err := os.WriteFile(worldPath, []byte(current), 0644); err != nil {
			return fmt.Errorf("failed to write session world: %w", err)
		}
	} else if err := os.Remove(worldPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale session world: %w", err)
	}

	if err := os.WriteFile(fp.metaPath(session.ID), jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load rebuilds a session from its files
func (fp *FilePersistence) Load(id string, opts ...Option) (*Session, error) {
	jsonData, err := os.ReadFile(fp.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var data PersistedSessionData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	var snapshot, current *engine.World
	if data.InitialWorld != "" {
		snapshot, err = engine.LoadString(data.InitialWorld)
		if err != nil {
			return nil, fmt.Errorf("failed to parse initial world of session %s: %w", id, err)
		}
		f, err := os.Open(fp.worldPath(id))
		switch {
		case err == nil:
			current, err = engine.Load(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to parse world of session %s: %w", id, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to open session world: %w", err)
		}
	}

	session := New(data.ID, opts...)
	session.CreatedAt = data.CreatedAt
	session.LastAccessedAt = data.LastAccessedAt
	session.restore(data.WorldName, current, snapshot, data.State, data.LastResult)
	return session, nil
}

// Delete removes a session's files
func (fp *FilePersistence) Delete(id string) error {
	if !fp.Exists(id) {
		return ErrSessionNotFound
	}
	if err := os.Remove(fp.metaPath(id)); err != nil {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	if err := os.Remove(fp.worldPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session world: %w", err)
	}
	return nil
}

// ListAll returns all persisted session IDs
func (fp *FilePersistence) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fp.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessionIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			sessionIDs = append(sessionIDs, strings.TrimSuffix(name, ".json"))
		}
	}
	return sessionIDs, nil
}

// Exists checks if a session file exists
func (fp *FilePersistence) Exists(id string) bool {
	_, err := os.Stat(fp.metaPath(id))
	return err == nil
}

func (fp *FilePersistence) metaPath(id string) string {
	return filepath.Join(fp.sessionsDir, id+".json")
}

func (fp *FilePersistence) worldPath(id string) string {
	return filepath.Join(fp.sessionsDir, id+".w")
}
