package library

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wricardo/karel/game/engine"
)

var (
	ErrWorldNotFound = errors.New("world not found")
	ErrInvalidWorld  = errors.New("invalid world")
	ErrInvalidName   = errors.New("invalid world name")
)

const (
	// Ext is the world file extension.
	Ext = ".w"
	// DefaultWorldName is the world used when none is requested.
	DefaultWorldName = "default"
	// builtinSize is the side of the world used when the library is empty.
	builtinSize = 10
)

// WorldInfo summarises a world file
type WorldInfo struct {
	Filename        string `json:"filename"`
	WorldID         string `json:"world_id"` // The identifier to use for session creation
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Walls           int    `json:"walls"`
	Beepers         int    `json:"beepers"`
	InfiniteBeepers bool   `json:"infinite_beepers,omitempty"`
	Robots          int    `json:"robots"`
}

// Summarize builds the WorldInfo of w.
func Summarize(id string, w *engine.World) *WorldInfo {
	total, infinite := w.TotalBeepers()
	return &WorldInfo{
		Filename:        id + Ext,
		WorldID:         id,
		Width:           w.Width(),
		Height:          w.Height(),
		Walls:           len(w.Walls()),
		Beepers:         total,
		InfiniteBeepers: infinite,
		Robots:          len(w.Robots()),
	}
}

// Library loads and caches the world files of a directory. Worlds handed out
// are copies, so callers may run programs on them freely.
type Library struct {
	dir          string
	defaultID    string
	defaultWorld *engine.World
	worlds       map[string]*engine.World
	logger       *zap.Logger
	mu           sync.RWMutex
}

// New creates a library over dir, which must exist.
func New(dir string, logger *zap.Logger) (*Library, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("world directory does not exist: %s", dir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Library{
		dir:    dir,
		worlds: make(map[string]*engine.World),
		logger: logger,
	}
	l.loadDefaultWorld()
	return l, nil
}

// Dir returns the library directory.
func (l *Library) Dir() string { return l.dir }

func validName(name string) (string, error) {
	name = strings.TrimSuffix(name, Ext)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// Load returns a copy of the named world. The name may carry the .w
// extension.
func (l *Library) Load(name string) (*engine.World, error) {
	w, err := l.cached(name)
	if err != nil {
		return nil, err
	}
	return w.Clone(), nil
}

// cached returns the shared cached world, reading it on first use.
func (l *Library) cached(name string) (*engine.World, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	if w, exists := l.worlds[name]; exists {
		l.mu.RUnlock()
		return w, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, exists := l.worlds[name]; exists {
		return w, nil
	}

	data, err := os.ReadFile(filepath.Join(l.dir, name+Ext))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrWorldNotFound, name)
		}
		return nil, fmt.Errorf("failed to read world file: %w", err)
	}
	w, err := engine.Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidWorld, name, err)
	}

	l.worlds[name] = w
	return w, nil
}

// Text returns the named world in world-file format.
func (l *Library) Text(name string) (string, error) {
	w, err := l.cached(name)
	if err != nil {
		return "", err
	}
	return w.Text(), nil
}

// Exists reports whether the named world file is present.
func (l *Library) Exists(name string) bool {
	name, err := validName(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(l.dir, name+Ext))
	return err == nil
}

// List returns information about every valid world in the directory, sorted
// by ID. Invalid files are skipped and logged.
func (l *Library) List() ([]*WorldInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read world directory: %w", err)
	}

	var worlds []*WorldInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Ext) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), Ext)
		w, err := l.cached(id)
		if err != nil {
			l.logger.Warn("skipping world file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		worlds = append(worlds, Summarize(id, w))
	}
	sort.Slice(worlds, func(i, j int) bool { return worlds[i].WorldID < worlds[j].WorldID })
	return worlds, nil
}

// Default returns a copy of the default world and its ID.
func (l *Library) Default() (*engine.World, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.defaultWorld.Clone(), l.defaultID
}

// SetDefault makes the named world the default.
func (l *Library) SetDefault(name string) error {
	w, err := l.cached(name)
	if err != nil {
		return err
	}
	id, _ := validName(name)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaultWorld = w
	l.defaultID = id
	return nil
}

// RefreshCache drops every cached world and reloads the default.
func (l *Library) RefreshCache() {
	l.mu.Lock()
	l.worlds = make(map[string]*engine.World)
	l.mu.Unlock()
	l.loadDefaultWorld()
}

// loadDefaultWorld picks default.w, else the first world listed, else an
// empty built-in world.
func (l *Library) loadDefaultWorld() {
	if err := l.SetDefault(DefaultWorldName); err == nil {
		return
	}
	if worlds, err := l.List(); err == nil && len(worlds) > 0 {
		if err := l.SetDefault(worlds[0].WorldID); err == nil {
			return
		}
	}

	w, _ := engine.NewWorld(builtinSize, builtinSize)
	l.mu.Lock()
	l.defaultWorld = w
	l.defaultID = DefaultWorldName
	l.mu.Unlock()
}

// Save writes w to the library under name and refreshes the cache.
func (l *Library) Save(name string, w *engine.World) error {
	name, err := validName(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(l.dir, name+Ext), []byte(w.Text()), 0644); err != nil {
		return fmt.Errorf("failed to write world file: %w", err)
	}

	l.mu.Lock()
	l.worlds[name] = w.Clone()
	l.mu.Unlock()
	l.logger.Info("world saved", zap.String("world", name))
	return nil
}

// SaveText validates a world file and saves it under name.
func (l *Library) SaveText(name, text string) error {
	w, err := engine.LoadString(text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorld, err)
	}
	return l.Save(name, w)
}
