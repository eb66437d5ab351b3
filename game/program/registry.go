package program

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds programs by case-insensitive name. Programs are registered
// explicitly; nothing is discovered at run time.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]Program
}

// NewRegistry returns a registry preloaded with progs.
func NewRegistry(progs ...Program) (*Registry, error) {
	r := &Registry{programs: make(map[string]Program)}
	for _, p := range progs {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p. Registering a second program under the same name fails.
func (r *Registry) Register(p Program) error {
	name := strings.TrimSpace(p.Info().Name)
	if name == "" {
		return fmt.Errorf("register: program has no name")
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.programs[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProgram, name)
	}
	r.programs[key] = p
	return nil
}

// Get returns the program registered under name.
func (r *Registry) Get(name string) (Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	return p, nil
}

// List returns the info of every program sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.programs))
	for _, p := range r.programs {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered programs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}
