package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wricardo/karel/game/program"
)

// ManifestFile is the name of the program manifest inside a programs
// directory.
const ManifestFile = "manifest.yaml"

// yamlManifest is the top-level YAML structure of a program manifest.
type yamlManifest struct {
	OpcodeLimit int           `yaml:"opcode_limit"`
	Programs    []yamlProgram `yaml:"programs"`
}

// yamlProgram is the YAML representation of one Lua program.
type yamlProgram struct {
	Name        string `yaml:"name"`
	File        string `yaml:"file"`
	Kind        string `yaml:"kind"`
	World       string `yaml:"world"`
	Description string `yaml:"description"`
	OpcodeLimit int    `yaml:"opcode_limit"`
}

// LoadManifestFromBytes parses a manifest and reads each listed script
// relative to dir.
//
// Precondition: data must be valid YAML conforming to the manifest schema.
// Postcondition: Returns every listed script or the first error encountered.
func LoadManifestFromBytes(data []byte, dir string, defaultOpcodeLimit int) ([]*Script, error) {
	var m yamlManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing program manifest: %w", err)
	}
	if m.OpcodeLimit > 0 {
		defaultOpcodeLimit = m.OpcodeLimit
	}

	seen := make(map[string]bool)
	scripts := make([]*Script, 0, len(m.Programs))
	for i, p := range m.Programs {
		if p.Name == "" || p.File == "" {
			return nil, fmt.Errorf("manifest entry %d: name and file are required", i)
		}
		key := strings.ToLower(p.Name)
		if seen[key] {
			return nil, fmt.Errorf("manifest entry %d: duplicate program %q", i, p.Name)
		}
		seen[key] = true

		kind, err := program.ParseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", p.Name, err)
		}
		src, err := os.ReadFile(filepath.Join(dir, p.File))
		if err != nil {
			return nil, fmt.Errorf("reading script %s: %w", p.File, err)
		}
		limit := defaultOpcodeLimit
		if p.OpcodeLimit > 0 {
			limit = p.OpcodeLimit
		}
		s := New(p.Name, kind, string(src)).
			WithWorld(p.World).
			WithDescription(p.Description).
			WithOpcodeLimit(limit)
		if err := s.Check(); err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// LoadDir loads the Lua programs in dir. When dir holds a manifest.yaml it
// lists the programs; otherwise every *.lua file becomes a SuperKarel program
// named after the file.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns the loaded scripts sorted as listed (manifest) or by
// file name, or the first error encountered.
func LoadDir(dir string, defaultOpcodeLimit int) ([]*Script, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	switch {
	case err == nil:
		return LoadManifestFromBytes(data, dir, defaultOpcodeLimit)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading program manifest: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading program dir %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	scripts := make([]*Script, 0, len(files))
	for _, name := range files {
		src, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading script %s: %w", name, err)
		}
		s := New(strings.TrimSuffix(name, ".lua"), program.KindSuperKarel, string(src)).
			WithOpcodeLimit(defaultOpcodeLimit)
		if err := s.Check(); err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// Register adds every script to reg.
func Register(reg *program.Registry, scripts []*Script) error {
	for _, s := range scripts {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}
