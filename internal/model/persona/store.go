package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Store exposes persona retrieval for HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the configured assistants.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// file 是助手配置文件的顶层结构。
type file struct {
	Assistants []Persona `yaml:"assistants" toml:"assistants"`
}

// LoadFile 从 YAML（.yaml/.yml）或 TOML（.toml）文件读取助手列表。
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assistants file: %w", err)
	}

	var f file
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported assistants file extension %q", ext)
	}

	seen := make(map[string]struct{}, len(f.Assistants))
	for i := range f.Assistants {
		a := &f.Assistants[i]
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return nil, fmt.Errorf("assistant #%d: id is required", i+1)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("assistant %q: duplicate id", a.ID)
		}
		seen[a.ID] = struct{}{}

		if a.Name == "" {
			a.Name = "chobits"
		}
		if a.Kind == "" {
			a.Kind = KindSub
		}
		if a.Provider == "" {
			a.Provider = ProviderGemini
		}
	}
	return f.Assistants, nil
}
