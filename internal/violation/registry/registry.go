// Package registry holds the versioned table of violation types and their fines.
//
// A Registry is immutable once built. Holder publishes the active registry so
// the validator and handlers can read it while a file watcher swaps in new
// versions.
package registry

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"trafficwatch/internal/violation/models"
)

// DefaultVersion is the version of the built-in table.
const DefaultVersion = "2024-01"

var typePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

// Entry is one violation category.
type Entry struct {
	Type        models.ViolationType `yaml:"type" json:"violation_type"`
	Fine        int64                `yaml:"fine" json:"fine_amount"`
	Description string               `yaml:"description" json:"description,omitempty"`
}

// Registry maps violation types to fines for a single version.
type Registry struct {
	version string
	entries map[models.ViolationType]Entry
}

// file is the YAML layout of a registry file.
type file struct {
	Version    string  `yaml:"version"`
	Violations []Entry `yaml:"violations"`
}

// New builds a registry, rejecting empty versions, malformed type names,
// negative fines and duplicates.
func New(version string, entries []Entry) (*Registry, error) {
	if version == "" {
		return nil, fmt.Errorf("registry version is required")
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("registry %s has no violation types", version)
	}
	r := &Registry{version: version, entries: make(map[models.ViolationType]Entry, len(entries))}
	for _, e := range entries {
		if !typePattern.MatchString(string(e.Type)) {
			return nil, fmt.Errorf("registry %s: invalid violation type %q", version, e.Type)
		}
		if e.Fine < 0 {
			return nil, fmt.Errorf("registry %s: fine for %s must not be negative", version, e.Type)
		}
		if _, dup := r.entries[e.Type]; dup {
			return nil, fmt.Errorf("registry %s: duplicate violation type %s", version, e.Type)
		}
		r.entries[e.Type] = e
	}
	return r, nil
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := New(DefaultVersion, []Entry{
		{Type: "no_helmet", Fine: 1000, Description: "Riding a two-wheeler without a helmet"},
		{Type: "signal_jump", Fine: 5000, Description: "Crossing a red signal"},
		{Type: "wrong_lane", Fine: 500, Description: "Driving in a lane reserved for other traffic"},
		{Type: "speeding", Fine: 2000, Description: "Exceeding the posted speed limit"},
		{Type: "triple_riding", Fine: 1000, Description: "More than two riders on a two-wheeler"},
		{Type: "no_seatbelt", Fine: 1000, Description: "Driver or front passenger without a seatbelt"},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// Load reads a registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: parse yaml: %w", err)
	}
	return New(f.Version, f.Violations)
}

func (r *Registry) Version() string {
	return r.version
}

// Lookup returns the fine for t and whether t is registered.
func (r *Registry) Lookup(t models.ViolationType) (int64, bool) {
	e, ok := r.entries[t]
	return e.Fine, ok
}

// Entries returns all entries ordered by type name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Holder publishes the active registry for concurrent readers.
type Holder struct {
	current atomic.Pointer[Registry]
}

// NewHolder returns a holder seeded with r.
func NewHolder(r *Registry) *Holder {
	h := &Holder{}
	h.current.Store(r)
	return h
}

// Current returns the active registry.
func (h *Holder) Current() *Registry {
	return h.current.Load()
}

// Swap replaces the active registry and returns the previous one.
func (h *Holder) Swap(r *Registry) *Registry {
	return h.current.Swap(r)
}
