package format

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Static errors for registry operations.
var (
	// ErrFormatNotFound is returned when a format ID is not registered.
	ErrFormatNotFound = errors.New("format: not found")
	// ErrFormatIDRequired is returned when registering metadata without an ID.
	ErrFormatIDRequired = errors.New("format: ID is required")
	// ErrAlreadyRegistered is returned when registering a duplicate format ID.
	ErrAlreadyRegistered = errors.New("format: already registered")
)

// Registry is the process-wide catalog of output formats.
// It is populated once at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	formats map[string]*Metadata
	order   []string
}

// NewRegistry creates an empty format registry.
func NewRegistry() *Registry {
	return &Registry{
		formats: make(map[string]*Metadata),
	}
}

// NewDefaultRegistry creates a registry populated with the built-in catalog.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, m := range defaultCatalog() {
		// Built-in catalog IDs are unique, registration cannot fail.
		_ = r.Register(m)
	}
	return r
}

// Register adds a format to the registry.
// Returns ErrAlreadyRegistered if the ID is already present.
func (r *Registry) Register(m Metadata) error {
	if m.ID == "" {
		return ErrFormatIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.formats[m.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.ID)
	}

	stored := m
	r.formats[m.ID] = &stored
	r.order = append(r.order, m.ID)
	return nil
}

// Get returns the metadata for a format ID, or nil if unknown.
func (r *Registry) Get(id string) *Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.formats[id]
	if !ok {
		return nil
	}
	clone := *m
	return &clone
}

// All returns every registered format in registration order.
func (r *Registry) All() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Metadata, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, *r.formats[id])
	}
	return result
}

// IsValid returns true if the format ID is registered.
func (r *Registry) IsValid(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.formats[id]
	return ok
}

// GenresFor returns the applicable genres for a format, exactly as registered:
// same elements, same order, no additions or omissions.
// Unknown IDs yield an empty list.
func (r *Registry) GenresFor(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.formats[id]
	if !ok {
		return []string{}
	}
	genres := make([]string, len(m.ApplicableGenres))
	copy(genres, m.ApplicableGenres)
	return genres
}

// PlaceholderFor returns the idea-input placeholder text for a format.
// Unknown IDs yield an empty string.
func (r *Registry) PlaceholderFor(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.formats[id]
	if !ok {
		return ""
	}
	return m.Placeholder
}

// Deprecate flags a format as deprecated with an optional message.
// Deprecated formats remain routable.
func (r *Registry) Deprecate(id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.formats[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFormatNotFound, id)
	}
	m.Deprecated = true
	m.DeprecationMessage = message
	return nil
}

// catalogFile is the on-disk shape of a YAML format catalog.
type catalogFile struct {
	Formats []Metadata `yaml:"formats"`
}

// LoadCatalog reads additional formats from a YAML file and registers them.
// Entries whose ID is already registered replace the built-in metadata,
// allowing operators to tune limits without a rebuild.
func (r *Registry) LoadCatalog(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return fmt.Errorf("format: read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("format: parse catalog: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range file.Formats {
		m := file.Formats[i]
		if m.ID == "" {
			return ErrFormatIDRequired
		}
		if _, ok := r.formats[m.ID]; !ok {
			r.order = append(r.order, m.ID)
		}
		stored := m
		r.formats[m.ID] = &stored
	}
	return nil
}
