package strategy

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the in-memory strategy store spec §1 Non-goals calls for
// ("strategy persistence beyond in-memory registry" is out of scope).
// Grounded on the teacher's repository-style accessors, generalized from a
// Postgres-backed store to a guarded in-memory map since no persistence
// layer is in scope here.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]Schema
	history map[string][]VersionRecord
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Schema), history: make(map[string][]VersionRecord)}
}

// Put inserts or replaces a strategy, assigning an ID if one is not already
// set. Put does not bump the version — use Update for an existing entry.
func (r *Registry) Put(s Schema) (Schema, error) {
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Metadata.ID == "" {
		s.Metadata.ID = uuid.NewString()
	}
	if s.Metadata.Version == "" {
		s.Metadata.Version = "1.0.0"
	}
	if s.Metadata.Status == "" {
		s.Metadata.Status = "draft"
	}
	r.byID[s.Metadata.ID] = s
	return s, nil
}

// Get returns the strategy by ID.
func (r *Registry) Get(id string) (Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return Schema{}, ErrUnknownStrategy
	}
	return s, nil
}

// List returns every registered strategy, in no particular order.
func (r *Registry) List() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Delete removes a strategy by ID. Deleting an unknown ID is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Update replaces an existing strategy's content and bumps its patch
// version, appending a version record, per spec §6 Strategy persistence.
func (r *Registry) Update(id string, mutate func(*Schema)) (Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return Schema{}, ErrUnknownStrategy
	}
	mutate(&s)
	bumped, err := BumpPatch(s.Metadata.Version)
	if err != nil {
		return Schema{}, err
	}
	s.Metadata.Version = bumped
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	r.byID[id] = s
	r.history[id] = append(r.history[id], VersionRecord{
		Version:   s.Metadata.Version,
		Schema:    s,
		CreatedAt: time.Now().UnixMilli(),
	})
	return s, nil
}

// History returns the version records appended by every Update call for id,
// oldest first.
func (r *Registry) History(id string) []VersionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]VersionRecord(nil), r.history[id]...)
}

// Clone duplicates a strategy under a new ID, per spec §6: name suffixed
// "(Copy)", version reset to "1.0.0", status reset to "draft".
func (r *Registry) Clone(id string) (Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.byID[id]
	if !ok {
		return Schema{}, ErrUnknownStrategy
	}
	clone := src
	clone.Metadata.ID = uuid.NewString()
	clone.Metadata.Name = src.Metadata.Name + " (Copy)"
	clone.Metadata.Version = "1.0.0"
	clone.Metadata.Status = "draft"
	r.byID[clone.Metadata.ID] = clone
	return clone, nil
}
