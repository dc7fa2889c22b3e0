package queue

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry keeps repeatable job definitions in memory, for tests and
// single-process setups without Redis
type MemoryRegistry struct {
	mu   sync.RWMutex
	defs map[string]*JobDef
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{defs: make(map[string]*JobDef)}
}

// Put stores or replaces a definition
func (r *MemoryRegistry) Put(ctx context.Context, def *JobDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *def
	r.defs[def.Key] = &stored
	return nil
}

// Delete removes a definition by key
func (r *MemoryRegistry) Delete(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[key]; !ok {
		return false, nil
	}
	delete(r.defs, key)
	return true, nil
}

// List returns every definition sorted by key
func (r *MemoryRegistry) List(ctx context.Context) ([]*JobDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*JobDef, 0, len(r.defs))
	for _, def := range r.defs {
		clone := *def
		defs = append(defs, &clone)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	return defs, nil
}

// Due returns the definitions due at or before nowMs
func (r *MemoryRegistry) Due(ctx context.Context, nowMs int64) ([]*JobDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	due := make([]*JobDef, 0)
	for _, def := range r.defs {
		if def.NextAtMs > 0 && def.NextAtMs <= nowMs {
			clone := *def
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAtMs < due[j].NextAtMs })
	return due, nil
}

// SetNext advances the next fire time of one definition
func (r *MemoryRegistry) SetNext(ctx context.Context, key string, nextMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.defs[key]; ok {
		def.NextAtMs = nextMs
	}
	return nil
}
