package zcl

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds all known ZCL cluster definitions, including
// manufacturer-specific attribute overlays.
type Registry struct {
	mu       sync.RWMutex
	clusters map[uint16]*ClusterDef
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clusters: make(map[uint16]*ClusterDef),
		logger:   logger,
	}
}

// Register adds a cluster definition to the registry. Registering a cluster
// that already exists merges its attributes. Two definitions for the same
// (manufacturer, cluster, attribute) triple must agree on name and type.
func (r *Registry) Register(c ClusterDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.clusters[c.ID]
	if !ok {
		// Validate the definition against itself before storing it.
		fresh := &ClusterDef{ID: c.ID, Name: c.Name}
		if err := fresh.merge(&c); err != nil {
			return err
		}
		r.clusters[c.ID] = fresh
		r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "name", c.Name)
		return nil
	}

	merged := existing.DeepCopy()
	if err := merged.merge(&c); err != nil {
		return err
	}
	r.clusters[c.ID] = merged
	r.logger.Debug("cluster merged", "id", fmt.Sprintf("0x%04X", c.ID), "name", merged.Name)
	return nil
}

// Get returns a cluster definition by ID, or nil if not found.
// The returned value is a deep copy; callers may modify it safely.
func (r *Registry) Get(id uint16) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[id]
	if c == nil {
		return nil
	}
	return c.DeepCopy()
}

// Lookup resolves an attribute triple. It returns nil if the cluster or the
// attribute is unknown.
func (r *Registry) Lookup(key AttrKey) *AttributeDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.clusters[key.Cluster]
	if c == nil {
		return nil
	}
	attr := c.FindAttribute(key.Manufacturer, key.Attr)
	if attr == nil {
		return nil
	}
	cp := *attr
	return &cp
}

// AttrName returns the registered attribute name, or the hex ID if unknown.
func (r *Registry) AttrName(key AttrKey) string {
	if attr := r.Lookup(key); attr != nil {
		return attr.Name
	}
	return fmt.Sprintf("0x%04X", key.Attr)
}

// All returns all registered cluster definitions sorted by ID.
// Each entry is a deep copy; callers may modify them safely.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]ClusterDef, 0, len(r.clusters))
	for _, c := range r.clusters {
		result = append(result, *c.DeepCopy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
