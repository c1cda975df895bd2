// Package resourcemgr implements the resource-manager registration contract
// genericxlog exposes: a {redo, desc, identify} triple keyed
// by resource-manager id, plus a small registry so more than one resource
// manager could in principle be registered (here, just "Generic"). Modeled
// on PostgreSQL's genericdesc.c, whose generic_desc is a no-op and
// generic_identify returns the constant string "Generic".
package resourcemgr

import (
	"fmt"

	"pageengine/genericxlog"
	"pageengine/storage/bufmgr"
	"pageengine/storage/page"
	"pageengine/storage/walio"
)

// RedoFunc replays one WAL record's block references against live buffers.
// recordLSN is the LSN the record was assigned on insertion; implementations
// should skip any block whose page is already at or past it, making redo
// idempotent across repeated replays of the same log.
type RedoFunc func(mgr *bufmgr.Manager, record *walio.Record, recordLSN page.LSN) error

// DescFunc renders a short human-readable summary of a record, for WAL
// dump tooling. The generic resource manager's is a no-op, matching
// genericdesc.c's generic_desc.
type DescFunc func(record *walio.Record) string

// IdentifyFunc maps a record's info byte to a constant name.
type IdentifyFunc func(info uint8) string

type entry struct {
	redo     RedoFunc
	desc     DescFunc
	identify IdentifyFunc
}

// Registry maps resource-manager ids to their {redo, desc, identify} triple.
type Registry struct {
	entries map[uint8]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint8]entry)}
}

// Register installs the triple for resourceManagerID. Registering the same
// id twice is a programmer error.
func (r *Registry) Register(resourceManagerID uint8, redo RedoFunc, desc DescFunc, identify IdentifyFunc) error {
	if _, exists := r.entries[resourceManagerID]; exists {
		return fmt.Errorf("resourcemgr: id %d already registered", resourceManagerID)
	}
	r.entries[resourceManagerID] = entry{redo: redo, desc: desc, identify: identify}
	return nil
}

// Redo looks up and invokes the redo function for record's resource manager,
// passing along the LSN the record was assigned on insertion so the redo
// function can skip pages already at or past it.
func (r *Registry) Redo(mgr *bufmgr.Manager, record *walio.Record) error {
	e, ok := r.entries[record.ResourceManagerID]
	if !ok {
		return fmt.Errorf("resourcemgr: no resource manager registered for id %d", record.ResourceManagerID)
	}
	return e.redo(mgr, record, record.LSN)
}

// Desc renders record's description, or "" if its resource manager has none
// registered (should not happen for a record produced by this module).
func (r *Registry) Desc(record *walio.Record) string {
	if e, ok := r.entries[record.ResourceManagerID]; ok {
		return e.desc(record)
	}
	return ""
}

// Identify returns the constant name for resourceManagerID's info byte.
func (r *Registry) Identify(resourceManagerID uint8, info uint8) string {
	if e, ok := r.entries[resourceManagerID]; ok {
		return e.identify(info)
	}
	return "Unknown"
}

// NewDefaultRegistry returns a registry with the generic XLOG resource
// manager already registered under genericxlog.ResourceManagerID.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(genericxlog.ResourceManagerID, genericRedo, genericDesc, genericIdentify)
	return r
}
