// Package roots implements the three root tables of spec §4.3: normal
// (precise), pinned (conservative), and wbarrier (precise, tracked by the
// write barrier). Each table is an arena-backed map keyed by root start
// address, per the design note on cyclic references — root records never
// hold owning pointers into the managed heap, only addresses looked up
// through the table.
package roots

import (
	"sync"

	"github.com/veezhang/sgengo/internal/obj"
)

// Kind selects which of the three disjoint tables a record lives in.
type Kind uint8

const (
	Normal Kind = iota
	Pinned
	WBarrier
	numKinds
)

// Record is one registered root range [Start, Start+Size).
type Record struct {
	Start obj.Addr
	Size  uintptr
	Descr obj.Descriptor // unused (zero value) for Pinned records
}

func (r Record) End() obj.Addr { return r.Start.Add(r.Size) }

// Registry owns the three tables (spec §3 "Three disjoint tables").
type Registry struct {
	mu     sync.Mutex
	tables [numKinds]map[obj.Addr]Record
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.tables {
		r.tables[i] = make(map[obj.Addr]Record)
	}
	return r
}

// Register adds or replaces the record at start (spec §4.3: "replaces any
// existing entry with the same start" — used by thread-local roots whose
// size/descriptor changes across a thread's lifetime).
func (r *Registry) Register(kind Kind, start obj.Addr, size uintptr, descr obj.Descriptor) {
	r.mu.Lock()
	r.tables[kind][start] = Record{Start: start, Size: size, Descr: descr}
	r.mu.Unlock()
}

// Deregister searches all three kinds for start and removes it, returning
// whether a record was found (spec §4.3: "deregister(start) searches all
// kinds").
func (r *Registry) Deregister(start obj.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for k := range r.tables {
		if _, ok := r.tables[k][start]; ok {
			delete(r.tables[k], start)
			found = true
		}
	}
	return found
}

// Snapshot returns a stable copy of kind's records for the duration of a
// scan; STW guarantees no concurrent registration during the copy.
func (r *Registry) Snapshot(kind Kind) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.tables[kind]))
	for _, rec := range r.tables[kind] {
		out = append(out, rec)
	}
	return out
}
