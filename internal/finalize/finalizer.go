package finalize

import (
	"sync"

	"github.com/veezhang/sgengo/internal/obj"
)

// FinEntry is a singly-linked finalize-registration node (spec §3
// "Finalize-ready entry"). The list is split into ordinary and critical
// (objects whose class inherits a critical-finalizer marker class) per
// spec §3.
type FinEntry struct {
	Obj  obj.Addr
	next *FinEntry
}

// FinLists owns the ordinary and critical finalize-registration lists and
// the fin-ready lists finalized objects are moved to once they become
// unreachable.
type FinLists struct {
	mu sync.Mutex

	ordinaryRegistered *FinEntry
	criticalRegistered *FinEntry

	ordinaryReady *FinEntry
	criticalReady *FinEntry

	// staged holds registrations made while a collection is in progress;
	// merged at the start of the next collection (spec §4.12).
	staged []stagedReg
}

type stagedReg struct {
	obj      obj.Addr
	critical bool
}

// Register records obj as finalizable. If a collection is currently in
// progress, the registration is staged (spec §4.12 "Registrations made
// while a collection is in progress are staged").
func (f *FinLists) Register(o obj.Addr, critical, collectionInProgress bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if collectionInProgress {
		f.staged = append(f.staged, stagedReg{obj: o, critical: critical})
		return
	}
	f.insertLocked(o, critical)
}

func (f *FinLists) insertLocked(o obj.Addr, critical bool) {
	e := &FinEntry{Obj: o}
	if critical {
		e.next = f.criticalRegistered
		f.criticalRegistered = e
	} else {
		e.next = f.ordinaryRegistered
		f.ordinaryRegistered = e
	}
}

// MergeStaged merges staged registrations into the live lists; called at
// the start of a collection cycle (spec §4.8 step 4).
func (f *FinLists) MergeStaged() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.staged {
		f.insertLocked(s.obj, s.critical)
	}
	f.staged = f.staged[:0]
}

// PromoteUnreachable walks both registered lists, promoting (keeping
// alive) any object that is not yet reachable and moving it to the
// fin-ready list, repeated by the caller "until no new fin-ready entries
// appear" (spec §4.9 step 6). promote marks/copies the object so it
// survives this collection despite being otherwise unreachable. Returns
// whether any entry moved to fin-ready this call.
func (f *FinLists) PromoteUnreachable(isReachable func(obj.Addr) bool, promote func(obj.Addr)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	moved := false
	f.ordinaryRegistered, f.ordinaryReady, moved = sweepOne(f.ordinaryRegistered, f.ordinaryReady, isReachable, promote, moved)
	f.criticalRegistered, f.criticalReady, moved = sweepOne(f.criticalRegistered, f.criticalReady, isReachable, promote, moved)
	return moved
}

func sweepOne(registered, ready *FinEntry, isReachable func(obj.Addr) bool, promote func(obj.Addr), moved bool) (*FinEntry, *FinEntry, bool) {
	var keep *FinEntry
	for e := registered; e != nil; {
		next := e.next
		if isReachable(e.Obj) {
			e.next = keep
			keep = e
		} else {
			promote(e.Obj)
			e.next = ready
			ready = e
			moved = true
		}
		e = next
	}
	return keep, ready, moved
}

// DrainReady removes ready entries one at a time and hands each to the
// caller (the finalizer thread) until both ready lists are empty. Each
// entry is unlinked under FinLists' own mutex before run is called for
// it, so a finalizer can never run twice for the same registration (spec
// §8 invariant 7); the driver's GC lock is not taken.
func (f *FinLists) DrainReady(run func(o obj.Addr, critical bool)) {
	for {
		f.mu.Lock()
		var e *FinEntry
		critical := false
		if f.ordinaryReady != nil {
			e, f.ordinaryReady = f.ordinaryReady, f.ordinaryReady.next
		} else if f.criticalReady != nil {
			e, f.criticalReady = f.criticalReady, f.criticalReady.next
			critical = true
		}
		f.mu.Unlock()
		if e == nil {
			return
		}
		run(e.Obj, critical)
	}
}

// HasReady reports whether any entry is ready to run, used to decide
// whether to notify the finalizer thread (spec §4.8 step 11).
func (f *FinLists) HasReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ordinaryReady != nil || f.criticalReady != nil
}
