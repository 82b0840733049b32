package major

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/veezhang/sgengo/internal/heap"
	"github.com/veezhang/sgengo/internal/obj"
)

// MarkSweep is the reference old-generation backend (spec §6
// major=marksweep): a simple free-list allocator over one or more
// sections, with in-place mark bits rather than a moving heap. It is the
// grounding for the mheap/mfixalloc-style "allocate a block, track
// free/used" pattern the teacher's malloc.go and mheap.go implement, cut
// down to what the collector core actually depends on through Backend.
type MarkSweep struct {
	mu       sync.Mutex
	classes  obj.ClassInfo
	sections []*heap.Section
	bump     obj.Addr // next free byte in the current section
	marked   map[obj.Addr]bool
	pinned   map[obj.Addr]bool

	// freeList holds blocks reclaimed by Sweep, keyed by their aligned
	// size — the teacher's mfixalloc.go frees a single fixed-size class
	// per instance by threading freed blocks into an mlink chain; a major
	// heap serves many object sizes, so this generalizes that to one
	// chain (here, a slice) per size class instead of just one.
	freeList map[uintptr][]obj.Addr
}

func NewMarkSweep(classes obj.ClassInfo) *MarkSweep {
	return &MarkSweep{
		classes:  classes,
		marked:   make(map[obj.Addr]bool),
		pinned:   make(map[obj.Addr]bool),
		freeList: make(map[uintptr][]obj.Addr),
	}
}

// sizeOf returns an object's size, falling back to the filler sentinel's
// encoded size for blocks Sweep has already reclaimed but nothing has
// reused yet (spec §4.1, §4.5; mirrors driver.Context.classSizeOf).
func (m *MarkSweep) sizeOf(o obj.Addr) uintptr {
	if !obj.LooksLikeObjectStart(o) {
		return obj.FillerSize(o)
	}
	return m.classes.Size(o, obj.VTable(obj.VTableWord(o)))
}

// takeFree pops a block of exactly sz bytes off the free list, if one is
// available.
func (m *MarkSweep) takeFree(sz uintptr) (obj.Addr, bool) {
	free := m.freeList[sz]
	if len(free) == 0 {
		return 0, false
	}
	o := free[len(free)-1]
	m.freeList[sz] = free[:len(free)-1]
	return o, true
}

func (m *MarkSweep) AllocHeapRegion(size uintptr) error {
	a, err := heap.NewArena(size)
	if err != nil {
		return errors.Wrap(err, "major: allocate heap region")
	}
	sec := heap.NewSection(a)
	m.mu.Lock()
	m.sections = append(m.sections, sec)
	m.bump = sec.Data
	m.mu.Unlock()
	return nil
}

// HeapRange reports the address range backing this instance's regions, for
// a remset backend (e.g. the card table) that must cover the major heap
// rather than the nursery. Only the first region is reported: the
// collector only ever calls AllocHeapRegion once, at construction.
func (m *MarkSweep) HeapRange() (base obj.Addr, size uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sections) == 0 {
		return 0, 0
	}
	a := m.sections[0].Arena
	return a.Base, a.Size
}

func (m *MarkSweep) AllocObject(size uintptr, vt obj.VTable) (obj.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sz := obj.AlignUp(size)
	if o, ok := m.takeFree(sz); ok {
		obj.ClearHeader(o)
		obj.SetVTable(o, uint64(vt))
		return o, nil
	}
	for _, sec := range m.sections {
		if m.bump < sec.Data || m.bump >= sec.EndData && sec.EndData != sec.Data {
			continue
		}
		if m.bump.Add(sz) > sec.Arena.End() {
			continue
		}
		o := m.bump
		obj.SetVTable(o, uint64(vt))
		sec.RecordScanStart(o)
		m.bump = o.Add(sz)
		if m.bump > sec.EndData {
			sec.EndData = m.bump
		}
		return o, nil
	}
	return 0, errors.New("major: out of heap regions")
}

func (m *MarkSweep) Iterate(pinnedOnly bool, visit func(o obj.Addr)) {
	m.mu.Lock()
	secs := append([]*heap.Section(nil), m.sections...)
	m.mu.Unlock()
	for _, sec := range secs {
		for o := sec.Data; o < sec.EndData; {
			sz := m.sizeOf(o)
			if sz == 0 {
				break
			}
			if obj.LooksLikeObjectStart(o) && (!pinnedOnly || obj.IsPinned(o)) {
				visit(o)
			}
			o = o.Add(obj.AlignUp(sz))
		}
	}
}

func (m *MarkSweep) PinObjectsFromAddresses(addrs []obj.Addr) []obj.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []obj.Addr
	for _, a := range addrs {
		for _, sec := range m.sections {
			if start, ok := sec.FindObjectStart(a, m.sizeOf); ok {
				if !obj.LooksLikeObjectStart(start) {
					break // landed on a reclaimed, not-yet-reused block
				}
				if !m.pinned[start] {
					m.pinned[start] = true
					obj.SetPinned(start)
					out = append(out, start)
				}
				break
			}
		}
	}
	return out
}

// CopyOrMarkObject marks o black in place; mark-sweep never moves
// objects, so the "forwarding" address is always the object itself
// (trivially idempotent).
func (m *MarkSweep) CopyOrMarkObject(o obj.Addr) obj.Addr {
	m.mu.Lock()
	m.marked[o] = true
	m.mu.Unlock()
	return o
}

// CopyObject promotes a nursery survivor by bump-allocating space in the
// major heap and copying the object's bytes, then installing a forwarding
// pointer at the old location (spec §4.6, §5 "forwarding installation
// uses a release store"). It is idempotent: a second call observes
// FORWARDED already set and returns the existing target.
func (m *MarkSweep) CopyObject(o obj.Addr, size uintptr, parallel bool) (obj.Addr, error) {
	if obj.IsForwarded(o) {
		return obj.ForwardedTo(o), nil
	}
	if parallel {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	dst, err := m.allocLocked(size)
	if err != nil {
		return 0, err
	}
	copy(obj.Bytes(dst, size), obj.Bytes(o, size))
	obj.Forward(o, dst)
	m.marked[dst] = true
	return dst, nil
}

func (m *MarkSweep) allocLocked(size uintptr) (obj.Addr, error) {
	sz := obj.AlignUp(size)
	if o, ok := m.takeFree(sz); ok {
		return o, nil
	}
	for _, sec := range m.sections {
		if m.bump.Add(sz) > sec.Arena.End() {
			continue
		}
		o := m.bump
		sec.RecordScanStart(o)
		m.bump = o.Add(sz)
		if m.bump > sec.EndData {
			sec.EndData = m.bump
		}
		return o, nil
	}
	return 0, errors.New("major: promotion out of space")
}

func (m *MarkSweep) ScanObject(o obj.Addr, relay func(slot obj.Addr)) {
	class := m.classes.ClassOf(obj.VTable(obj.VTableWord(o)))
	descr := m.classes.ReferenceBitmap(class)
	obj.ScanByDescriptor(o, descr, relay)
}

// IsMarked reports whether o was reached during the current major mark
// phase (or is pinned, which is always live).
func (m *MarkSweep) IsMarked(o obj.Addr) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marked[o] || m.pinned[o]
}

func (m *MarkSweep) StartMajorCollection() {
	m.mu.Lock()
	m.marked = make(map[obj.Addr]bool)
	m.mu.Unlock()
}

func (m *MarkSweep) FinishMajorCollection() {}

// Sweep reclaims every unmarked, unpinned object: it overwrites each dead
// block with the filler sentinel and threads it onto the free list for
// its size class, the same free/reuse split the teacher's mfixalloc.go
// draws between "hand back a block" and "carve a new one from the arena"
// (spec §4.6 "Sweep", §1 old-generation reclamation). This backend never
// moves or compacts live objects — AllocObject and allocLocked only fall
// back to bump-allocating forward of the highest block once the free
// list for the requested size is empty.
func (m *MarkSweep) Sweep() (freed, live int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sec := range m.sections {
		for o := sec.Data; o < sec.EndData; {
			sz := m.sizeOf(o)
			if sz == 0 {
				break
			}
			aligned := obj.AlignUp(sz)
			if !obj.LooksLikeObjectStart(o) {
				// Already a filler block from an earlier sweep that
				// nothing has reused yet; it is neither live nor newly
				// freed this cycle.
				o = o.Add(aligned)
				continue
			}
			if m.marked[o] || obj.IsPinned(o) {
				live++
			} else {
				freed++
				obj.InstallFiller(o, aligned)
				m.freeList[aligned] = append(m.freeList[aligned], o)
			}
			o = o.Add(aligned)
		}
	}
	return freed, live
}

func (m *MarkSweep) FreeSectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sec := range m.sections {
		if sec.EndData < sec.Arena.End() {
			n++
		}
	}
	return n
}

func (m *MarkSweep) UsedSectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sections)
}

// Contract returns the Backend capability record for this instance,
// suitable for wiring into the collection driver.
func (m *MarkSweep) Contract() *Backend {
	return &Backend{
		Name:                    "marksweep",
		AllocHeapRegion:         m.AllocHeapRegion,
		AllocObject:             m.AllocObject,
		Iterate:                 m.Iterate,
		PinObjectsFromAddresses: m.PinObjectsFromAddresses,
		CopyOrMarkObject:        m.CopyOrMarkObject,
		CopyObject:              Idempotent(m.CopyObject),
		ScanObject:              m.ScanObject,
		IsMarked:                m.IsMarked,
		StartMajorCollection:    m.StartMajorCollection,
		FinishMajorCollection:   m.FinishMajorCollection,
		Sweep:                   m.Sweep,
		FreeSectionCount:        m.FreeSectionCount,
		UsedSectionCount:        m.UsedSectionCount,
		SupportsCardTable:       true,
	}
}
