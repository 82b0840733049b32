// Package nursery implements the bump-pointer young generation: the
// arena, per-thread TLABs, fragment rebuild after a collection, and
// degraded-mode fallback (spec §4.5 "Nursery Allocator", §4.10
// "Allocation & Degraded Mode", Component 7).
package nursery

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/veezhang/sgengo/internal/heap"
	"github.com/veezhang/sgengo/internal/obj"
)

// MinFragmentSize is the minimum usable fragment size; fragments smaller
// than this are abandoned rather than handed out as TLABs (spec §4.5).
const MinFragmentSize = 256

// Fragment is a live gap between pinned/surviving objects, rebuilt from
// the sorted pin queue after every collection (spec §4.5).
type Fragment struct {
	Start, End obj.Addr
}

func (f Fragment) Size() uintptr { return uintptr(f.End - f.Start) }

// TLAB is a thread-local allocation buffer: a bump pointer over a
// sub-range of one fragment (spec §4.5).
type TLAB struct {
	cur, end obj.Addr
}

func (t *TLAB) Remaining() uintptr {
	if t.end < t.cur {
		return 0
	}
	return uintptr(t.end - t.cur)
}

// Bump allocates size zeroed bytes from the TLAB, or reports failure so
// the caller refills. Zeroing happens once, when the fragment is handed
// out by RefillTLAB — "allocated memory is zeroed before the mutator sees
// it (no post-allocation memset allowed)" (spec §4.5) is upheld because
// RefillTLAB zeroes the whole fragment up front, not each allocation.
func (t *TLAB) Bump(size uintptr) (obj.Addr, bool) {
	size = obj.AlignUp(size)
	if size > t.Remaining() {
		return 0, false
	}
	o := t.cur
	t.cur = o.Add(size)
	return o, true
}

// Nursery owns the single nursery section, its fragment list, and the
// degraded-mode flag.
type Nursery struct {
	Section *heap.Section

	mu        sync.Mutex
	fragments []Fragment
	cursor    int // index into fragments handed out to the next TLAB request

	degraded int32 // atomic bool; set when no fragment is usable (spec §4.5)
}

func New(size uintptr) (*Nursery, error) {
	a, err := heap.NewArena(size)
	if err != nil {
		return nil, errors.Wrap(err, "nursery: reserve arena")
	}
	sec := heap.NewSection(a)
	n := &Nursery{Section: sec}
	n.fragments = []Fragment{{Start: sec.Data, End: sec.Arena.End()}}
	sec.EndData = sec.Arena.End()
	return n, nil
}

// Degraded reports whether the nursery is in degraded mode (spec §4.10).
func (n *Nursery) Degraded() bool { return atomic.LoadInt32(&n.degraded) != 0 }

func (n *Nursery) setDegraded(v bool) {
	if v {
		atomic.StoreInt32(&n.degraded, 1)
	} else {
		atomic.StoreInt32(&n.degraded, 0)
	}
}

// RefillTLAB hands out the next usable fragment, whole, as a fresh TLAB,
// zeroing it first. Fragments too small for minSize are skipped and not
// offered again until the next rebuild. Returns false if no remaining
// fragment is large enough, at which point the caller should treat the
// nursery as exhausted and trigger a collection.
func (n *Nursery) RefillTLAB(minSize uintptr) (TLAB, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for n.cursor < len(n.fragments) {
		f := n.fragments[n.cursor]
		if f.Size() < minSize || f.Size() < MinFragmentSize {
			n.cursor++
			continue
		}
		n.cursor++
		zero(f.Start, f.Size())
		return TLAB{cur: f.Start, end: f.End}, true
	}
	return TLAB{}, false
}

func zero(start obj.Addr, size uintptr) {
	b := obj.Bytes(start, size)
	for i := range b {
		b[i] = 0
	}
}

// RebuildFragments reconstructs the fragment list from the sorted,
// deduped pin queue contents after a collection (spec §4.5): the gaps
// between consecutive pinned object extents, each capped by sizeOf.
// Every gap below MinFragmentSize is filled with a dead-area sentinel
// object instead of being offered as a fragment, keeping the section
// linearly scannable (spec §4.1 "fill-vtable sentinel").
func (n *Nursery) RebuildFragments(pinned []obj.Addr, sizeOf func(obj.Addr) uintptr) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.Section.ResetScanStarts()
	n.fragments = n.fragments[:0]
	n.cursor = 0

	cursor := n.Section.Data
	for _, p := range pinned {
		if p > cursor {
			n.addOrFill(cursor, p)
		}
		sz := obj.AlignUp(sizeOf(p))
		n.Section.RecordScanStart(p)
		cursor = p.Add(sz)
	}
	if end := n.Section.EndData; cursor < end {
		n.addOrFill(cursor, end)
	}

	usable := false
	for _, f := range n.fragments {
		if f.Size() >= MinFragmentSize {
			usable = true
			break
		}
	}
	n.setDegraded(!usable)
}

func (n *Nursery) addOrFill(start, end obj.Addr) {
	gap := uintptr(end - start)
	if gap >= MinFragmentSize {
		n.fragments = append(n.fragments, Fragment{Start: start, End: end})
		n.Section.RecordScanStart(start)
		return
	}
	obj.InstallFiller(start, gap)
	n.Section.RecordScanStart(start)
}

// FillerSize reads back the size encoded by obj.InstallFiller, used by the
// class-size callback's fallback path when it sees the fill sentinel.
func FillerSize(start obj.Addr) uintptr {
	return obj.FillerSize(start)
}
