// Package pin implements the append-only, sort-and-dedupe candidate
// address queue gathered during a stop-the-world conservative scan (spec
// §4.1 "Pin Queue", Component 2).
package pin

import (
	"cmp"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/veezhang/sgengo/internal/gray"
	"github.com/veezhang/sgengo/internal/heap"
	"github.com/veezhang/sgengo/internal/obj"
)

// Queue accumulates candidate addresses during STW, then sorts, dedupes,
// and resolves them into pinned object starts (spec §4.1).
type Queue struct {
	// mu guards Addrs while parallel collectors append concurrently
	// (spec §5 "Pin queue lock"); Add and AddRange always take it, even
	// on the serial path.
	mu    sync.Mutex
	Addrs []obj.Addr
}

// Add appends a candidate address gathered from conservative root or
// stack scanning.
func (q *Queue) Add(a obj.Addr) {
	q.mu.Lock()
	q.Addrs = append(q.Addrs, a)
	q.mu.Unlock()
}

// AddRange scans [start,end) for nursery-resident candidate words and
// adds every one that falls in [nurseryLo, nurseryHi) — used for
// conservative stack/root scanning where every machine word is a
// candidate pointer (spec §4.3 "Pinned-type roots").
func (q *Queue) AddRange(start, end obj.Addr, nurseryLo, nurseryHi obj.Addr) {
	var batch []obj.Addr
	for a := start; a+8 <= end; a += 8 {
		w := obj.Addr(obj.PlainReadWord(a))
		if w >= nurseryLo && w < nurseryHi {
			batch = append(batch, w)
		}
	}
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	q.Addrs = append(q.Addrs, batch...)
	q.mu.Unlock()
}

// SortDedupe sorts the queue in ascending address order and removes
// duplicates in place (spec §4.1: "sorted in ascending address order and
// dedeplicated in place"). Multiple addresses inside the same object are
// only collapsed once resolved to an object start, in PinObjectsFromAddresses
// below — this step only dedupes exact address matches.
func (q *Queue) SortDedupe() {
	slices.SortFunc(q.Addrs, func(a, b obj.Addr) int { return cmp.Compare(a, b) })
	q.Addrs = slices.Compact(q.Addrs)
}

// Reset empties the queue for reuse across collections.
func (q *Queue) Reset() {
	q.Addrs = q.Addrs[:0]
}

// FindSectionRange returns the contiguous sub-slice of the (already
// sorted) queue whose addresses fall within sec's [Data, EndData) (spec
// §4.1 "find_section_range").
func (q *Queue) FindSectionRange(sec *heap.Section) []obj.Addr {
	lo := slices.IndexFunc(q.Addrs, func(a obj.Addr) bool { return a >= sec.Data })
	if lo < 0 {
		return nil
	}
	hi := lo
	for hi < len(q.Addrs) && q.Addrs[hi] < sec.EndData {
		hi++
	}
	return q.Addrs[lo:hi]
}

// PinObjectsFromAddresses walks each candidate address in a section
// range, resolves it to an object start via the section's scan-start
// table, rejects addresses that do not land on a real header, pins the
// resolved object, and enqueues it on the gray stack (spec §4.1). It
// returns the set of definitively pinned object starts, deduplicated —
// "multiple addresses inside the same object collapse to one".
func PinObjectsFromAddresses(sec *heap.Section, candidates []obj.Addr, sizeOf func(obj.Addr) uintptr, g *gray.Stack, onPin func(obj.Addr)) []obj.Addr {
	var pinned []obj.Addr
	for _, addr := range candidates {
		start, ok := sec.FindObjectStart(addr, sizeOf)
		if !ok {
			continue
		}
		if !obj.LooksLikeObjectStart(start) {
			continue
		}
		if len(pinned) > 0 && pinned[len(pinned)-1] == start {
			continue // already pinned by an earlier candidate in this pass
		}
		if !obj.IsPinned(start) {
			obj.SetPinned(start)
		}
		g.Enqueue(start)
		if onPin != nil {
			onPin(start)
		}
		pinned = append(pinned, start)
	}
	slices.SortFunc(pinned, func(a, b obj.Addr) int { return cmp.Compare(a, b) })
	return slices.Compact(pinned)
}
