package heap

import (
	"sync"

	"github.com/veezhang/sgengo/internal/obj"
)

// Section is a contiguous, independently-scannable range of an arena: the
// nursery is exactly one section; a major-heap block or the LOS region
// are also sections so the pin queue (spec §4.1) can treat them
// uniformly. ScanStarts holds one entry per ScanStartSize bucket,
// pointing at or before the first object header in that bucket, per spec
// §3 "Heap sections".
type Section struct {
	Data     obj.Addr // first byte of live data, may be > arena.Base
	EndData  obj.Addr // one past the last allocated byte
	Arena    *Arena
	mu       sync.Mutex // guards ScanStarts during rebuild
	ScanStarts []obj.Addr
}

// NewSection creates a section spanning the whole arena, with an empty
// scan-start table sized for the arena's capacity.
func NewSection(a *Arena) *Section {
	n := (a.Size + ScanStartSize - 1) / ScanStartSize
	s := &Section{
		Data:       a.Base,
		EndData:    a.Base,
		Arena:      a,
		ScanStarts: make([]obj.Addr, n),
	}
	return s
}

// bucketOf returns the scan-start bucket index for addr.
func (s *Section) bucketOf(addr obj.Addr) int {
	return int((addr - s.Data) / ScanStartSize)
}

// RecordScanStart updates the scan-start entry for the bucket containing
// objStart, keeping the invariant that each bucket's entry is at or
// before the first object header inside it.
func (s *Section) RecordScanStart(objStart obj.Addr) {
	idx := s.bucketOf(objStart)
	if idx < 0 || idx >= len(s.ScanStarts) {
		return
	}
	s.mu.Lock()
	if s.ScanStarts[idx].IsZero() || s.ScanStarts[idx] > objStart {
		s.ScanStarts[idx] = objStart
	}
	s.mu.Unlock()
}

// ResetScanStarts clears the table, done at the start of a fragment
// rebuild (spec §4.5).
func (s *Section) ResetScanStarts() {
	s.mu.Lock()
	for i := range s.ScanStarts {
		s.ScanStarts[i] = 0
	}
	s.mu.Unlock()
}

// FindObjectStart resolves an arbitrary address inside the section to the
// start of the object containing it, by descending from the scan-start
// bucket and walking forward header-by-header (spec §4.1:
// "idx = (addr-data)/SCAN_START_SIZE, then reverse scan while
// scan_starts[idx] > addr"). sizeOf must return the size in bytes of the
// object starting at the given address. Returns (0, false) if addr does
// not resolve inside a live object.
func (s *Section) FindObjectStart(addr obj.Addr, sizeOf func(obj.Addr) uintptr) (obj.Addr, bool) {
	if addr < s.Data || addr >= s.EndData {
		return 0, false
	}
	idx := s.bucketOf(addr)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.ScanStarts) {
		idx = len(s.ScanStarts) - 1
	}
	for idx > 0 && (s.ScanStarts[idx].IsZero() || s.ScanStarts[idx] > addr) {
		idx--
	}
	cur := s.ScanStarts[idx]
	if cur.IsZero() {
		cur = s.Data
	}
	for cur < s.EndData {
		sz := sizeOf(cur)
		if sz == 0 {
			return 0, false
		}
		next := cur.Add(obj.AlignUp(sz))
		if addr >= cur && addr < next {
			return cur, true
		}
		cur = next
	}
	return 0, false
}
