// Package gray implements the work list of discovered-but-unscanned
// objects (spec §4.2 "Gray Stack", Component 3). It provides a plain
// serial stack for single-threaded collection and a distributed,
// section-based variant for parallel marking (internal/workers).
package gray

import "github.com/veezhang/sgengo/internal/obj"

// ScanFunc scans one gray object, relaying any references it finds back
// into the stack via Enqueue. The collector driver installs the active
// scan function for the current collection (minor vs major use different
// object walks).
type ScanFunc func(o obj.Addr)

// Stack is a simple LIFO work list. The zero value is an empty stack.
// Stack is not safe for concurrent use — it is the single-threaded
// variant; see Distributed for the parallel-marking equivalent.
type Stack struct {
	items []obj.Addr
}

func (s *Stack) Enqueue(o obj.Addr) {
	s.items = append(s.items, o)
}

func (s *Stack) Dequeue() (obj.Addr, bool) {
	n := len(s.items)
	if n == 0 {
		return 0, false
	}
	o := s.items[n-1]
	s.items = s.items[:n-1]
	return o, true
}

func (s *Stack) IsEmpty() bool { return len(s.items) == 0 }

func (s *Stack) Len() int { return len(s.items) }

// Drain scans up to max objects (or until empty if max<0) using scan.
// scan is expected to call s.Enqueue for every reference it discovers, so
// draining continues to make progress on newly-discovered objects within
// the same call. Ordering between concurrently-enqueued objects is
// unspecified (spec §4.2); the only guarantee is that every object
// enqueued is eventually scanned at least once.
func (s *Stack) Drain(max int, scan ScanFunc) {
	n := 0
	for max < 0 || n < max {
		o, ok := s.Dequeue()
		if !ok {
			return
		}
		scan(o)
		n++
	}
}
