package gray

import (
	"sync"

	"github.com/veezhang/sgengo/internal/obj"
)

// SectionSize is the number of addresses a distributed-stack section
// holds before it is handed to the distribute queue (spec §4.2, §4.11:
// "grows past a section, hands sections to the distribute queue").
const SectionSize = 512

// section is a fixed-capacity chunk of gray addresses. It is the unit
// exchanged between a worker's private stack and the shared distribute
// queue, so handoff is O(1) regardless of how much work it carries.
type section struct {
	items [SectionSize]obj.Addr
	n     int
}

func (s *section) push(o obj.Addr) bool {
	if s.n >= len(s.items) {
		return false
	}
	s.items[s.n] = o
	s.n++
	return true
}

func (s *section) pop() (obj.Addr, bool) {
	if s.n == 0 {
		return 0, false
	}
	s.n--
	return s.items[s.n], true
}

// Distributed is the parallel-marking gray stack: each worker owns a
// private section it pushes to and pops from, and rebalances by handing
// full/empty sections through a shared stack of spare sections. take is a
// non-blocking poll (spec §4.11: "main thread polls and yields while the
// distribute queue is non-empty") rather than a blocking dequeue — unlike
// grailbio-bio's pam writer, which hands off a fixed pool of buffers
// between a producer and a consumer that both know how many to expect,
// a marking worker here must be able to observe "nothing to steal right
// now" and fall back to polling IsEmpty instead of parking forever.
type Distributed struct {
	mu      sync.Mutex
	stack   []*section
	pending int // number of objects reachable via stack, best-effort for IsEmpty
}

// NewDistributed creates a distribute queue shared by a set of workers.
func NewDistributed() *Distributed {
	return &Distributed{}
}

// Local is a per-worker handle onto a Distributed gray stack.
type Local struct {
	d       *Distributed
	current *section
	spare   *section
}

func (d *Distributed) NewLocal() *Local {
	return &Local{d: d, current: &section{}}
}

// Enqueue implements the ScanFunc callback surface: it pushes to the
// worker's private section, spilling to the distribute queue when full.
func (l *Local) Enqueue(o obj.Addr) {
	if !l.current.push(o) {
		l.d.publish(l.current)
		if l.spare != nil {
			l.current = l.spare
			l.spare = nil
		} else {
			l.current = &section{}
		}
		l.current.push(o)
	}
}

// Dequeue pops from the private section first, then tries to steal a
// section from the distribute queue.
func (l *Local) Dequeue() (obj.Addr, bool) {
	if o, ok := l.current.pop(); ok {
		return o, true
	}
	if s := l.d.take(); s != nil {
		l.spare = l.current
		l.current = s
		return l.current.pop()
	}
	return 0, false
}

func (l *Local) Drain(scan ScanFunc) {
	for {
		o, ok := l.Dequeue()
		if !ok {
			return
		}
		scan(o)
	}
}

func (d *Distributed) publish(s *section) {
	if s.n == 0 {
		return
	}
	cp := *s
	d.mu.Lock()
	d.pending += cp.n
	d.stack = append(d.stack, &cp)
	d.mu.Unlock()
}

// take pops the most recently published section, or returns nil if the
// distribute queue is currently empty; callers fall back to polling
// IsEmpty rather than blocking for a future publish.
func (d *Distributed) take() *section {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.stack)
	if n == 0 {
		return nil
	}
	s := d.stack[n-1]
	d.stack = d.stack[:n-1]
	d.pending -= s.n
	return s
}

// IsEmpty reports whether the distribute queue holds no published
// sections; workers' private sections are not counted. Callers
// (workers.Pool.StartMarking) still rely on a join barrier rather than
// this alone to decide marking is complete.
func (d *Distributed) IsEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending == 0
}
