package sgengo

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/veezhang/sgengo/internal/driver"
	"github.com/veezhang/sgengo/internal/nursery"
	"github.com/veezhang/sgengo/internal/obj"
	"github.com/veezhang/sgengo/internal/stw"
)

// MutatorThread is one registered mutator thread's collector-visible
// state: its stack extent, its TLAB, and the cooperative suspend
// handshake the stop-the-world protocol drives it through (spec §4.7).
//
// The original source suspends threads asynchronously, from a signal
// handler. A pure-Go reimplementation has no equivalent without cgo, so
// this is a cooperative safepoint instead: the mutator goroutine must
// call SafePoint at allocation time (Collector.Alloc does this
// automatically) and at loop back-edges if it runs tight allocation-free
// loops. This is the open design decision DESIGN.md records for spec §9's
// "write barriers ... managed-code emitter" note, generalized to
// suspension as a whole.
type MutatorThread struct {
	id uint64

	suspendReq int32 // atomic
	inAlloc    int32 // atomic

	acked  chan struct{} // buffered 1: SafePoint -> Protocol.Stop
	resume chan struct{} // unbuffered: Resume -> SafePoint

	deadOnce sync.Once
	deadCh   chan struct{}

	stackLo, stackHi obj.Addr
	precise          bool

	tlab nursery.TLAB
}

func newMutatorThread(id uint64, stackLo, stackHi obj.Addr, precise bool) *MutatorThread {
	return &MutatorThread{
		id:      id,
		acked:   make(chan struct{}, 1),
		resume:  make(chan struct{}),
		deadCh:  make(chan struct{}),
		stackLo: stackLo,
		stackHi: stackHi,
		precise: precise,
	}
}

func (t *MutatorThread) ID() uint64 { return t.id }

func (t *MutatorThread) Suspend() error {
	atomic.StoreInt32(&t.suspendReq, 1)
	return nil
}

// Resume clears the suspend request and wakes a thread parked in
// SafePoint, if any is.
func (t *MutatorThread) Resume() error {
	atomic.StoreInt32(&t.suspendReq, 0)
	select {
	case t.resume <- struct{}{}:
	default:
	}
	return nil
}

func (t *MutatorThread) InManagedAllocator() bool {
	return atomic.LoadInt32(&t.inAlloc) != 0
}

// AckSuspend waits for the mutator to reach a safepoint and acknowledge,
// or for the thread to be marked dead (spec §7 "Thread disappeared
// during handshake": recovered locally by marking skip).
func (t *MutatorThread) AckSuspend(ctx context.Context) error {
	select {
	case <-t.acked:
		return nil
	case <-t.deadCh:
		return errors.Errorf("sgengo: thread %d is dead", t.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SafePoint blocks the calling mutator goroutine while a suspend request
// is pending, acknowledging it and waiting for Resume.
func (t *MutatorThread) SafePoint() {
	if atomic.LoadInt32(&t.suspendReq) == 0 {
		return
	}
	select {
	case t.acked <- struct{}{}:
	default:
	}
	<-t.resume
}

// markDead unblocks any in-flight AckSuspend and excludes the thread from
// future handshake rounds; called by DeregisterThread.
func (t *MutatorThread) markDead() {
	t.deadOnce.Do(func() { close(t.deadCh) })
}

func (t *MutatorThread) stackRange() driver.ThreadRange {
	return driver.ThreadRange{Start: t.stackLo, End: t.stackHi, Precise: t.precise}
}

// threadRegistry is the collector's view of every live mutator thread; it
// satisfies both stw.Registry (the handshake needs the live set) and
// driver.ThreadStackProvider (pinning needs every stack range).
type threadRegistry struct {
	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*MutatorThread
}

func newThreadRegistry() *threadRegistry {
	return &threadRegistry{live: make(map[uint64]*MutatorThread)}
}

func (r *threadRegistry) register(stackLo, stackHi obj.Addr, precise bool) *MutatorThread {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := newMutatorThread(r.nextID, stackLo, stackHi, precise)
	r.live[t.id] = t
	return t
}

func (r *threadRegistry) deregister(t *MutatorThread) {
	t.markDead()
	r.mu.Lock()
	delete(r.live, t.id)
	r.mu.Unlock()
}

func (r *threadRegistry) LiveThreads() []stw.Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stw.Thread, 0, len(r.live))
	for _, t := range r.live {
		out = append(out, t)
	}
	return out
}

// StackRanges returns every live thread's stack range except excludeID's
// — the collection initiator is never among the suspended threads this
// scans, since it is still running (spec §4.7).
func (r *threadRegistry) StackRanges(excludeID uint64) []driver.ThreadRange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]driver.ThreadRange, 0, len(r.live))
	for id, t := range r.live {
		if id == excludeID {
			continue
		}
		out = append(out, t.stackRange())
	}
	return out
}

// SelfSnapshot returns the initiating thread's own range, captured
// directly rather than folded into a live re-scan of other (suspended)
// threads, since the initiator is the one thread still running while
// the rest of the collection proceeds.
func (r *threadRegistry) SelfSnapshot(id uint64) (driver.ThreadRange, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.live[id]
	if !ok {
		return driver.ThreadRange{}, false
	}
	return t.stackRange(), true
}

// RegisterThread registers the calling goroutine's stack extent with the
// collector (spec §6 callback registration). remset must also be told
// about the new thread so its write-barrier fast path has somewhere to
// record slots (spec §4.4 "register_thread").
func (c *Collector) RegisterThread(stackLo, stackHi obj.Addr, precise bool) *MutatorThread {
	t := c.threads.register(stackLo, stackHi, precise)
	c.ctx.Remset.RegisterThread(t.id)
	return t
}

// DeregisterThread removes t from the live set and flushes its remset
// buffer (spec §4.4 "cleanup_thread").
func (c *Collector) DeregisterThread(t *MutatorThread) {
	c.ctx.Remset.CleanupThread(t.id)
	c.threads.deregister(t)
}
