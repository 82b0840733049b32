package driver

import (
	"time"

	"github.com/veezhang/sgengo/internal/gray"
	"github.com/veezhang/sgengo/internal/obj"
	"github.com/veezhang/sgengo/internal/pin"
	"github.com/veezhang/sgengo/internal/roots"
	"github.com/veezhang/sgengo/internal/workers"
)

// MinorCollect runs one minor collection cycle end to end (spec §4.8).
// It serializes on the GC lock itself, so callers never need to hold it
// first; package sgengo's allocation slow path calls this directly.
// selfID identifies the calling mutator thread (0 if the caller is not a
// registered thread), excluded from the STW handshake since it is the
// one driving the collection rather than being suspended for it.
func (c *Context) MinorCollect(selfID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minorCollectLocked(selfID)
}

func (c *Context) minorCollectLocked(selfID uint64) {
	start := time.Now()
	nurseryLo := c.Nursery.Section.Arena.Base
	nurseryHi := c.Nursery.Section.Arena.End()

	// Step 1-2: reset per-collection state.
	c.Pins.Reset()
	c.Gray = gray.Stack{}
	c.Remset.PrepareForMinorCollection() // step 3
	c.Fin.MergeStaged()                  // step 4

	tok, err := c.STW.Stop(ctxBackground(), selfID)
	if err != nil {
		panic("driver: stop-the-world failed: " + err.Error())
	}

	// Step 5: pin every conservative root and thread-stack candidate,
	// then resolve and pin the objects they land on; pinned objects are
	// enqueued onto the gray stack directly since they stay in the
	// nursery and may still hold outgoing references. The initiator
	// (selfID) is still running, so its stack is scanned from its own
	// captured snapshot rather than folded into the suspended-thread
	// scan (spec §4.7).
	for _, rec := range c.Roots.Snapshot(roots.Pinned) {
		c.Pins.AddRange(rec.Start, rec.End(), nurseryLo, nurseryHi)
	}
	if c.Threads != nil {
		for _, tr := range c.Threads.StackRanges(selfID) {
			c.Pins.AddRange(tr.Start, tr.End, nurseryLo, nurseryHi)
		}
		if self, ok := c.Threads.SelfSnapshot(selfID); ok {
			c.Pins.AddRange(self.Start, self.End, nurseryLo, nurseryHi)
		}
	}
	c.Pins.SortDedupe()
	candidates := c.Pins.FindSectionRange(c.Nursery.Section)
	pinnedStarts := pin.PinObjectsFromAddresses(c.Nursery.Section, candidates, c.classSizeOf, &c.Gray, nil)

	// Step 6: remset scan feeds every old->young slot into the copy
	// function, enqueuing survivors.
	c.Remset.BeginScanRemsets()
	c.Remset.FinishScanRemsets(c.copyFuncMinor(c.enqueueFn()))

	// Step 7-8: scan the precise root tables and drain the gray stack,
	// serially or across the worker pool depending on configuration.
	c.scanRootsAndMark()

	// Step 9: the finish_gray_stack reachability fixpoint (spec §4.9).
	c.finishGrayStack()

	// Step 10: rebuild the nursery's fragment list from the surviving
	// pinned set; anything not pinned and not forwarded by now is dead.
	c.Nursery.RebuildFragments(pinnedStarts, c.classSizeOf)

	// Step 11: outstanding TLAB handles are implicitly invalidated by the
	// STW boundary; notify the finalizer thread if anything became ready.
	c.Remset.FinishMinorCollection()
	hadReady := c.Fin.HasReady()

	pause := c.STW.Restart(tok, selfID)
	c.minorCount++
	c.debugf("driver: minor collection #%d took %s (stw %s), %d pinned, degraded=%v",
		c.minorCount, time.Since(start), pause, len(pinnedStarts), c.Nursery.Degraded())

	if hadReady {
		c.notifyFinalizerThread()
	}

	// Step 12: escalate to a major collection if the old generation has
	// grown past its allowance or the nursery can no longer serve
	// allocations at all.
	if c.needMajor() {
		c.majorCollectLocked(selfID)
	}
}

func (c *Context) notifyFinalizerThread() {
	if c.FinSignal == nil {
		return
	}
	select {
	case c.FinSignal <- struct{}{}:
	default:
	}
}

// enqueueFn returns the Enqueue callback for the serial gray stack. Used
// by both pinning and root/remset scanning when no worker pool is
// configured, and as the seed path feeding a worker pool's distributed
// stack when one is.
func (c *Context) enqueueFn() func(obj.Addr) {
	return c.Gray.Enqueue
}

// scanObjectMinor walks one object's reference slots according to its
// class descriptor, relaying each through copyFuncMinor.
func (c *Context) scanObjectMinor(o obj.Addr, enqueue func(obj.Addr)) {
	descr := c.descriptorOf(o)
	obj.ScanByDescriptor(o, descr, c.copyFuncMinor(enqueue))
}

// ScanObjectForWorker is the minor-collection object scan, exported so the
// worker pool (constructed once, outside any single collection) can bind
// its per-worker ScanFunc to each local gray-stack section (spec §4.11).
// Major collections never run parallel marking (spec §4.8's major-cycle
// paragraph does not mention worker jobs), so this is always the minor
// variant.
func (c *Context) ScanObjectForWorker(o obj.Addr, enqueue func(obj.Addr)) {
	c.scanObjectMinor(o, enqueue)
}

// scanRootsAndMark drives spec §4.8 steps 7-8: scan the normal and
// wbarrier root tables, then drive the resulting gray stack to a fixed
// point, either serially on the calling thread or across the worker pool.
func (c *Context) scanRootsAndMark() {
	if c.Workers == nil {
		scanFn := func(o obj.Addr) { c.scanObjectMinor(o, c.enqueueFn()) }
		c.scanRootTables(c.enqueueFn(), &c.Gray, scanFn)
		c.Gray.Drain(-1, scanFn)
		return
	}

	// Seed every item already on the serial gray stack (from pinning and
	// the remset scan) into the first job so the worker pool picks up
	// where the serial prelude left off.
	seed := c.drainGrayToSlice()
	jobs := []workers.Job{
		func(local *gray.Local) {
			for _, o := range seed {
				local.Enqueue(o)
			}
			c.scanRootTables(local.Enqueue, nil, nil)
		},
	}
	if err := c.Workers.StartMarking(ctxBackground(), jobs); err != nil {
		panic("driver: parallel marking failed: " + err.Error())
	}
}

func (c *Context) drainGrayToSlice() []obj.Addr {
	var out []obj.Addr
	for {
		o, ok := c.Gray.Dequeue()
		if !ok {
			return out
		}
		out = append(out, o)
	}
}

// scanRootTables scans the Normal and WBarrier root tables (the Pinned
// table is handled separately by the conservative pin pass). queue/scan
// may be nil, in which case discovered objects are left on enqueue's
// target for the caller to drain itself (the worker-pool path).
func (c *Context) scanRootTables(enqueue func(obj.Addr), queue *gray.Stack, scan gray.ScanFunc) {
	copyFn := c.copyFuncMinor(enqueue)
	c.Roots.Scan(roots.Normal, copyFn, queue, scan, c.Markers)
	c.Roots.Scan(roots.WBarrier, copyFn, queue, scan, c.Markers)
}
