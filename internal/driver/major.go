package driver

import (
	"time"

	"github.com/veezhang/sgengo/internal/gray"
	"github.com/veezhang/sgengo/internal/obj"
	"github.com/veezhang/sgengo/internal/roots"
)

// needMajor decides whether a major collection should follow the minor
// collection that just finished (spec §4.8 step 12, §4.10 "Allocation &
// Degraded Mode"): the nursery could not rebuild a usable fragment, or the
// major heap's tracked span has grown past the configured soft limit.
func (c *Context) needMajor() bool {
	if !c.AutoMajor {
		return false
	}
	if c.Nursery.Degraded() {
		return true
	}
	if c.Cfg.SoftHeapLimit == 0 {
		return false
	}
	lo, hi := c.Bounds.Range()
	return uint64(hi-lo) >= c.Cfg.SoftHeapLimit
}

// MajorCollect runs one major collection cycle in isolation (exposed for
// an embedding that wants to force a full collection, e.g. before
// reporting memory statistics). selfID identifies the calling mutator
// thread (0 if the caller is not a registered thread), excluded from the
// STW handshake for the same reason MinorCollect excludes it.
func (c *Context) MajorCollect(selfID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.majorCollectLocked(selfID)
}

// majorCollectLocked implements the major-cycle variant of the collection
// driver (spec §4.8's note that major collections reuse the same shape
// over the whole tracked heap instead of just the nursery). The caller
// must already hold the GC lock.
func (c *Context) majorCollectLocked(selfID uint64) {
	start := time.Now()

	c.Remset.PrepareForMajorCollection()
	c.Major.StartMajorCollection()
	c.Gray = gray.Stack{}

	tok, err := c.STW.Stop(ctxBackground(), selfID)
	if err != nil {
		panic("driver: stop-the-world failed during major collection: " + err.Error())
	}

	r := c.majorReachability()

	// Pinned roots in the major heap are handled by the backend directly
	// (a moving backend must not relocate them; a mark-sweep backend
	// simply marks them), via the same candidate-gathering pass pinning
	// uses for the nursery. The initiator (selfID) is still running, so
	// its stack is scanned from its own captured snapshot rather than
	// folded into the suspended-thread scan (spec §4.7).
	lo, hi := c.Bounds.Range()
	for _, rec := range c.Roots.Snapshot(roots.Pinned) {
		c.Pins.AddRange(rec.Start, rec.End(), lo, hi)
	}
	if c.Threads != nil {
		for _, tr := range c.Threads.StackRanges(selfID) {
			c.Pins.AddRange(tr.Start, tr.End, lo, hi)
		}
		if self, ok := c.Threads.SelfSnapshot(selfID); ok {
			c.Pins.AddRange(self.Start, self.End, lo, hi)
		}
	}
	c.Pins.SortDedupe()
	for _, o := range c.Major.PinObjectsFromAddresses(c.Pins.Addrs) {
		r.promote(o)
	}
	c.Pins.Reset()

	// Scan every root table; the major cycle has no separate remset
	// phase of its own — remset bookkeeping only matters for keeping
	// the *next* minor collection's candidate set accurate, so it is
	// left untouched here (spec §4.4 "remset recordings are an
	// optimization, never a correctness requirement for major
	// collections, which always scan the full heap").
	copyFn := c.copyFuncMajor(c.enqueueFn())
	scanFn := func(o obj.Addr) { c.scanObjectWith(o, r) }
	c.Roots.Scan(roots.Normal, copyFn, &c.Gray, scanFn, c.Markers)
	c.Roots.Scan(roots.WBarrier, copyFn, &c.Gray, scanFn, c.Markers)
	c.Gray.Drain(-1, scanFn)

	c.finishGrayStackWith(r)

	freed, live := c.Major.Sweep()
	c.Major.FinishMajorCollection()

	hadReady := c.Fin.HasReady()
	pause := c.STW.Restart(tok, selfID)
	c.majorCount++
	c.debugf("driver: major collection #%d took %s (stw %s), freed=%d live=%d",
		c.majorCount, time.Since(start), pause, freed, live)

	if hadReady {
		c.notifyFinalizerThread()
	}
}
