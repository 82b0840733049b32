package driver

import "github.com/veezhang/sgengo/internal/obj"

// reachability bundles the copy/promote/resolve primitives finishGrayStack
// needs; minor and major collections each supply their own (copy.go),
// since a minor cycle resolves liveness through forwarding relative to the
// nursery while a major cycle asks the backend's own mark state.
type reachability struct {
	copyRef      func(slot obj.Addr)
	promote      func(o obj.Addr) obj.Addr
	isReachable  func(obj.Addr) bool
	resolve      func(obj.Addr) obj.Addr
}

func (c *Context) minorReachability() reachability {
	return reachability{
		copyRef:     c.copyFuncMinor(c.enqueueFn()),
		promote:     func(o obj.Addr) obj.Addr { return c.promoteMinor(o, c.enqueueFn()) },
		isReachable: c.isReachable,
		resolve:     c.resolveReachable,
	}
}

func (c *Context) majorReachability() reachability {
	return reachability{
		copyRef:     c.copyFuncMajor(c.enqueueFn()),
		promote:     func(o obj.Addr) obj.Addr { return c.promoteMajor(o, c.enqueueFn()) },
		isReachable: c.isReachableMajor,
		resolve:     c.resolveReachableMajor,
	}
}

// finishGrayStack runs the reachability fixpoint that follows the initial
// root/remset scan, for either a minor or a major collection (spec §4.9
// "finish_gray_stack"). Ephemerons, bridges, disappearing links, and
// finalizers all interact — resurrecting a finalizable object can make an
// ephemeron value reachable again, and promoting a bridge candidate can
// resurrect a finalizable object — so the steps below run in a fixed
// order and the finalizer-promotion loop repeats until nothing new is
// discovered.
func (c *Context) finishGrayStackWith(r reachability) {
	drain := func() { c.Gray.Drain(-1, func(o obj.Addr) { c.scanObjectWith(o, r) }) }
	promoteArray := func(arr obj.Addr) bool {
		wasInNursery := c.Nursery.Section.Arena.Contains(arr)
		r.promote(arr)
		return wasInNursery
	}
	addRemset := c.Remset.RecordPointer
	runEphemeronPass := func() {
		for c.Eph.Pass(r.isReachable, r.copyRef, promoteArray, addRemset) {
			drain()
		}
	}

	// Step 1: the scan loop that brought us here already drained the
	// gray stack to a fixpoint; one more pass is free insurance against
	// anything left over by pinning or marking.
	drain()

	// Step 2-3: ephemeron fixpoint, then drop arrays whose backing
	// object died.
	runEphemeronPass()
	c.Eph.Remove(r.isReachable)

	// Step 4: bridge objects are promoted and scanned before finalizer
	// processing begins, since bridge cycle analysis runs on the
	// post-collection graph (spec glossary "Bridge").
	if bridged := c.Bridge.Collect(r.promote); len(bridged) > 0 {
		drain()
	}

	// Step 5: non-tracking disappearing links must be cleared before the
	// finalizer loop runs, so a dead object cannot be observed "alive"
	// through a weak lookup just because its finalizer is about to run.
	c.Weak.NullNonTracking(r.resolve)

	// Step 6: promote unreachable finalizable objects, repeating while
	// bridge processing allows (unbounded normally, exactly one pass
	// when a bridge cycle is active) and new ephemeron keys become
	// reachable as a result of resurrection.
	for loops := c.Bridge.MaxFinalizerLoops(); loops != 0; loops-- {
		moved := c.Fin.PromoteUnreachable(r.isReachable, func(o obj.Addr) { r.promote(o) })
		if !moved {
			break
		}
		drain()
		runEphemeronPass() // step 7: resurrection can reopen ephemeron keys
	}

	// Step 8: tombstone any ephemeron pair whose key is still dead.
	c.Eph.ClearDead(r.isReachable)

	// Step 9: tracking disappearing links survive resurrection, so they
	// are only nulled now that finalizer promotion has settled.
	c.Weak.NullTracking(r.resolve)

	// Step 10: the graph is closed; nothing should remain gray.
	if !c.Gray.IsEmpty() {
		panic("driver: gray stack non-empty after finish_gray_stack")
	}
}

func (c *Context) scanObjectWith(o obj.Addr, r reachability) {
	descr := c.descriptorOf(o)
	obj.ScanByDescriptor(o, descr, r.copyRef)
}

// finishGrayStack is the minor-collection entry point called from
// minor.go's step 9.
func (c *Context) finishGrayStack() {
	c.finishGrayStackWith(c.minorReachability())
}
