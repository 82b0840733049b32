package driver

import "github.com/veezhang/sgengo/internal/obj"

// copyFuncMinor implements the copy_fn callback threaded through root and
// remset scanning during a minor collection (spec §4.3, §4.4, §4.8 steps
// 6-7). slot holds a pointer that may point into the nursery; if so, and
// the target is not already forwarded, it is copied into the major heap
// (or left in place if pinned) and the slot is rewritten to the survivor
// address. Already-major-heap or null values are left untouched.
func (c *Context) copyFuncMinor(enqueue func(obj.Addr)) func(slot obj.Addr) {
	return func(slot obj.Addr) {
		target := obj.Addr(obj.ReadWord(slot))
		if target.IsZero() {
			return
		}
		if !c.Nursery.Section.Arena.Contains(target) {
			return // already outside the nursery; nothing to do
		}
		newAddr := c.promoteMinor(target, enqueue)
		if newAddr != target {
			obj.WriteWord(slot, uint64(newAddr))
		}
	}
}

// promoteMinor copies/forwards a single nursery object and returns its
// post-collection address, enqueuing it for scanning the first time it
// is discovered. It is safe to call more than once on the same object
// (idempotent on already-forwarded objects, spec §4.6).
func (c *Context) promoteMinor(o obj.Addr, enqueue func(obj.Addr)) obj.Addr {
	if obj.IsPinned(o) {
		return o // stays in the nursery this collection
	}
	if obj.IsForwarded(o) {
		return obj.ForwardedTo(o)
	}
	size := c.classSizeOf(o)
	dst, err := c.Major.CopyObject(o, size, c.Workers != nil)
	if err != nil {
		panic("driver: promotion failed: " + err.Error())
	}
	if dst != o {
		enqueue(dst)
	}
	return dst
}

// resolveReachable reports whether addr, a pre-collection address, still
// denotes a live object after (partial) minor collection: pinned objects
// are always live in place, forwarded objects are live at their new
// address, and anything else inside the nursery that was never forwarded
// or pinned is dead. Addresses outside the nursery are resolved through
// the major backend's own mark state instead (see resolveReachableMajor).
func (c *Context) resolveReachable(addr obj.Addr) obj.Addr {
	if addr.IsZero() {
		return 0
	}
	if !c.Nursery.Section.Arena.Contains(addr) {
		return c.resolveReachableMajor(addr)
	}
	if obj.IsPinned(addr) {
		return addr
	}
	if obj.IsForwarded(addr) {
		return obj.ForwardedTo(addr)
	}
	return 0
}

// isReachable adapts resolveReachable to the finalize package's
// predicate shape.
func (c *Context) isReachable(addr obj.Addr) bool {
	return !c.resolveReachable(addr).IsZero()
}

// copyFuncMajor is the major-collection analogue of copyFuncMinor: it
// marks (or, for a moving backend, moves) every non-null target through
// the major backend. majorCollectLocked does not run a minor collection
// first, so a target still in the nursery is marked in place like any
// other; it is not promoted out of the nursery here.
func (c *Context) copyFuncMajor(enqueue func(obj.Addr)) func(slot obj.Addr) {
	return func(slot obj.Addr) {
		target := obj.Addr(obj.ReadWord(slot))
		if target.IsZero() {
			return
		}
		newAddr := c.promoteMajor(target, enqueue)
		if newAddr != target {
			obj.WriteWord(slot, uint64(newAddr))
		}
	}
}

// promoteMajor marks (or, for a moving backend, copies and forwards) o in
// place within the major heap, enqueuing it for scanning the first time
// it is discovered this cycle.
func (c *Context) promoteMajor(o obj.Addr, enqueue func(obj.Addr)) obj.Addr {
	if obj.IsForwarded(o) {
		return obj.ForwardedTo(o)
	}
	wasMarked := c.Major.IsMarked(o)
	dst := c.Major.CopyOrMarkObject(o)
	if !wasMarked {
		enqueue(dst)
	}
	return dst
}

// resolveReachableMajor resolves a major-heap address against the
// backend's mark state (or forwarding, for a moving backend), returning
// the zero address if the object did not survive this major collection.
func (c *Context) resolveReachableMajor(addr obj.Addr) obj.Addr {
	if addr.IsZero() {
		return 0
	}
	if obj.IsForwarded(addr) {
		return obj.ForwardedTo(addr)
	}
	if c.Major.IsMarked(addr) {
		return addr
	}
	return 0
}

func (c *Context) isReachableMajor(addr obj.Addr) bool {
	return !c.resolveReachableMajor(addr).IsZero()
}
