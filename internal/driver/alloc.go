package driver

import (
	"github.com/pkg/errors"

	"github.com/veezhang/sgengo/internal/nursery"
	"github.com/veezhang/sgengo/internal/obj"
)

// Alloc serves one allocation request from tlab, refilling it from the
// nursery and, if necessary, running a minor collection before retrying
// (spec §4.10 "Allocation & Degraded Mode"). tlab is owned by the calling
// mutator thread; the driver never shares one across callers.
//
// When the nursery is degraded (no fragment can produce a usable TLAB
// even immediately after a collection), size is allocated directly in the
// major heap instead — the allowance of last resort spec §4.10 grants so
// a mutator can keep making progress while the embedding arranges for
// more address space.
// selfID identifies the calling mutator thread (0 if the caller is not a
// registered thread), passed through to MinorCollect so the collection it
// may trigger never tries to suspend the thread that is driving it.
func (c *Context) Alloc(selfID uint64, tlab *nursery.TLAB, size uintptr, vt obj.VTable) (obj.Addr, error) {
	if o, ok := tlab.Bump(size); ok {
		obj.SetVTable(o, uint64(vt))
		return o, nil
	}
	return c.allocSlow(selfID, tlab, size, vt)
}

func (c *Context) allocSlow(selfID uint64, tlab *nursery.TLAB, size uintptr, vt obj.VTable) (obj.Addr, error) {
	if fresh, ok := c.Nursery.RefillTLAB(size); ok {
		*tlab = fresh
		o, _ := tlab.Bump(size)
		obj.SetVTable(o, uint64(vt))
		return o, nil
	}

	c.MinorCollect(selfID)

	if fresh, ok := c.Nursery.RefillTLAB(size); ok {
		*tlab = fresh
		o, _ := tlab.Bump(size)
		obj.SetVTable(o, uint64(vt))
		return o, nil
	}

	// No fragment can hold size: either the nursery is degraded (every gap
	// is smaller than nursery.MinFragmentSize) or the object itself is
	// larger than every usable fragment. Allocate straight into the major
	// heap so the mutator is never blocked on nursery space alone.
	o, err := c.Major.AllocObject(size, vt)
	if err != nil {
		return 0, errors.Wrap(err, "driver: degraded-mode allocation")
	}
	return o, nil
}
