// Package sgengo is the embedding API for the generational, moving
// collector core: a host runtime links this package, supplies the class
// metadata callback, registers its threads and roots, and drives
// allocation and collection through the methods below (spec §6
// "External Interfaces").
package sgengo

import (
	"github.com/pkg/errors"

	"github.com/veezhang/sgengo/internal/config"
	"github.com/veezhang/sgengo/internal/driver"
	"github.com/veezhang/sgengo/internal/finalize"
	"github.com/veezhang/sgengo/internal/gray"
	"github.com/veezhang/sgengo/internal/heap"
	"github.com/veezhang/sgengo/internal/major"
	"github.com/veezhang/sgengo/internal/nursery"
	"github.com/veezhang/sgengo/internal/obj"
	"github.com/veezhang/sgengo/internal/remset"
	"github.com/veezhang/sgengo/internal/roots"
	"github.com/veezhang/sgengo/internal/stw"
	"github.com/veezhang/sgengo/internal/workers"
)

// Collector is one collector instance: one nursery, one major heap, one
// set of root tables. Most embeddings need exactly one, constructed at
// process startup and held for the process lifetime.
type Collector struct {
	ctx     *driver.Context
	threads *threadRegistry
	debug   config.DebugFlags
}

// New parses envConfig and envDebug (spec §6's two environment-variable
// grammars) and assembles a collector instance around classes, the host's
// class-metadata callback (spec §1, §6: "narrow, out-of-scope
// collaborator... must be supplied by the host runtime").
func New(classes obj.ClassInfo, envConfig, envDebug string) (*Collector, error) {
	cfg, err := config.Parse(envConfig)
	if err != nil {
		return nil, errors.Wrap(err, "sgengo: parse configuration")
	}
	debug := config.ParseDebugFlags(envDebug)

	nurs, err := nursery.New(uintptr(cfg.NurserySize))
	if err != nil {
		return nil, errors.Wrap(err, "sgengo: create nursery")
	}

	ms := major.NewMarkSweep(classes)
	if err := ms.AllocHeapRegion(uintptr(cfg.MaxHeapSize)); err != nil {
		return nil, errors.Wrap(err, "sgengo: reserve major heap")
	}
	backend := ms.Contract()

	// The card table must cover the old generation's actual address range:
	// every real use (an old-heap slot pointing at a young object) lands
	// at cardIndex(slot), computed relative to where that slot lives, the
	// major heap's arena, not the nursery's.
	var rs remset.Backend
	switch cfg.WBarrier {
	case config.WBarrierCardTable:
		heapBase, heapSize := ms.HeapRange()
		rs = remset.NewCardTableBackend(heapBase, heapSize)
	default:
		rs = remset.NewSSBBackend()
	}

	rootReg := roots.NewRegistry()
	bounds := heap.NewBounds()
	bounds.Extend(nurs.Section.Data, nurs.Section.Arena.End())

	threads := newThreadRegistry()
	stwProto := stw.New(threads)

	ctx := &driver.Context{
		Classes: classes,
		Cfg:     cfg,
		Nursery: nurs,
		Major:   backend,
		Remset:  rs,
		Roots:   rootReg,
		Bounds:  bounds,
		STW:     stwProto,
		Threads: threads,
		FinSignal: make(chan struct{}, 1),
		AutoMajor: true,
	}

	if cfg.Workers > 1 {
		ctx.Workers = workers.NewPool(cfg.Workers, func(local *gray.Local) gray.ScanFunc {
			return func(o obj.Addr) { ctx.ScanObjectForWorker(o, local.Enqueue) }
		})
	}

	c := &Collector{ctx: ctx, threads: threads, debug: debug}
	return c, nil
}

// Alloc, AllocPinned and AllocArray are the three allocation entry points
// the embedding API exposes (spec §6). Each is served from t's TLAB; t
// must have been returned by RegisterThread for the calling mutator.
func (c *Collector) Alloc(t *MutatorThread, size uintptr, vt obj.VTable) (obj.Addr, error) {
	t.SafePoint()
	return c.ctx.Alloc(t.id, &t.tlab, size, vt)
}

// AllocPinned allocates like Alloc but marks the object PINNED before
// handing it back, so a later minor collection leaves it in place
// instead of copying it (spec §4.1, §6 "alloc_pinned"). Pinned-at-birth
// objects still need to reach a root to survive; callers typically
// register the returned address with RegisterRootPinned immediately.
func (c *Collector) AllocPinned(t *MutatorThread, size uintptr, vt obj.VTable) (obj.Addr, error) {
	o, err := c.ctx.Alloc(t.id, &t.tlab, size, vt)
	if err != nil {
		return 0, err
	}
	obj.SetPinned(o)
	return o, nil
}

// AllocArray allocates a variable-length array object, sizing it through
// the host's obj.ArrayClassInfo extension (spec §6 "alloc_array").
func (c *Collector) AllocArray(t *MutatorThread, vt obj.VTable, count uintptr) (obj.Addr, error) {
	aci, ok := c.ctx.Classes.(obj.ArrayClassInfo)
	if !ok {
		return 0, errors.New("sgengo: alloc_array requires an ArrayClassInfo host callback")
	}
	size := aci.ArraySize(vt, count)
	return c.ctx.Alloc(t.id, &t.tlab, size, vt)
}

// Disable/Enable gate automatic major-collection escalation (spec §6
// "disable/enable()"); minor collections still run when the nursery fills
// (allocation must always make progress), they just never escalate into a
// major collection on their own while disabled. Collect(1) still works
// for a caller that wants to force one explicitly.
func (c *Collector) Disable() { c.ctx.SetAutoMajor(false) }
func (c *Collector) Enable()  { c.ctx.SetAutoMajor(true) }

// MaxGeneration reports the highest generation number Collect accepts
// (spec §6 "max_generation() → 1": this core has exactly two
// generations, nursery=0 and major=1).
func (c *Collector) MaxGeneration() int { return 1 }

// Collect forces a collection of generation (0=minor, 1=major). The
// caller is not assumed to be a registered mutator thread (no thread ID
// is available for exclusion, hence selfID 0 — no live thread is ever
// assigned ID 0, so the handshake suspends every one of them normally).
func (c *Collector) Collect(generation int) error {
	switch generation {
	case 0:
		c.ctx.MinorCollect(0)
	case 1:
		c.ctx.MajorCollect(0)
	default:
		return errors.Errorf("sgengo: unknown generation %d", generation)
	}
	return nil
}

// CollectionCount returns the number of collections run against
// generation (0=minor, 1=major).
func (c *Collector) CollectionCount(generation int) uint64 {
	stats := c.ctx.Stats()
	if generation == 0 {
		return stats.MinorCollections
	}
	return stats.MajorCollections
}

// UsedSize/HeapSize report byte counts across both generations (spec §6
// "used_size()", "heap_size()").
func (c *Collector) UsedSize() uint64 {
	lo, hi := c.ctx.Bounds.Range()
	return uint64(hi - lo)
}

func (c *Collector) HeapSize() uint64 {
	return c.ctx.Cfg.MaxHeapSize
}

// RegisterFinalizer stages o for finalization (spec §6, §4.12).
func (c *Collector) RegisterFinalizer(o obj.Addr, critical bool) {
	c.ctx.Fin.Register(o, critical, c.ctx.STW.InSTW())
}

// RunFinalizers drains every fin-ready entry, invoking run once per
// object exactly as the spec's once-only invariant requires (spec §8
// invariant 7). It is meant to be called from a dedicated finalizer
// goroutine woken by WaitForFinalizers.
func (c *Collector) RunFinalizers(run func(o obj.Addr, critical bool)) {
	c.ctx.Fin.DrainReady(run)
}

// WaitForFinalizers blocks until a collection has left fin-ready entries
// (or the collector is shut down by closing done), matching the "a
// dedicated finalizer thread... woken after each collection that
// produced ready entries" design (spec §4.12).
func (c *Collector) WaitForFinalizers(done <-chan struct{}) bool {
	select {
	case <-c.ctx.FinSignal:
		return true
	case <-done:
		return false
	}
}

// RegisterDisappearingLink and EphemeronArrayAdd expose the two weak-
// reference primitives of spec §4.12/§6.
func (c *Collector) RegisterDisappearingLink(slot obj.Addr, track bool) *finalize.WeakLink {
	return c.ctx.Weak.Add(slot, track)
}

func (c *Collector) RemoveDisappearingLink(l *finalize.WeakLink) {
	c.ctx.Weak.Remove(l)
}

func (c *Collector) WeakLinkGet(l *finalize.WeakLink) obj.Addr { return finalize.Get(l) }
func (c *Collector) WeakLinkSet(l *finalize.WeakLink, target obj.Addr) {
	finalize.Set(l, target)
}

func (c *Collector) EphemeronArrayAdd(array obj.Addr, pairs []finalize.EphemeronPair) {
	c.ctx.Eph.Register(&finalize.EphemeronArray{Array: array, Pairs: pairs})
}

// RegisterRoot/RegisterRootWBarrier/DeregisterRoot expose the root
// registry (spec §6, §4.3).
func (c *Collector) RegisterRoot(start obj.Addr, size uintptr, descr obj.Descriptor) {
	c.ctx.Roots.Register(roots.Normal, start, size, descr)
}

func (c *Collector) RegisterRootPinned(start obj.Addr, size uintptr) {
	c.ctx.Roots.Register(roots.Pinned, start, size, obj.Descriptor{})
}

func (c *Collector) RegisterRootWBarrier(start obj.Addr, size uintptr, descr obj.Descriptor) {
	c.ctx.Roots.Register(roots.WBarrier, start, size, descr)
}

func (c *Collector) DeregisterRoot(start obj.Addr) bool {
	return c.ctx.Roots.Deregister(start)
}
