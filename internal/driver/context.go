// Package driver sequences a minor or major collection cycle end to end
// (spec §4.8 "Collection Driver", §4.9 "finish_gray_stack", §4.10
// "Allocation & Degraded Mode", Component 9).
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/grailbio/base/log"

	"github.com/veezhang/sgengo/internal/config"
	"github.com/veezhang/sgengo/internal/finalize"
	"github.com/veezhang/sgengo/internal/gray"
	"github.com/veezhang/sgengo/internal/heap"
	"github.com/veezhang/sgengo/internal/major"
	"github.com/veezhang/sgengo/internal/nursery"
	"github.com/veezhang/sgengo/internal/obj"
	"github.com/veezhang/sgengo/internal/pin"
	"github.com/veezhang/sgengo/internal/remset"
	"github.com/veezhang/sgengo/internal/roots"
	"github.com/veezhang/sgengo/internal/stw"
	"github.com/veezhang/sgengo/internal/workers"
)

// Context is the single collector-context object the design notes call
// for ("isolate global mutable state into a single collector context
// owned by the process; pass explicitly to components"). Every
// subsystem's package-level state lives behind a field here instead of a
// package global.
type Context struct {
	Classes obj.ClassInfo
	Cfg     config.Config

	Nursery *nursery.Nursery
	Major   *major.Backend
	Remset  remset.Backend
	Roots   *roots.Registry
	Bounds  *heap.Bounds

	Pins   pin.Queue
	Gray   gray.Stack
	Eph    finalize.EphemeronList
	Fin    finalize.FinLists
	Weak   finalize.WeakLinks
	Bridge finalize.Bridges

	STW     *stw.Protocol
	Workers *workers.Pool // nil selects the serial marking path

	Markers func(token uintptr) roots.Marker

	// AutoMajor gates step 12 of the minor-collection driver (spec
	// §4.8): when false, a minor collection never escalates itself into
	// a major one even if needMajor's predicate holds (spec §6
	// "disable/enable()" — Collect(1) still works, it's only the
	// automatic escalation that is gated).
	AutoMajor bool

	// Threads supplies conservative stack ranges for every live mutator
	// thread (spec §4.8 step 5: "every live thread stack"). Nil is
	// treated as "no threads" (useful for library-only embeddings that
	// never registered a stack).
	Threads ThreadStackProvider

	// FinSignal is notified (non-blocking) whenever a collection leaves
	// entries on a fin-ready list, waking the finalizer thread (spec
	// §4.12 "a dedicated finalizer thread... woken after each
	// collection that produced ready entries"). Nil is valid; embeddings
	// that run finalizers synchronously can poll HasReady instead.
	FinSignal chan struct{}

	// mu is the GC lock (spec §5): serializes collections and all
	// registry mutation, held by the owner thread across a full cycle.
	mu sync.Mutex

	degradedSince time.Time
	allowance     uint64
	minorCount    uint64
	majorCount    uint64

	// initState is a tri-state initialization flag (0=unstarted, 1=in
	// progress, 2=done); nothing in this package sets or reads it.
	initState int32
}

// Stats is a snapshot of collection counters, backing the embedding API's
// collection_count (spec §6).
type Stats struct {
	MinorCollections uint64
	MajorCollections uint64
	LastPause        time.Duration
	Degraded         bool
}

func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pause time.Duration
	if c.STW != nil {
		pause = c.STW.LastPause()
	}
	return Stats{
		MinorCollections: c.minorCount,
		MajorCollections: c.majorCount,
		LastPause:        pause,
		Degraded:         c.Nursery.Degraded(),
	}
}

// classSizeOf returns an object's size, falling back to the filler
// sentinel's encoded size for dead-area objects (spec §4.1, §4.5).
func (c *Context) classSizeOf(o obj.Addr) uintptr {
	if !obj.LooksLikeObjectStart(o) {
		return nursery.FillerSize(o)
	}
	vt := obj.VTable(obj.VTableWord(o))
	return c.Classes.Size(o, vt)
}

func (c *Context) descriptorOf(o obj.Addr) obj.Descriptor {
	vt := obj.VTable(obj.VTableWord(o))
	class := c.Classes.ClassOf(vt)
	return c.Classes.ReferenceBitmap(class)
}

// ctxBackground is used for the errgroup-based STW handshake and worker
// pool join; the collector has no cancellation model (spec §5
// "Cancellation & timeouts: none"), so it is always context.Background.
func ctxBackground() context.Context { return context.Background() }

// SetAutoMajor toggles automatic major-collection escalation under the GC
// lock (spec §6 "disable/enable()").
func (c *Context) SetAutoMajor(v bool) {
	c.mu.Lock()
	c.AutoMajor = v
	c.mu.Unlock()
}

func (c *Context) debugf(format string, args ...interface{}) {
	if log.At(log.Debug) {
		log.Debug.Printf(format, args...)
	}
}
