// Package major defines the pluggable old-generation backend contract
// (spec §4.6, Component 6) and a reference mark-sweep implementation. The
// contract is modeled as a capability record of function values, per the
// design note "model as a capability record (function pointers + flags),
// not inheritance" — Go has no inheritance to reach for in the first
// place, but the record-of-closures shape keeps backend selection (spec
// §6 major=marksweep|...) a plain value switch instead of a type switch.
package major

import "github.com/veezhang/sgengo/internal/obj"

// Backend is the full set of operations the collector core requires from
// the old generation (spec §4.6 "Required operations").
type Backend struct {
	Name string

	AllocHeapRegion func(size uintptr) error
	AllocObject     func(size uintptr, vt obj.VTable) (obj.Addr, error)

	// Iterate walks every object the backend owns; pinnedOnly restricts
	// the walk to pinned objects (spec §4.6 "iterate objects").
	Iterate func(pinnedOnly bool, visit func(o obj.Addr))

	PinObjectsFromAddresses func(addrs []obj.Addr) []obj.Addr

	// CopyOrMarkObject is used during major scan: mark-sweep backends
	// mark in place, copying backends copy and forward.
	CopyOrMarkObject func(o obj.Addr) obj.Addr

	// CopyObject promotes a nursery survivor into the major heap during
	// minor collection (spec §4.8 step 6/7/9). parallel selects a
	// lock-free or locked allocation path.
	CopyObject func(o obj.Addr, size uintptr, parallel bool) (obj.Addr, error)

	ScanObject func(o obj.Addr, relay func(slot obj.Addr))

	// IsMarked reports whether o was reached during the current major
	// collection's mark phase; the driver's finish_gray_stack fixpoint
	// uses this as its reachability predicate once major marking starts
	// (mark-sweep backends have no header bit to inspect the way a
	// moving collector's FORWARDED tag gives minor collection for free).
	IsMarked func(o obj.Addr) bool

	StartMajorCollection  func()
	FinishMajorCollection func()
	Sweep                 func() (freed, live int)

	FreeSectionCount func() int
	UsedSectionCount func() int

	// SupportsCardTable advertises whether this backend can consume a
	// card-table remset directly (spec §4.6 "Optional").
	SupportsCardTable bool
}

// Idempotent wraps a CopyObject function so repeated calls on an
// already-forwarded object are safe no-ops, per the contract in spec
// §4.6: "idempotent on already-forwarded objects". Backends built with
// NewMarkSweep already satisfy this directly; this helper exists for
// backends assembled ad hoc (e.g. in tests) that forget to.
func Idempotent(copyObject func(obj.Addr, uintptr, bool) (obj.Addr, error)) func(obj.Addr, uintptr, bool) (obj.Addr, error) {
	return func(o obj.Addr, size uintptr, parallel bool) (obj.Addr, error) {
		if obj.IsForwarded(o) {
			return obj.ForwardedTo(o), nil
		}
		return copyObject(o, size, parallel)
	}
}
