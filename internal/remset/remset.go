// Package remset implements the mutator-facing remembered-set contract
// (spec §4.4 "Remembered Set / Write Barrier", Component 5): an abstract
// log of old→young slot writes, with a pluggable physical representation.
package remset

import "github.com/veezhang/sgengo/internal/obj"

// Backend is the contract the collector core depends on: record a
// written slot, and deliver every recorded old→young slot at least once
// during the next minor collection's remset scan (spec §3 "Remembered
// set").
type Backend interface {
	// RecordPointer notes that slot was written and may now point into
	// the nursery. Must be cheap: this is the write-barrier slow path.
	RecordPointer(slot obj.Addr)

	// RegisterThread/CleanupThread manage any per-thread state backend
	// implementations keep (e.g. an SSB).
	RegisterThread(threadID uint64)
	CleanupThread(threadID uint64)

	// PrepareForMinorCollection/PrepareForMajorCollection run before STW
	// pin/scan begins.
	PrepareForMinorCollection()
	PrepareForMajorCollection()

	// BeginScanRemsets/FinishScanRemsets bracket remset scanning during
	// STW (spec §4.8 step 6). FinishScanRemsets calls visit once per
	// recorded slot; it must not miss a slot recorded before
	// PrepareForMinorCollection, except for slots in the nursery or on a
	// mutator stack per the barrier contract.
	BeginScanRemsets()
	FinishScanRemsets(visit func(slot obj.Addr))

	// FinishMinorCollection lets the backend reset/compact its storage
	// after a minor cycle (e.g. truncate SSBs, clear dirty cards for
	// slots that no longer point into the nursery).
	FinishMinorCollection()

	// Capability flags (spec §4.6 "Optional: card-table support
	// advertised via a capability flag").
	SupportsCardTable() bool
}

// PtrInNursery is the fast-path check callers should perform before
// invoking a barrier at all (spec §4.4 "Optimization"): when slot already
// lives in the nursery, the barrier is a no-op because a minor collection
// scans the whole nursery regardless.
func PtrInNursery(slot, nurseryLo, nurseryHi obj.Addr) bool {
	return slot >= nurseryLo && slot < nurseryHi
}
