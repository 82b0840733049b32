package driver

import "github.com/veezhang/sgengo/internal/obj"

// ThreadRange is one live mutator thread's conservative stack extent.
type ThreadRange struct {
	Start, End obj.Addr
	Precise    bool // true if this thread supports precise stack maps
}

// ThreadStackProvider is the narrow collaborator the driver needs from
// the thread registry (spec §1 "Thread registry ... peripheral to the
// engineering challenge", consumed via this interface per spec §6).
//
// StackRanges and SelfSnapshot are split because the initiating thread
// (spec §4.7: "all other registered threads are signaled to suspend")
// is never suspended — its own range must never be treated as a live,
// now-frozen stack the way a suspended thread's is. SelfSnapshot gives
// the driver the initiator's own captured range explicitly instead of
// letting it fall out of a StackRanges call that would otherwise also
// include a thread that is still running.
type ThreadStackProvider interface {
	// StackRanges returns the conservative stack extent of every live
	// thread except excludeID.
	StackRanges(excludeID uint64) []ThreadRange
	// SelfSnapshot returns the initiating thread's own captured range,
	// or ok=false if id is not a registered thread (e.g. id==0, a
	// caller that forced a collection without registering itself).
	SelfSnapshot(id uint64) (rng ThreadRange, ok bool)
}
