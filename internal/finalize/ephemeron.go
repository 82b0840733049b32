// Package finalize implements the reachability post-passes that run after
// the gray stack first drains: ephemerons, bridges, finalizers, and
// disappearing links (spec §4.9 "finish_gray_stack", §4.12, Component
// 10).
package finalize

import "github.com/veezhang/sgengo/internal/obj"

// EphemeronPair is one (key,value) slot inside a registered ephemeron
// array: value is reachable only while key is reachable (spec §3
// "Ephemeron link node").
type EphemeronPair struct {
	Key, Value obj.Addr // addresses of the slots, not the referents
}

// EphemeronArray is registered by the runtime when an ephemeron array is
// allocated (spec §3 "Lifecycles"); Array is the strong edge to the
// backing array object itself.
type EphemeronArray struct {
	Array obj.Addr
	Pairs []EphemeronPair
}

// EphemeronList holds every currently-registered ephemeron array. It is
// owned by the driver and mutated only from the owner thread outside of
// marking (spec §5 "Intra-collector").
type EphemeronList struct {
	arrays []*EphemeronArray
}

func (l *EphemeronList) Register(a *EphemeronArray) { l.arrays = append(l.arrays, a) }

// Remove drops arrays whose backing Array slot no longer resolves to a
// live object (spec §3 "Lifecycles": "removed when the array itself
// becomes unreachable").
func (l *EphemeronList) Remove(isLive func(obj.Addr) bool) {
	out := l.arrays[:0]
	for _, a := range l.arrays {
		if isLive(a.Array) {
			out = append(out, a)
		}
	}
	l.arrays = out
}

// Tombstone is the sentinel written into a dead ephemeron key slot (spec
// §4.9 step 8).
const Tombstone = ^uint64(0)

// Pass runs one round of the ephemeron fixpoint (spec §4.9 step 3/7):
// for every live array, promote the array itself, then for each pair
// whose key is reachable, copy value. promoteArray copies/marks the
// backing array and reports whether it moved from nursery to old space;
// isReachable/copyRef are the standard reachability primitives supplied
// by the driver. It returns whether any new pair became reachable this
// round, so the caller can repeat "until a full round marks nothing
// new".
func (l *EphemeronList) Pass(isReachable func(o obj.Addr) bool, copyRef func(slot obj.Addr), promoteArray func(arr obj.Addr) (movedFromNursery bool), addRemset func(slot obj.Addr)) bool {
	progressed := false
	for _, a := range l.arrays {
		if !isReachable(a.Array) {
			continue
		}
		movedFromNursery := promoteArray(a.Array)
		for i := range a.Pairs {
			p := &a.Pairs[i]
			if p.Key == 0 {
				continue // already tombstoned
			}
			// Key is the slot's address, not the key object's; isReachable
			// takes an object address, so the key referent must be read out
			// of the slot first (spec §3 "Ephemeron link node": "value is
			// reachable only while key is reachable" refers to the key
			// object, not the slot that happens to hold it).
			keyReferent := obj.Addr(obj.ReadWord(p.Key))
			if !isReachable(keyReferent) {
				continue
			}
			value := obj.Addr(obj.ReadWord(p.Value))
			wasLive := isReachable(value)
			copyRef(p.Value)
			if !wasLive && isReachable(value) {
				progressed = true
			}
			if movedFromNursery && addRemset != nil {
				addRemset(p.Key)
				addRemset(p.Value)
			}
		}
	}
	return progressed
}

// ClearDead tombstones every pair whose key remains unreachable after the
// fixpoint settles (spec §4.9 step 8): "set key to tombstone, value to
// null".
func (l *EphemeronList) ClearDead(isReachable func(o obj.Addr) bool) {
	for _, a := range l.arrays {
		for i := range a.Pairs {
			p := &a.Pairs[i]
			if p.Key == 0 {
				continue
			}
			keyReferent := obj.Addr(obj.ReadWord(p.Key))
			if isReachable(keyReferent) {
				continue
			}
			obj.WriteWord(p.Key, Tombstone)
			obj.WriteWord(p.Value, 0)
			a.Pairs[i] = EphemeronPair{}
		}
	}
}
