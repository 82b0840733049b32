package finalize

import "github.com/veezhang/sgengo/internal/obj"

// hiddenBit inverts every bit of a stored address so conservative scans
// never treat it as a real pointer candidate (spec §3 "Disappearing
// link": "store the pointer bit-inverted so that conservative scans do
// not keep the target alive").
const hiddenBit = ^uint64(0)

func hide(a obj.Addr) uint64   { return uint64(a) ^ hiddenBit }
func unhide(w uint64) obj.Addr { return obj.Addr(w ^ hiddenBit) }

// WeakLink is a disappearing link cell (spec §3 "Disappearing link"):
// Slot holds the hidden reference; Track selects whether the link is
// cleared only on death (track=false, "non-tracking"/before finalization)
// or also survives resurrection by a finalizer (track=true, cleared only
// after finalization has run).
type WeakLink struct {
	Slot  obj.Addr // address of the storage cell holding the hidden ref
	Track bool
}

// WeakLinks owns all registered disappearing links.
type WeakLinks struct {
	links []*WeakLink
}

func (w *WeakLinks) Add(slot obj.Addr, track bool) *WeakLink {
	l := &WeakLink{Slot: slot, Track: track}
	w.links = append(w.links, l)
	return l
}

func (w *WeakLinks) Remove(l *WeakLink) {
	for i, e := range w.links {
		if e == l {
			w.links[i] = w.links[len(w.links)-1]
			w.links = w.links[:len(w.links)-1]
			return
		}
	}
}

// Set stores target into l, hidden.
func Set(l *WeakLink, target obj.Addr) {
	obj.WriteWord(l.Slot, hide(target))
}

// Get reveals the current target, or the zero address if cleared.
func Get(l *WeakLink) obj.Addr {
	w := obj.ReadWord(l.Slot)
	if w == 0 {
		return 0 // cleared by sweep, or never set
	}
	return unhide(w)
}

// NullNonTracking clears every track=false link whose target did not
// survive (spec §4.9 step 5, "before_finalization=true" nulls
// non-tracking links before the finalizer loop runs, since those targets
// must not be resurrectable through the link). resolve maps a (possibly
// forwarded) target to its new address, or the zero address if it did
// not survive.
func (w *WeakLinks) NullNonTracking(resolve func(obj.Addr) obj.Addr) {
	w.sweep(false, resolve)
}

// NullTracking clears every track=true link whose target did not survive
// finalization, run to a fixpoint after finalizers have had a chance to
// resurrect their target (spec §4.9 step 9).
func (w *WeakLinks) NullTracking(resolve func(obj.Addr) obj.Addr) {
	w.sweep(true, resolve)
}

func (w *WeakLinks) sweep(track bool, resolve func(obj.Addr) obj.Addr) {
	for _, l := range w.links {
		if l.Track != track {
			continue
		}
		target := Get(l)
		if target.IsZero() {
			continue
		}
		newTarget := resolve(target)
		if newTarget.IsZero() {
			obj.WriteWord(l.Slot, 0)
			continue
		}
		Set(l, newTarget)
	}
}
