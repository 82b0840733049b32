package finalize

import "github.com/veezhang/sgengo/internal/obj"

// Bridges tracks runtime-defined "bridge" objects requiring cross-domain
// cycle analysis (spec glossary "Bridge", §4.9 step 4). The core does not
// implement the cycle analysis itself — that is host-runtime policy — it
// only guarantees bridge objects are gathered, copied/promoted, and
// drained from the gray stack before finalizer processing begins, and
// that at most one finalizer-promotion loop runs when bridge processing
// is active (spec §4.9 step 6: "the runtime contract").
type Bridges struct {
	Active    bool
	Candidates []obj.Addr
}

func (b *Bridges) Register(o obj.Addr) {
	if b.Active {
		b.Candidates = append(b.Candidates, o)
	}
}

// Collect copies every registered bridge candidate via copyRef and
// returns the (possibly forwarded) set, then clears the list for the next
// cycle (spec §4.9 step 4: "gather bridge objects and copy them").
func (b *Bridges) Collect(copyRef func(o obj.Addr) obj.Addr) []obj.Addr {
	if !b.Active || len(b.Candidates) == 0 {
		return nil
	}
	out := make([]obj.Addr, len(b.Candidates))
	for i, o := range b.Candidates {
		out[i] = copyRef(o)
	}
	b.Candidates = b.Candidates[:0]
	return out
}

// MaxFinalizerLoops returns how many times the finalizer-promotion loop
// (spec §4.9 step 6) may run: unbounded (denoted by <0) normally, exactly
// one when bridge processing is active.
func (b *Bridges) MaxFinalizerLoops() int {
	if b.Active {
		return 1
	}
	return -1
}
