package heap

import (
	"sync/atomic"

	"github.com/veezhang/sgengo/internal/obj"
)

// Bounds tracks the process-wide lowest and highest tracked heap address,
// used by major collections to scan "the entire tracked heap" (spec
// §4.8). Per spec §5 "Memory model": "CAS is used to update heap-bounds
// min/max" — multiple sections can be registered concurrently by
// independent major-backend allocation calls outside STW.
type Bounds struct {
	lo, hi uint64 // atomic; lo defaults to ^uint64(0) meaning "unset"
}

func NewBounds() *Bounds {
	b := &Bounds{}
	atomic.StoreUint64(&b.lo, ^uint64(0))
	return b
}

// Extend widens the bounds to include [start, end) via CAS retry loops.
func (b *Bounds) Extend(start, end obj.Addr) {
	for {
		cur := atomic.LoadUint64(&b.lo)
		if cur != ^uint64(0) && cur <= uint64(start) {
			break
		}
		if atomic.CompareAndSwapUint64(&b.lo, cur, uint64(start)) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&b.hi)
		if cur >= uint64(end) {
			break
		}
		if atomic.CompareAndSwapUint64(&b.hi, cur, uint64(end)) {
			break
		}
	}
}

// Range returns [lowest_heap_address, highest_heap_address) as named in
// spec §4.8.
func (b *Bounds) Range() (obj.Addr, obj.Addr) {
	lo := atomic.LoadUint64(&b.lo)
	if lo == ^uint64(0) {
		lo = 0
	}
	return obj.Addr(lo), obj.Addr(atomic.LoadUint64(&b.hi))
}
