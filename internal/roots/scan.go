package roots

import (
	"github.com/grailbio/base/bitset"

	"github.com/veezhang/sgengo/internal/gray"
	"github.com/veezhang/sgengo/internal/obj"
)

// CopyFunc relays one discovered, non-null reference slot to the
// collector (it reads *slot, copies/forwards the referent if needed, and
// writes the new value back). Implemented by internal/driver.
type CopyFunc func(slot obj.Addr)

// BitsPerWord mirrors spec §4.3's COMPLEX descriptor layout constant.
const BitsPerWord = bitset.BitsPerWord

// Marker is the runtime-supplied callback for DescrUser roots (spec §4.3
// "USER"). relay must be called once per live reference slot found.
type Marker func(start obj.Addr, size uintptr, relay CopyFunc)

// Scan iterates every record of kind and walks it according to its
// descriptor, invoking copyFn for every non-null reference slot and
// draining queue after each slot per spec §4.3 ("apply copy_fn(slot) and
// drain the gray stack"). markers resolves a DescrUser token to its
// callback; it may be nil if kind never carries USER descriptors.
func (r *Registry) Scan(kind Kind, copyFn CopyFunc, queue *gray.Stack, scan gray.ScanFunc, markers func(token uintptr) Marker) {
	for _, rec := range r.Snapshot(kind) {
		switch rec.Descr.Kind {
		case obj.DescrBitmap:
			scanBitmapWord(rec.Start, uint64(rec.Descr.Bits), copyFn, queue, scan)
		case obj.DescrComplex:
			scanComplex(rec.Start, rec.Descr.Bits, copyFn, queue, scan)
		case obj.DescrUser:
			if markers == nil {
				continue
			}
			m := markers(rec.Descr.Bits)
			if m == nil {
				continue
			}
			m(rec.Start, rec.Size, func(slot obj.Addr) {
				relaySlot(slot, copyFn, queue, scan)
			})
		case obj.DescrRunLength:
			// Reserved, unused by this core (spec §3).
		}
	}
}

func scanBitmapWord(start obj.Addr, bits uint64, copyFn CopyFunc, queue *gray.Stack, scan gray.ScanFunc) {
	for i := 0; i < 64 && bits != 0; i, bits = i+1, bits>>1 {
		if bits&1 == 0 {
			continue
		}
		relaySlot(start.Add(uintptr(i)*obj.WordSize), copyFn, queue, scan)
	}
}

// scanComplex reads an out-of-line bitmap block: bitmap_data[0] is a word
// count, followed by that many machine words, each covering BitsPerWord
// consecutive slots (spec §4.3 "COMPLEX").
func scanComplex(start obj.Addr, blockAddr uintptr, copyFn CopyFunc, queue *gray.Stack, scan gray.ScanFunc) {
	block := obj.Addr(blockAddr)
	wordCount := obj.ReadWord(block)
	for w := uint64(0); w < wordCount; w++ {
		bits := obj.ReadWord(block.Add(uintptr(w+1) * obj.WordSize))
		base := start.Add(uintptr(w) * BitsPerWord * obj.WordSize)
		for i := 0; i < BitsPerWord; i++ {
			if !bitset.Test([]uint64{bits}, i) {
				continue
			}
			relaySlot(base.Add(uintptr(i)*obj.WordSize), copyFn, queue, scan)
		}
	}
}

func relaySlot(slot obj.Addr, copyFn CopyFunc, queue *gray.Stack, scan gray.ScanFunc) {
	val := obj.Addr(obj.ReadWord(slot))
	if val.IsZero() {
		return
	}
	copyFn(slot)
	if queue != nil && scan != nil {
		queue.Drain(-1, scan)
	}
}
