package remset

import (
	"github.com/veezhang/sgengo/internal/obj"
)

// CardBits is the log2 of the card size; a store anywhere inside a
// CardSize-byte region dirties the same byte (spec §4.4 "Card Table").
const (
	CardBits = 9 // 512-byte cards
	CardSize = 1 << CardBits
)

// CardTableBackend implements Backend as a byte array indexed by
// address>>CardBits (spec §4.4). It advertises card-table support so a
// major backend capable of card-based scanning (spec §4.6) can use it
// directly instead of a per-slot visit list.
type CardTableBackend struct {
	heapBase obj.Addr
	cards    []byte
}

// NewCardTableBackend covers [heapBase, heapBase+heapSize).
func NewCardTableBackend(heapBase obj.Addr, heapSize uintptr) *CardTableBackend {
	n := (heapSize + CardSize - 1) >> CardBits
	return &CardTableBackend{heapBase: heapBase, cards: make([]byte, n)}
}

func (c *CardTableBackend) cardIndex(slot obj.Addr) int {
	return int((slot - c.heapBase) >> CardBits)
}

// RecordPointer dirties slot's card. A plain byte store is sufficient:
// the field is idempotent (re-dirtying an already-dirty card is a no-op)
// and a racing writer can only ever set the same value, so no atomic
// read-modify-write is needed — only publication of the 1 matters, and a
// single-byte store is already atomic on every platform Go targets.
func (c *CardTableBackend) RecordPointer(slot obj.Addr) {
	idx := c.cardIndex(slot)
	if idx < 0 || idx >= len(c.cards) {
		return
	}
	c.cards[idx] = 1
}

func (c *CardTableBackend) RegisterThread(uint64) {}
func (c *CardTableBackend) CleanupThread(uint64)  {}
func (c *CardTableBackend) PrepareForMinorCollection() {}
func (c *CardTableBackend) PrepareForMajorCollection() {}
func (c *CardTableBackend) BeginScanRemsets()           {}

// FinishScanRemsets walks dirty cards and reports every slot-aligned word
// in the card as a candidate slot (spec §4.4: "scan walks dirty cards to
// produce candidate slots"). This over-approximates the original slot
// set, which is safe: visit is expected to no-op on slots that do not
// currently hold a nursery pointer.
func (c *CardTableBackend) FinishScanRemsets(visit func(slot obj.Addr)) {
	for i, dirty := range c.cards {
		if dirty == 0 {
			continue
		}
		base := c.heapBase.Add(uintptr(i) << CardBits)
		for off := uintptr(0); off < CardSize; off += obj.WordSize {
			visit(base.Add(off))
		}
	}
}

func (c *CardTableBackend) FinishMinorCollection() {
	for i := range c.cards {
		c.cards[i] = 0
	}
}

func (c *CardTableBackend) SupportsCardTable() bool { return true }
