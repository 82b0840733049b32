package sgengo

import (
	"github.com/veezhang/sgengo/internal/obj"
	"github.com/veezhang/sgengo/internal/remset"
)

// The six write barriers (spec §4.4). Every one follows the same shape:
// perform the mutator's store (when it is ours to perform, rather than
// already done by the caller's own memmove), then record the written
// slot with the remembered set unless the fast-path check proves it can
// never matter.
//
// ptrInNursery short-circuits using the nursery's current extent; a
// slot inside the nursery is already covered by the next minor
// collection's full scan, so recording it would be wasted work.
func (c *Collector) ptrInNursery(slot obj.Addr) bool {
	lo := c.ctx.Nursery.Section.Arena.Base
	hi := c.ctx.Nursery.Section.Arena.End()
	return remset.PtrInNursery(slot, lo, hi)
}

func (c *Collector) record(slot obj.Addr) {
	if c.ptrInNursery(slot) {
		return
	}
	c.ctx.Remset.RecordPointer(slot)
}

// WBarrierSetField stores value into owner's fieldSlot and records the
// slot if it may now hold a reference into the nursery.
func (c *Collector) WBarrierSetField(owner, fieldSlot obj.Addr, value obj.Addr) {
	obj.WriteWord(fieldSlot, uint64(value))
	c.record(fieldSlot)
}

// WBarrierSetArrayRef is WBarrierSetField's array-element counterpart;
// arr is unused by the core (no per-array remset bucket is kept) but is
// part of the contract so a card-table backend could special-case it.
func (c *Collector) WBarrierSetArrayRef(arr, slot, value obj.Addr) {
	obj.WriteWord(slot, uint64(value))
	c.record(slot)
}

// WBarrierArrayRefCopy moves count reference slots from src to dst (an
// overlap-safe element-wise copy) and records every destination slot.
func (c *Collector) WBarrierArrayRefCopy(dst, src obj.Addr, count uintptr) {
	if dst == src {
		return
	}
	if dst < src {
		for i := uintptr(0); i < count; i++ {
			s := src.Add(i * obj.WordSize)
			d := dst.Add(i * obj.WordSize)
			obj.WriteWord(d, obj.ReadWord(s))
			c.record(d)
		}
		return
	}
	for i := count; i > 0; i-- {
		s := src.Add((i - 1) * obj.WordSize)
		d := dst.Add((i - 1) * obj.WordSize)
		obj.WriteWord(d, obj.ReadWord(s))
		c.record(d)
	}
}

// WBarrierGenericStore stores value into slot and records it; used when
// the caller does not know statically whether slot belongs to a field,
// an array element, or a root.
func (c *Collector) WBarrierGenericStore(slot, value obj.Addr) {
	obj.WriteWord(slot, uint64(value))
	c.record(slot)
}

// WBarrierGenericNoStore records slot without writing it, for a caller
// that already performed the store itself (e.g. inside a larger memmove)
// and only needs the remembered-set side effect.
func (c *Collector) WBarrierGenericNoStore(slot obj.Addr) {
	c.record(slot)
}

// WBarrierValueCopy copies count instances of class from src to dst (a
// value-type array, e.g. a slice of structs containing references) and
// records every reference slot the copy touches. The host's ClassInfo
// must implement obj.ValueClassInfo for this barrier to know the value
// type's size and layout; otherwise it panics, which is the same
// invariant-violation treatment spec §7 calls for when a callback
// contract is unmet.
func (c *Collector) WBarrierValueCopy(dst, src obj.Addr, count uintptr, class obj.Class) {
	vci, ok := c.ctx.Classes.(obj.ValueClassInfo)
	if !ok {
		panic("sgengo: wbarrier_value_copy requires a ValueClassInfo host callback")
	}
	size := vci.ValueSize(class)
	descr := vci.ReferenceBitmap(class)
	for i := uintptr(0); i < count; i++ {
		s := src.Add(i * size)
		d := dst.Add(i * size)
		copy(obj.Bytes(d, size), obj.Bytes(s, size))
		obj.ScanByDescriptor(d, descr, c.record)
	}
}

// WBarrierObjectCopy copies one whole heap object from src to dst
// (shallow clone) and records every reference slot the copy touches.
func (c *Collector) WBarrierObjectCopy(dst, src obj.Addr) {
	vt := obj.VTable(obj.VTableWord(src))
	size := c.ctx.Classes.Size(src, vt)
	copy(obj.Bytes(dst, size), obj.Bytes(src, size))

	class := c.ctx.Classes.ClassOf(vt)
	descr := c.ctx.Classes.ReferenceBitmap(class)
	obj.ScanByDescriptor(dst, descr, c.record)
}
