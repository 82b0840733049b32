package obj

// DescrKind selects how a root record's reference slots are discovered
// (spec §3 "Root record", §4.3).
type DescrKind uint8

const (
	// DescrBitmap packs up to one machine word of per-slot bits inline.
	DescrBitmap DescrKind = iota
	// DescrComplex points at an out-of-line bitmap block.
	DescrComplex
	// DescrUser delegates to a runtime-supplied marker callback.
	DescrUser
	// DescrRunLength is reserved by spec §3 and unused by this core.
	DescrRunLength
)

// Descriptor is the payload attached to a root record. Bits holds either
// the inline bitmap (DescrBitmap), the address of a bitmap block
// (DescrComplex), or an opaque marker-function token (DescrUser).
type Descriptor struct {
	Kind DescrKind
	Bits uintptr
}

// Class identifies an object's class as the embedding runtime names it;
// the collector never interprets it beyond passing it back into
// ReferenceBitmap.
type Class uintptr

// VTable is the raw word 0 of an object header. The collector core never
// owns class metadata — it only relays the word it read from the header
// into the runtime's ClassInfo callback.
type VTable uint64

// ClassInfo is the narrow, out-of-scope collaborator described in spec §1
// and §6: the only way the collector learns an object's size and
// reference layout. It must be supplied by the host runtime.
type ClassInfo interface {
	// Size returns the size in bytes of the object at vt's object.
	Size(obj Addr, vt VTable) uintptr
	// ClassOf maps a vtable word to a class token.
	ClassOf(vt VTable) Class
	// ReferenceBitmap returns the reference descriptor for class.
	ReferenceBitmap(class Class) Descriptor
}

// ArrayClassInfo is an optional extension a host implements when it wants
// alloc_array(vt, count) support (spec §6): the collector has no notion
// of element layout on its own, so a host that never allocates arrays
// through this API does not need to implement it.
type ArrayClassInfo interface {
	ClassInfo
	// ArraySize returns the total byte size of an array of vt's element
	// type holding count elements, header included.
	ArraySize(vt VTable, count uintptr) uintptr
}

// ValueClassInfo is an optional extension a host implements when it wants
// wbarrier_value_copy support (spec §4.4): unlike a heap object, a value
// type has no header to read a vtable from, so the collector cannot size
// it without help.
type ValueClassInfo interface {
	ClassInfo
	// ValueSize returns the byte size of one instance of class.
	ValueSize(class Class) uintptr
}
