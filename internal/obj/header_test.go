package obj

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// backing allocates a two-word-aligned scratch object for header tests;
// collector code never touches Go-managed memory this way outside tests.
func backing() Addr {
	buf := make([]uint64, 2)
	return Addr(uintptr(unsafe.Pointer(&buf[0])))
}

func TestSetPinnedThenIsPinned(t *testing.T) {
	o := backing()
	SetPinned(o)
	assert.True(t, IsPinned(o))
	assert.False(t, IsForwarded(o))
}

func TestForwardThenDecode(t *testing.T) {
	o := backing()
	target := AlignUp(0x123456) // exercise AlignUp + Forward round trip
	Forward(o, Addr(target))
	assert.True(t, IsForwarded(o))
	assert.Equal(t, Addr(target), ForwardedTo(o))
}

func TestForwardIsIdempotent(t *testing.T) {
	o := backing()
	Forward(o, Addr(0x1000))
	assert.NotPanics(t, func() { Forward(o, Addr(0x1000)) })
}

func TestForwardPanicsOnPinned(t *testing.T) {
	o := backing()
	SetPinned(o)
	assert.Panics(t, func() { Forward(o, Addr(0x1000)) })
}

func TestSetPinnedPanicsOnForwarded(t *testing.T) {
	o := backing()
	Forward(o, Addr(0x1000))
	assert.Panics(t, func() { SetPinned(o) })
}

func TestLooksLikeObjectStart(t *testing.T) {
	o := backing()
	assert.False(t, LooksLikeObjectStart(o)) // zero word

	SetVTable(o, 0xdeadbeef)
	assert.True(t, LooksLikeObjectStart(o))

	SetVTable(o, FillVTable)
	assert.False(t, LooksLikeObjectStart(o))
}

func TestClearHeader(t *testing.T) {
	o := backing()
	SetVTable(o, 42)
	SetPinned(o)
	ClearHeader(o)
	assert.Equal(t, uint64(0), VTableWord(o))
	assert.False(t, IsPinned(o))
}
