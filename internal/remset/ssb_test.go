package remset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veezhang/sgengo/internal/obj"
)

func TestSSBBackendRecordAndScan(t *testing.T) {
	b := NewSSBBackend()
	b.RegisterThread(1)
	b.RegisterThread(2)

	b.RecordPointerFor(1, obj.Addr(0x1000))
	b.RecordPointerFor(2, obj.Addr(0x2000))
	b.RecordPointer(obj.Addr(0x3000)) // unregistered/thread-0 path

	var seen []obj.Addr
	b.FinishScanRemsets(func(slot obj.Addr) { seen = append(seen, slot) })

	assert.ElementsMatch(t, []obj.Addr{0x1000, 0x2000, 0x3000}, seen)
	assert.False(t, b.SupportsCardTable())
}

func TestSSBBackendOverflowSpills(t *testing.T) {
	b := NewSSBBackend()
	b.RegisterThread(1)
	for i := 0; i < ssbSize+10; i++ {
		b.RecordPointerFor(1, obj.Addr(i+1))
	}

	count := 0
	b.FinishScanRemsets(func(obj.Addr) { count++ })
	assert.Equal(t, ssbSize+10, count)
}

func TestSSBBackendFinishMinorCollectionClears(t *testing.T) {
	b := NewSSBBackend()
	b.RegisterThread(1)
	b.RecordPointerFor(1, obj.Addr(0x10))
	b.FinishMinorCollection()

	count := 0
	b.FinishScanRemsets(func(obj.Addr) { count++ })
	assert.Equal(t, 0, count)
}

func TestSSBBackendCleanupThreadSpillsRemaining(t *testing.T) {
	b := NewSSBBackend()
	b.RegisterThread(1)
	b.RecordPointerFor(1, obj.Addr(0x42))
	b.CleanupThread(1)

	var seen []obj.Addr
	b.FinishScanRemsets(func(slot obj.Addr) { seen = append(seen, slot) })
	assert.Equal(t, []obj.Addr{0x42}, seen)
}
