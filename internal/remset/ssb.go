package remset

import (
	"sync"

	"github.com/veezhang/sgengo/internal/obj"
)

// ssbSize is the fixed length of each thread's sequential store buffer
// (spec §4.4 "Sequential Store Buffer").
const ssbSize = 1024

type ssb struct {
	slots [ssbSize]obj.Addr
	idx   int
}

// SSBBackend implements Backend as a per-thread sequential store buffer
// that overflow-flushes into a shared, locked slice. It is the simpler of
// the two backends and the default (spec §6 config key wbarrier=remset).
type SSBBackend struct {
	mu      sync.Mutex
	buffers map[uint64]*ssb
	spilled []obj.Addr
}

func NewSSBBackend() *SSBBackend {
	return &SSBBackend{buffers: make(map[uint64]*ssb)}
}

func (b *SSBBackend) RegisterThread(threadID uint64) {
	b.mu.Lock()
	b.buffers[threadID] = &ssb{}
	b.mu.Unlock()
}

func (b *SSBBackend) CleanupThread(threadID uint64) {
	b.mu.Lock()
	if buf, ok := b.buffers[threadID]; ok {
		b.spilled = append(b.spilled, buf.slots[:buf.idx]...)
		delete(b.buffers, threadID)
	}
	b.mu.Unlock()
}

// RecordPointerFor pushes slot onto threadID's buffer, flushing to the
// shared spill list on overflow (spec §4.4: "pushes slot on miss and
// flushes on overflow"). The write barriers in package sgengo go through
// RecordPointer, which files every slot under thread 0.
func (b *SSBBackend) RecordPointerFor(threadID uint64, slot obj.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[threadID]
	if !ok {
		buf = &ssb{}
		b.buffers[threadID] = buf
	}
	if buf.idx == len(buf.slots) {
		b.spilled = append(b.spilled, buf.slots[:buf.idx]...)
		buf.idx = 0
	}
	buf.slots[buf.idx] = slot
	buf.idx++
}

// RecordPointer satisfies Backend for callers with no thread context;
// such slots are filed under thread 0's buffer.
func (b *SSBBackend) RecordPointer(slot obj.Addr) {
	b.RecordPointerFor(0, slot)
}

func (b *SSBBackend) PrepareForMinorCollection() {}
func (b *SSBBackend) PrepareForMajorCollection() {}
func (b *SSBBackend) BeginScanRemsets()           {}

// FinishScanRemsets visits every slot recorded by every thread's buffer
// plus the spill list, satisfying "deliver every recorded old->young slot
// at least once" (spec §3).
func (b *SSBBackend) FinishScanRemsets(visit func(slot obj.Addr)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.spilled {
		visit(s)
	}
	for _, buf := range b.buffers {
		for i := 0; i < buf.idx; i++ {
			visit(buf.slots[i])
		}
	}
}

// FinishMinorCollection truncates all buffers: every slot has been
// visited, and any that still hold a nursery pointer was re-recorded by
// the copying barrier during promotion (spec §4.8 step 6: "if its target
// is in the nursery, the target is copied").
func (b *SSBBackend) FinishMinorCollection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spilled = b.spilled[:0]
	for _, buf := range b.buffers {
		buf.idx = 0
	}
}

func (b *SSBBackend) SupportsCardTable() bool { return false }
