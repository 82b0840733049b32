// Package heap owns OS page allocation, the nursery's logical layout, and
// the CAS-updated heap bounds tracked across both generations (spec §4
// Component 1, "Heap Geometry & OS Memory"). It is the lowest-level
// package in the module: everything else addresses the managed heap
// through the Section and Bounds types defined here.
package heap

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/veezhang/sgengo/internal/obj"
)

// ScanStartSize is the bucket size backing each section's scan-start
// table (spec §3 "Heap sections"): one entry per 4 KiB of arena.
const ScanStartSize = 4096

// Arena is an anonymous, private OS mapping reserved with mmap. It backs
// either the nursery or a major-heap block. grailbio-bio's fusion package
// uses the same unix.Mmap/unix.Madvise pair for its flat kmer table; the
// collector borrows it here for the same reason — a large, zero-filled,
// page-aligned region the allocator can bump-allocate out of without a
// per-object OS call.
type Arena struct {
	Base obj.Addr
	Size uintptr
	mem  []byte
}

// NewArena reserves size bytes (rounded up to the page size) of zeroed,
// committed memory.
func NewArena(size uintptr) (*Arena, error) {
	pageSize := uintptr(unix.Getpagesize())
	size = (size + pageSize - 1) &^ (pageSize - 1)
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "heap: reserve arena")
	}
	a := &Arena{
		Size: size,
		mem:  mem,
	}
	a.Base = obj.Addr(uintptr(addrOf(mem)))
	return a, nil
}

// Release returns the arena's pages to the OS. Must not be called while
// any object inside it may still be reachable.
func (a *Arena) Release() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	if err != nil {
		return errors.Wrap(err, "heap: release arena")
	}
	return nil
}

// End returns the address one past the arena's last byte.
func (a *Arena) End() obj.Addr { return a.Base.Add(a.Size) }

// Contains reports whether addr falls inside [Base, End).
func (a *Arena) Contains(addr obj.Addr) bool {
	return addr >= a.Base && addr < a.End()
}

// Decommit advises the kernel the range is no longer needed, without
// releasing the virtual address reservation. No collector code calls it.
func (a *Arena) Decommit(start obj.Addr, n uintptr) error {
	off := int(start - a.Base)
	if off < 0 || off+int(n) > len(a.mem) {
		return errors.New("heap: decommit range out of bounds")
	}
	return unix.Madvise(a.mem[off:off+int(n)], unix.MADV_DONTNEED)
}
