package heap

import "unsafe"

// addrOf returns the address of a byte slice's backing array. Isolated in
// its own function so the one unsafe crossing point in this file is easy
// to audit.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
