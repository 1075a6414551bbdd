//go:build (linux || darwin) && (amd64 || arm64)

package frame

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// allocEvalStack reserves slots*8 bytes plus one trailing PROT_NONE
// guard page via mmap, grounded on tinyrange-rtg's per-OS/arch runtime
// backing-store convention. The guard page is defense in depth: the
// software bounds check in Stack.allocEvalSlots is what actually
// enforces StackOverflow, same as leanclr's plain calloc'd buffer; a
// wild write past EvalTop from a bug elsewhere still faults instead of
// corrupting adjacent memory.
func allocEvalStack(slots uint32) ([]uint64, func(), error) {
	pageSize := unix.Getpagesize()
	dataBytes := roundUp(int(slots)*8, pageSize)
	total := dataBytes + pageSize

	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	if err := unix.Mprotect(mem[dataBytes:], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mem)
		return nil, nil, err
	}

	slice := unsafe.Slice((*uint64)(unsafe.Pointer(&mem[0])), slots)
	release := func() { _ = unix.Munmap(mem) }
	return slice, release, nil
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return n + (multiple - n%multiple)
}
