package sysmem

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/hostmem/memutils"
)

// Heap is a Provider that draws blocks from the Go heap. Blocks are over-allocated byte slices
// that are trimmed to the requested alignment, and Release simply drops them for the garbage
// collector to reclaim once nothing points into them.
type Heap struct{}

// NewHeap creates a Heap provider
func NewHeap() *Heap {
	return &Heap{}
}

func (h *Heap) Acquire(size int, alignment uint) (ptr unsafe.Pointer, err error) {
	if size < 1 {
		return nil, errors.Newf("cannot acquire a block of %d bytes", size)
	}
	err = memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}
	if size > math.MaxInt-int(alignment) {
		return nil, errors.Newf("a block of %d bytes aligned to %d overflows the address space", size, alignment)
	}

	defer func() {
		// make panics rather than failing when the runtime refuses an oversized slice
		if r := recover(); r != nil {
			ptr = nil
			err = errors.Newf("heap refused a block of %d bytes: %v", size, r)
		}
	}()

	buffer := make([]byte, size+int(alignment)-1)
	address := uintptr(unsafe.Pointer(&buffer[0]))
	shift := (uintptr(alignment) - address&uintptr(alignment-1)) & uintptr(alignment-1)

	return unsafe.Pointer(&buffer[shift]), nil
}

func (h *Heap) Release(ptr unsafe.Pointer, size int) error {
	return nil
}
