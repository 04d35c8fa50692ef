// Package sysmem contains the system memory sources that host memory allocators acquire blocks from.
//
// A Provider hands out raw, uninitialized memory and takes it back. Memory produced by a Provider
// is not scanned by the Go garbage collector, so it must never be the only place a Go pointer is stored.
package sysmem

import (
	"unsafe"

	"github.com/pkg/errors"
)

// UnknownBlockError is returned by providers that track their blocks when asked to release memory
// they did not produce, or memory they have already released.
var UnknownBlockError error = errors.New("block was not acquired from this provider")

// Provider is a source of raw memory blocks
type Provider interface {
	// Acquire returns a pointer to a block of at least size bytes whose address is a multiple of
	// alignment. size is always positive and alignment is always a power of two.
	Acquire(size int, alignment uint) (unsafe.Pointer, error)
	// Release returns a block to the system. size is the value that was passed to Acquire for
	// the block. The block must not be accessed after Release is called.
	Release(ptr unsafe.Pointer, size int) error
}
