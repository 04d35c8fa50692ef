package sysmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"
)

// Counting wraps another Provider and keeps track of every block that has been acquired through
// it and not yet released. It rejects releases of blocks it is not tracking, which makes it
// useful for verifying that a consumer returns each block exactly once.
type Counting struct {
	provider    Provider
	outstanding *swiss.Map[uintptr, int]

	acquired         int
	released         int
	outstandingBytes int
}

// NewCounting wraps provider. If provider is nil, a Heap provider is used.
func NewCounting(provider Provider) *Counting {
	if provider == nil {
		provider = NewHeap()
	}

	return &Counting{
		provider:    provider,
		outstanding: swiss.NewMap[uintptr, int](16),
	}
}

func (c *Counting) Acquire(size int, alignment uint) (unsafe.Pointer, error) {
	ptr, err := c.provider.Acquire(size, alignment)
	if err != nil {
		return nil, err
	}

	c.outstanding.Put(uintptr(ptr), size)
	c.acquired++
	c.outstandingBytes += size
	return ptr, nil
}

func (c *Counting) Release(ptr unsafe.Pointer, size int) error {
	recordedSize, ok := c.outstanding.Get(uintptr(ptr))
	if !ok {
		return errors.Wrapf(UnknownBlockError, "releasing %p", ptr)
	}
	if recordedSize != size {
		return errors.Newf("releasing %p with size %d, but it was acquired with size %d", ptr, size, recordedSize)
	}

	err := c.provider.Release(ptr, size)
	if err != nil {
		return err
	}

	c.outstanding.Delete(uintptr(ptr))
	c.released++
	c.outstandingBytes -= size
	return nil
}

// Outstanding is the number of blocks that have been acquired and not yet released
func (c *Counting) Outstanding() int {
	return c.outstanding.Count()
}

// OutstandingBytes is the total size of the blocks that have been acquired and not yet released
func (c *Counting) OutstandingBytes() int {
	return c.outstandingBytes
}

// Acquired is the number of successful Acquire calls
func (c *Counting) Acquired() int {
	return c.acquired
}

// Released is the number of successful Release calls
func (c *Counting) Released() int {
	return c.released
}

// OutstandingAddresses lists the addresses of all unreleased blocks in ascending order
func (c *Counting) OutstandingAddresses() []uintptr {
	addresses := make([]uintptr, 0, c.outstanding.Count())
	c.outstanding.Iter(func(address uintptr, size int) bool {
		addresses = append(addresses, address)
		return false
	})

	slices.Sort(addresses)
	return addresses
}
