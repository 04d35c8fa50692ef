package blockpool

import "unsafe"

// AllocateBlockCallback is called each time the allocator acquires a new block from its provider.
// size is the usable size of the block.
type AllocateBlockCallback func(
	allocator *Allocator,
	memory unsafe.Pointer,
	size int,
	userData any,
)

// FreeBlockCallback is called each time the allocator returns a block to its provider, which only
// happens during Allocator.Destroy
type FreeBlockCallback func(
	allocator *Allocator,
	memory unsafe.Pointer,
	size int,
	userData any,
)

// MemoryCallbackOptions holds callbacks that observe the allocator's traffic with its provider. The
// callbacks run while an AllocatorCreateSynchronized allocator holds its lock, so they must not call
// back into the allocator.
type MemoryCallbackOptions struct {
	Allocate AllocateBlockCallback
	Free     FreeBlockCallback
	UserData any
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Allocator *Allocator
}

func (c *memoryCallbacks) Allocate(
	memory unsafe.Pointer,
	size int,
) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Allocator, memory, size, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(
	memory unsafe.Pointer,
	size int,
) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Allocator, memory, size, c.Callbacks.UserData)
	}
}
