package system

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/hostmem/memutils"
	"github.com/vkngwrapper/hostmem/sysmem"
)

type MemoryCallbacks interface {
	Allocate(memory unsafe.Pointer, size int)
	Free(memory unsafe.Pointer, size int)
}

// Memory sits between an allocator and its sysmem.Provider. It enforces the memory limit, keeps
// count of what is currently acquired, and fires the consumer's callbacks.
type Memory struct {
	// Number of blocks currently acquired from the provider
	blockCount int
	// Bytes currently acquired from the provider, debug margins included
	blockBytes int

	// Maximum value of blockBytes, 0 for no limit
	limit           int
	provider        sysmem.Provider
	memoryCallbacks MemoryCallbacks
}

func NewMemory(provider sysmem.Provider, memoryCallbacks MemoryCallbacks, limit int) (*Memory, error) {
	if provider == nil {
		return nil, errors.New("a memory provider is required")
	}
	if limit < 0 {
		return nil, errors.Newf("memory limit must not be negative, but was %d", limit)
	}

	return &Memory{
		limit:           limit,
		provider:        provider,
		memoryCallbacks: memoryCallbacks,
	}, nil
}

func (m *Memory) BlockCount() int { return m.blockCount }
func (m *Memory) BlockBytes() int { return m.blockBytes }
func (m *Memory) Limit() int      { return m.limit }

// AllocateMemory acquires a block of size usable bytes, followed by memutils.DebugMargin guard bytes.
// Every error it returns matches memutils.OutOfMemoryError.
func (m *Memory) AllocateMemory(size int, alignment uint) (unsafe.Pointer, error) {
	acquireSize := size + memutils.DebugMargin

	if m.limit > 0 && m.blockBytes+acquireSize > m.limit {
		return nil, errors.Mark(
			errors.Newf("acquiring %d bytes would exceed the memory limit of %d bytes, %d bytes are already acquired", acquireSize, m.limit, m.blockBytes),
			memutils.OutOfMemoryError,
		)
	}

	memory, err := m.provider.Acquire(acquireSize, alignment)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "acquiring %d bytes aligned to %d", acquireSize, alignment), memutils.OutOfMemoryError)
	}
	if memory == nil {
		return nil, errors.Mark(errors.Newf("the provider returned no memory for %d bytes", acquireSize), memutils.OutOfMemoryError)
	}

	m.blockCount++
	m.blockBytes += acquireSize

	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Allocate(memory, size)
	}

	return memory, nil
}

// FreeMemory returns a block acquired with AllocateMemory to the provider. size must be the size that
// was passed to AllocateMemory.
func (m *Memory) FreeMemory(memory unsafe.Pointer, size int) error {
	if m.memoryCallbacks != nil {
		m.memoryCallbacks.Free(memory, size)
	}

	acquireSize := size + memutils.DebugMargin
	m.blockCount--
	m.blockBytes -= acquireSize

	return errors.Wrapf(m.provider.Release(memory, acquireSize), "releasing %d bytes at %p", acquireSize, memory)
}
