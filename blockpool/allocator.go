// Package blockpool provides Allocator, a host memory allocator that recycles the blocks released
// to it instead of returning them to the system.
//
// Released blocks are kept on a free list and reused most-recently-released first: an allocation
// is served by the first free block, scanning from the newest, that is large enough and suitably
// aligned. Reused blocks are never split, so a block keeps the size it was first acquired with
// for its entire life. Memory only goes back to the system when the Allocator is destroyed.
//
// By default Allocator performs no internal synchronization, and all calls on it must be serialized
// by the caller. AllocatorCreateSynchronized adds a lock around each call. Containers drawing storage
// from an Allocator are never synchronized.
package blockpool

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/hostmem/blockpool/internal/system"
	"github.com/vkngwrapper/hostmem/blockpool/internal/utils"
	"github.com/vkngwrapper/hostmem/memutils"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

const inUseInitialCapacity uint32 = 16

type Allocator struct {
	logger      *slog.Logger
	createFlags CreateFlags
	memory      *system.Memory
	mutex       utils.OptionalRWMutex

	inUse      *swiss.Map[uintptr, *memoryBlock]
	inUseBytes int
	free       freeBlockList
	destroyed  bool
}

// Allocate returns the address of a block of at least size bytes aligned to alignment.
//
// The most recently released block that is at least size bytes long and properly aligned is reused
// if one exists. Otherwise a new block of exactly size bytes is acquired from the provider. An
// alignment of 0 selects DefaultAlignment; any other alignment must be a power of two. A size of 0
// is treated as 1.
//
// If the provider cannot supply a new block, or doing so would exceed the allocator's MemoryLimit,
// the returned error matches memutils.OutOfMemoryError.
func (a *Allocator) Allocate(size int, alignment uint) (unsafe.Pointer, error) {
	a.logger.Debug("Allocator::Allocate")

	a.mutex.Lock()
	ptr, err := a.allocate(size, alignment)
	a.mutex.Unlock()

	if err == nil {
		memutils.DebugValidate(a)
	}
	return ptr, err
}

func (a *Allocator) allocate(size int, alignment uint) (unsafe.Pointer, error) {
	if a.destroyed {
		return nil, DestroyedError
	}
	if size < 0 {
		return nil, errors.Newf("cannot allocate a block of %d bytes", size)
	}
	if size == 0 {
		size = 1
	}
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}

	block := a.free.FindLatestFit(size, alignment)
	if block != nil {
		a.free.Remove(block)
	} else {
		block, err = a.createBlock(size, alignment)
		if err != nil {
			return nil, err
		}
	}

	a.inUse.Put(block.Address(), block)
	a.inUseBytes += block.size

	return block.memory, nil
}

func (a *Allocator) createBlock(size int, alignment uint) (*memoryBlock, error) {
	memory, err := a.memory.AllocateMemory(size, alignment)
	if err != nil {
		return nil, err
	}

	block := blockPool.Get().(*memoryBlock)
	block.Init(memory, size)
	block.WriteMagicValueAfterBlock()

	return block, nil
}

// Deallocate returns the block at ptr to the allocator so that later allocations may reuse it.
//
// Addresses that are not currently in use, because they were already deallocated or never came
// from this allocator, are ignored and nil is returned. This hides double frees and foreign
// pointers; create the allocator with AllocatorCreateStrictDeallocation to have them reported as
// UnknownAddressError instead.
func (a *Allocator) Deallocate(ptr unsafe.Pointer) error {
	a.logger.Debug("Allocator::Deallocate")

	a.mutex.Lock()
	released, err := a.deallocate(ptr)
	a.mutex.Unlock()

	if released {
		memutils.DebugValidate(a)
	}
	return err
}

func (a *Allocator) deallocate(ptr unsafe.Pointer) (bool, error) {
	block, inUse := a.inUse.Get(uintptr(ptr))
	if !inUse {
		if a.createFlags&AllocatorCreateStrictDeallocation != 0 {
			return false, errors.Wrapf(UnknownAddressError, "deallocating %p", ptr)
		}

		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "ignoring deallocation of an address that is not in use",
			slog.String("address", fmt.Sprintf("%p", ptr)))
		return false, nil
	}

	block.ValidateMagicValueAfterBlock()

	a.inUse.Delete(block.Address())
	a.inUseBytes -= block.size
	a.free.PushBack(block)

	return true, nil
}

// IsEqual reports whether other is this same allocator. Memory allocated from one allocator can only
// be deallocated through an equal allocator.
func (a *Allocator) IsEqual(other *Allocator) bool {
	return a == other
}

// Destroy returns every block the allocator holds, in use or free, to the provider. Blocks that are
// still in use are logged as unreleased memory. Any containers using this allocator must have been
// destroyed before this is called.
//
// Release failures reported by the provider do not stop the teardown; they are combined into the
// returned error.
func (a *Allocator) Destroy() error {
	a.logger.Debug("Allocator::Destroy")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return nil
	}

	var err error
	a.inUse.Iter(func(address uintptr, block *memoryBlock) bool {
		block.logUnreleasedMemory(a.logger)
		err = errors.CombineErrors(err, a.destroyBlock(block))
		return false
	})
	a.inUse = swiss.NewMap[uintptr, *memoryBlock](inUseInitialCapacity)
	a.inUseBytes = 0

	for block := a.free.PopFront(); block != nil; block = a.free.PopFront() {
		err = errors.CombineErrors(err, a.destroyBlock(block))
	}

	a.destroyed = true
	return err
}

func (a *Allocator) destroyBlock(block *memoryBlock) error {
	err := block.Destroy(a.memory)
	blockPool.Put(block)
	return err
}

// InUseCount is the number of blocks currently handed out by the allocator
func (a *Allocator) InUseCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.inUse.Count()
}

// FreeCount is the number of released blocks waiting to be reused
func (a *Allocator) FreeCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.free.count
}

// Validate performs internal consistency checks on the allocator's bookkeeping. When built with the
// debug_mem_utils tag, it is run after every Allocate and Deallocate.
func (a *Allocator) Validate() error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	err := a.free.Validate()
	if err != nil {
		return err
	}

	actualInUseBytes := 0
	a.inUse.Iter(func(address uintptr, block *memoryBlock) bool {
		if block.Address() != address {
			err = errors.Newf("the in-use block at %#x is indexed under %#x", block.Address(), address)
			return true
		}
		if a.free.Contains(address) {
			err = errors.Newf("the block at %#x is both in use and free", address)
			return true
		}

		actualInUseBytes += block.size
		return false
	})
	if err != nil {
		return err
	}

	if actualInUseBytes != a.inUseBytes {
		return errors.Newf("the listed size of in-use blocks (%d) does not match the actual size of the blocks (%d)", a.inUseBytes, actualInUseBytes)
	}

	heldBlocks := a.inUse.Count() + a.free.count
	if heldBlocks != a.memory.BlockCount() {
		return errors.Newf("the allocator tracks %d blocks, but %d blocks are acquired from the provider", heldBlocks, a.memory.BlockCount())
	}

	return nil
}

// CheckCorruption verifies the guard bytes that follow every block the allocator holds. Guard bytes
// are only written when built with the debug_mem_utils tag; otherwise this always returns nil.
func (a *Allocator) CheckCorruption() error {
	a.logger.Debug("Allocator::CheckCorruption")

	if memutils.DebugMargin == 0 {
		return nil
	}

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var err error
	a.inUse.Iter(func(address uintptr, block *memoryBlock) bool {
		err = block.CheckCorruption()
		return err != nil
	})
	if err != nil {
		return err
	}

	for block := a.free.head; block != nil; block = block.next {
		err = block.CheckCorruption()
		if err != nil {
			return err
		}
	}

	return nil
}

// AddStatistics sums the allocator's block usage into stats. Free blocks count toward BlockCount and
// BlockBytes but not toward AllocationCount and AllocationBytes.
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	stats.BlockCount += a.inUse.Count() + a.free.count
	stats.BlockBytes += a.inUseBytes + a.free.bytes
	stats.AllocationCount += a.inUse.Count()
	stats.AllocationBytes += a.inUseBytes
}

// AddDetailedStatistics sums the allocator's block usage into stats. Each in-use block is an
// allocation and each free block is an unused range.
func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	a.addDetailedStatistics(stats)
}

func (a *Allocator) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount += a.inUse.Count() + a.free.count
	stats.BlockBytes += a.inUseBytes + a.free.bytes

	a.inUse.Iter(func(address uintptr, block *memoryBlock) bool {
		stats.AddAllocation(block.size)
		return false
	})
	a.free.AddDetailedStatistics(stats)
}

// BuildStatsString produces a json document describing the allocator's state. When detailedMap is
// true, every in-use block is listed in address order and every free block is listed in the order
// it would be reused.
func (a *Allocator) BuildStatsString(detailedMap bool) string {
	a.logger.Debug("Allocator::BuildStatsString")

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.addDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	objState := writer.Object()

	totalObj := objState.Name("Total").Object()
	stats.PrintJson(&totalObj)
	totalObj.End()

	systemObj := objState.Name("System").Object()
	systemObj.Name("BlockCount").Int(a.memory.BlockCount())
	systemObj.Name("BlockBytes").Int(a.memory.BlockBytes())
	systemObj.Name("MemoryLimit").Int(a.memory.Limit())
	systemObj.Name("Flags").String(a.createFlags.String())
	systemObj.End()

	if detailedMap {
		a.printInUseBlocks(&objState)

		freeArray := objState.Name("Free").Array()
		a.free.PrintJson(&freeArray)
		freeArray.End()
	}

	objState.End()
	return string(writer.Bytes())
}

func (a *Allocator) printInUseBlocks(json *jwriter.ObjectState) {
	addresses := make([]uintptr, 0, a.inUse.Count())
	a.inUse.Iter(func(address uintptr, block *memoryBlock) bool {
		addresses = append(addresses, address)
		return false
	})
	slices.Sort(addresses)

	arrayState := json.Name("InUse").Array()
	defer arrayState.End()

	for _, address := range addresses {
		block, _ := a.inUse.Get(address)

		obj := arrayState.Object()
		block.printParameters(&obj)
		obj.End()
	}
}
