package blockpool

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/hostmem/blockpool/internal/system"
	"github.com/vkngwrapper/hostmem/memutils"
	"golang.org/x/exp/slog"
)

var blockPool = sync.Pool{
	New: func() any {
		return &memoryBlock{}
	},
}

// memoryBlock is a single block acquired from the provider. While it is free, it is linked into
// the allocator's freeBlockList.
type memoryBlock struct {
	memory unsafe.Pointer
	// size is the number of bytes requested when the block was acquired. Reuse never changes it.
	size int

	prev *memoryBlock
	next *memoryBlock
}

func (b *memoryBlock) Init(memory unsafe.Pointer, size int) {
	if b.memory != nil {
		panic("attempting to initialize a memory block that is already in use")
	}

	b.memory = memory
	b.size = size
	b.prev = nil
	b.next = nil
}

func (b *memoryBlock) Address() uintptr {
	return uintptr(b.memory)
}

// Fits reports whether the block can serve a request without being split
func (b *memoryBlock) Fits(size int, alignment uint) bool {
	return b.size >= size && memutils.IsAligned(b.Address(), alignment)
}

func (b *memoryBlock) Destroy(memory *system.Memory) error {
	if b.memory == nil {
		panic("attempting to destroy a memory block, but it did not have any backing memory")
	}

	err := memory.FreeMemory(b.memory, b.size)

	b.memory = nil
	b.size = 0
	b.prev = nil
	b.next = nil
	return err
}

func (b *memoryBlock) logUnreleasedMemory(logger *slog.Logger) {
	logger.LogAttrs(context.Background(), slog.LevelWarn, "[UNRELEASED MEMORY] block still in use at teardown",
		slog.String("address", fmt.Sprintf("%#x", b.Address())),
		slog.Int("size", b.size),
	)
}

func (b *memoryBlock) WriteMagicValueAfterBlock() {
	if memutils.DebugMargin == 0 {
		return
	} else if memutils.DebugMargin%4 != 0 {
		panic(fmt.Sprintf("invalid debug margin: debug margin %d must be a multiple of 4", memutils.DebugMargin))
	}

	memutils.WriteMagicValue(b.memory, b.size)
}

func (b *memoryBlock) ValidateMagicValueAfterBlock() {
	if memutils.DebugMargin == 0 {
		return
	}

	if !memutils.ValidateMagicValue(b.memory, b.size) {
		panic(fmt.Sprintf("MEMORY CORRUPTION DETECTED AFTER BLOCK AT %#x", b.Address()))
	}
}

func (b *memoryBlock) CheckCorruption() error {
	if !memutils.ValidateMagicValue(b.memory, b.size) {
		return errors.Newf("the guard bytes after the %d byte block at %#x were overwritten", b.size, b.Address())
	}

	return nil
}

func (b *memoryBlock) printParameters(json *jwriter.ObjectState) {
	json.Name("Address").String(fmt.Sprintf("%#x", b.Address()))
	json.Name("Size").Int(b.size)
}
