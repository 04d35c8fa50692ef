package blockpool

import (
	"strings"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/hostmem/blockpool/internal/system"
	"github.com/vkngwrapper/hostmem/blockpool/internal/utils"
	"github.com/vkngwrapper/hostmem/sysmem"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

var allocatorCreateFlagsMapping = make(map[CreateFlags]string)

func (f CreateFlags) Register(str string) {
	allocatorCreateFlagsMapping[f] = str
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for bit := CreateFlags(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}

		name, registered := allocatorCreateFlagsMapping[bit]
		if !registered {
			name = "Unknown"
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

const (
	// AllocatorCreateStrictDeallocation causes Allocator.Deallocate to return UnknownAddressError for
	// addresses that are not currently in use, instead of ignoring them. Without this flag, double frees
	// and foreign addresses pass silently.
	AllocatorCreateStrictDeallocation CreateFlags = 1 << iota
	// AllocatorCreateSynchronized causes every Allocator method to take an internal lock, so that
	// one Allocator may be shared between goroutines. Without this flag, callers must serialize access.
	AllocatorCreateSynchronized
)

func init() {
	AllocatorCreateStrictDeallocation.Register("AllocatorCreateStrictDeallocation")
	AllocatorCreateSynchronized.Register("AllocatorCreateSynchronized")
}

const (
	// DefaultAlignment is used by Allocator.Allocate when an alignment of 0 is requested. It matches
	// the strictest alignment of any builtin Go type on common platforms.
	DefaultAlignment uint = 16
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// Provider is the source of the memory this allocator hands out. It is a sysmem.Heap when left nil.
	Provider sysmem.Provider

	// MemoryLimit is the maximum number of bytes that may be acquired from Provider at one time.
	// Allocations that would exceed it fail with memutils.OutOfMemoryError. 0 means no limit.
	MemoryLimit int

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when blocks are
	// acquired from or returned to Provider. Reused blocks do not trigger callbacks.
	MemoryCallbackOptions *MemoryCallbackOptions
}

// New creates a new Allocator
//
// logger - receives the allocator's diagnostic output. slog.Default() is used when nil
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := options.Provider
	if provider == nil {
		provider = sysmem.NewHeap()
	}

	allocator := &Allocator{
		logger:      logger,
		createFlags: options.Flags,
		mutex:       utils.OptionalRWMutex{UseMutex: options.Flags&AllocatorCreateSynchronized != 0},
		inUse:       swiss.NewMap[uintptr, *memoryBlock](inUseInitialCapacity),
	}

	var err error
	allocator.memory, err = system.NewMemory(
		provider,
		&memoryCallbacks{
			Callbacks: options.MemoryCallbackOptions,
			Allocator: allocator,
		},
		options.MemoryLimit,
	)
	if err != nil {
		return nil, err
	}

	return allocator, nil
}
