package dynarray

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

const (
	// DefaultInitialCapacity is the number of slots reserved by New when CreateOptions.InitialCapacity is 0
	DefaultInitialCapacity int = 10
	// DefaultGrowthFactor is the capacity multiplier applied on growth when CreateOptions.GrowthFactor is 0
	DefaultGrowthFactor int = 2
)

// Allocator is the storage source for an Array. *blockpool.Allocator satisfies it.
type Allocator interface {
	Allocate(size int, alignment uint) (unsafe.Pointer, error)
	Deallocate(ptr unsafe.Pointer) error
}

// CreateOptions contains optional settings when creating an Array
type CreateOptions[T any] struct {
	// InitialCapacity is the number of slots reserved at creation
	InitialCapacity int
	// GrowthFactor multiplies the capacity each time the array is full and an element is pushed.
	// It must be at least 2.
	GrowthFactor int
	// Release, if set, is called with each element as it is destroyed by PopBack, Clear or Destroy,
	// just before its slot is zeroed. It is not called for elements relocated by growth.
	Release func(element *T)
}

// New creates an Array whose storage is drawn from allocator. The Array borrows allocator: it never
// destroys it, and allocator must not be destroyed before the Array is.
//
// T must not contain Go pointers at any depth, which excludes strings, slices, maps, interfaces,
// channels and funcs as well as pointers. New returns PointerElementError for such types.
func New[T any](allocator Allocator, options CreateOptions[T]) (*Array[T], error) {
	if allocator == nil {
		return nil, errors.Wrap(InvalidOptionError, "an allocator is required")
	}

	err := checkElementType[T]()
	if err != nil {
		return nil, err
	}

	initialCapacity := options.InitialCapacity
	if initialCapacity == 0 {
		initialCapacity = DefaultInitialCapacity
	} else if initialCapacity < 0 {
		return nil, errors.Wrapf(InvalidOptionError, "initial capacity %d is negative", initialCapacity)
	}

	growthFactor := options.GrowthFactor
	if growthFactor == 0 {
		growthFactor = DefaultGrowthFactor
	} else if growthFactor < 2 {
		return nil, errors.Wrapf(InvalidOptionError, "growth factor %d is less than 2", growthFactor)
	}

	array := &Array[T]{
		allocator:    allocator,
		growthFactor: growthFactor,
		release:      options.Release,
	}

	array.data, err = array.allocateSlots(initialCapacity)
	if err != nil {
		return nil, err
	}
	array.capacity = initialCapacity
	zeroSlots(array.slots())

	return array, nil
}
