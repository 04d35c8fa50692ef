// Package dynarray provides Array, a growable contiguous sequence whose storage is drawn from a
// host memory allocator such as blockpool.Allocator.
//
// An Array holds its elements in a single block obtained from its allocator. When a push finds
// the block full, a block GrowthFactor times larger is allocated, the elements are moved into it,
// and the old block is deallocated. Capacity never shrinks.
//
// Arrays are not safe for concurrent use, and neither are the allocators they borrow.
package dynarray

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
)

type Array[T any] struct {
	allocator Allocator
	data      unsafe.Pointer
	size      int
	capacity  int

	growthFactor int
	release      func(element *T)
}

func elementLayout[T any]() (size uintptr, alignment uint) {
	var zero T
	return unsafe.Sizeof(zero), uint(unsafe.Alignof(zero))
}

func (a *Array[T]) allocateSlots(count int) (unsafe.Pointer, error) {
	elementSize, alignment := elementLayout[T]()
	if elementSize > 0 && uintptr(count) > uintptr(math.MaxInt)/elementSize {
		return nil, errors.Newf("%d elements of %d bytes overflow the address space", count, elementSize)
	}

	return a.allocator.Allocate(count*int(elementSize), alignment)
}

// slots views the whole storage block, live and unused slots alike
func (a *Array[T]) slots() []T {
	return unsafe.Slice((*T)(a.data), a.capacity)
}

// grow moves the elements into storage growthFactor times larger and returns the old storage, which
// the caller must deallocate
func (a *Array[T]) grow() (unsafe.Pointer, error) {
	newCapacity := a.capacity * a.growthFactor
	if newCapacity/a.growthFactor != a.capacity {
		return nil, errors.Newf("growing capacity %d by a factor of %d overflows", a.capacity, a.growthFactor)
	}

	newData, err := a.allocateSlots(newCapacity)
	if err != nil {
		return nil, err
	}

	oldSlots := a.slots()[:a.size]
	newSlots := unsafe.Slice((*T)(newData), newCapacity)

	var zero T
	for i := range oldSlots {
		newSlots[i] = oldSlots[i]
		oldSlots[i] = zero
	}
	zeroSlots(newSlots[a.size:])

	oldData := a.data
	a.data = newData
	a.capacity = newCapacity

	return oldData, nil
}

// zeroSlots resets unused slots, since storage may be a reused block holding stale bytes
func zeroSlots[T any](slots []T) {
	var zero T
	for i := range slots {
		slots[i] = zero
	}
}

// PushBack appends value to the end of the array, growing the storage first if it is full. If growth
// fails, the error from the allocator is returned and the array is left unchanged.
//
// An error from deallocating the old storage does not prevent the push, but is returned.
func (a *Array[T]) PushBack(value T) error {
	var releaseErr error
	if a.size == a.capacity {
		oldData, err := a.grow()
		if err != nil {
			return err
		}
		releaseErr = a.allocator.Deallocate(oldData)
	}

	a.slots()[a.size] = value
	a.size++
	return releaseErr
}

// PopBack destroys the last element. Popping an empty array does nothing.
func (a *Array[T]) PopBack() {
	if a.size == 0 {
		return
	}

	a.size--
	a.destroyElement(a.size)
}

func (a *Array[T]) destroyElement(index int) {
	slot := &a.slots()[index]
	if a.release != nil {
		a.release(slot)
	}

	var zero T
	*slot = zero
}

// At returns a pointer to the element at index, which may be used to modify it in place. The pointer
// is invalidated by any later PushBack that grows the array, and by PopBack, Clear and Destroy.
func (a *Array[T]) At(index int) (*T, error) {
	if index < 0 || index >= a.size {
		return nil, errors.Wrapf(OutOfRangeError, "index %d with size %d", index, a.size)
	}

	return &a.slots()[index], nil
}

// Get returns a copy of the element at index
func (a *Array[T]) Get(index int) (T, error) {
	element, err := a.At(index)
	if err != nil {
		var zero T
		return zero, err
	}

	return *element, nil
}

func (a *Array[T]) Size() int     { return a.size }
func (a *Array[T]) Capacity() int { return a.capacity }
func (a *Array[T]) Empty() bool   { return a.size == 0 }

// Clear destroys every element, in order, and keeps the storage for reuse
func (a *Array[T]) Clear() {
	for i := 0; i < a.size; i++ {
		a.destroyElement(i)
	}
	a.size = 0
}

// Destroy clears the array and returns its storage to the allocator. The array must not be used
// afterward.
func (a *Array[T]) Destroy() error {
	if a.data == nil {
		return nil
	}

	a.Clear()

	err := a.allocator.Deallocate(a.data)
	a.data = nil
	a.capacity = 0
	return err
}

// ToSlice copies the live elements into a new slice
func (a *Array[T]) ToSlice() []T {
	out := make([]T, a.size)
	copy(out, a.slots()[:a.size])
	return out
}
