package dynarray

import "unsafe"

// Iterator is a forward-only position within an Array. Obtain a pair with Array.Begin and Array.End
// and advance from the first toward the second:
//
//	for it := array.Begin(); !it.Equal(array.End()); it.Next() {
//		element := it.Value()
//	}
//
// PushBack, PopBack, Clear and Destroy invalidate every outstanding Iterator. Using an invalidated
// Iterator is undefined behavior and is not detected.
type Iterator[T any] struct {
	data  unsafe.Pointer
	index int
}

// Begin is the position of the first element
func (a *Array[T]) Begin() Iterator[T] {
	return Iterator[T]{data: a.data, index: 0}
}

// End is the position one past the last element
func (a *Array[T]) End() Iterator[T] {
	return Iterator[T]{data: a.data, index: a.size}
}

// Next advances to the following element
func (i *Iterator[T]) Next() {
	i.index++
}

// Value returns a pointer to the element at this position. It must not be called on End.
func (i Iterator[T]) Value() *T {
	elementSize, _ := elementLayout[T]()
	return (*T)(unsafe.Add(i.data, uintptr(i.index)*elementSize))
}

// Equal reports whether both iterators refer to the same position of the same storage
func (i Iterator[T]) Equal(other Iterator[T]) bool {
	return i.data == other.data && i.index == other.index
}
