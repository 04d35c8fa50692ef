package dynarray

import "github.com/pkg/errors"

// OutOfRangeError is returned when an index at or beyond the array's size is accessed
var OutOfRangeError error = errors.New("index out of range")

// PointerElementError is returned from New when the element type contains Go pointers. Array storage
// comes from a raw memory allocator and is invisible to the garbage collector.
var PointerElementError error = errors.New("element type must not contain pointers")

// InvalidOptionError is returned from New when CreateOptions holds an unusable value
var InvalidOptionError error = errors.New("invalid array option")
