package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfMemoryError is matched by every error returned when a memory system cannot supply a requested block,
// either because the underlying provider failed or because a configured memory limit would be exceeded.
var OutOfMemoryError error = errors.New("out of memory")
