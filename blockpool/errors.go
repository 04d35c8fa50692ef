package blockpool

import "github.com/pkg/errors"

// UnknownAddressError is returned from Allocator.Deallocate when the allocator was created with
// AllocatorCreateStrictDeallocation and the address is not currently in use. Without that flag,
// such deallocations are ignored.
var UnknownAddressError error = errors.New("address is not in use by this allocator")

// DestroyedError is returned from Allocator.Allocate after Allocator.Destroy has been called
var DestroyedError error = errors.New("the allocator has been destroyed")
