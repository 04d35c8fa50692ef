//go:build !linux && !darwin

package sysmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Mmap is not available on this platform: NewMmap always fails.
type Mmap struct{}

// NewMmap returns an error on platforms without anonymous mapping support
func NewMmap() (*Mmap, error) {
	return nil, errors.New("anonymous memory mappings are not supported on this platform")
}

func (m *Mmap) PageSize() int {
	return 0
}

func (m *Mmap) Acquire(size int, alignment uint) (unsafe.Pointer, error) {
	return nil, errors.New("anonymous memory mappings are not supported on this platform")
}

func (m *Mmap) Release(ptr unsafe.Pointer, size int) error {
	return errors.Wrapf(UnknownBlockError, "releasing %p", ptr)
}
