//go:build linux || darwin

package sysmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/hostmem/memutils"
	"golang.org/x/sys/unix"
)

// Mmap is a Provider that backs every block with its own private anonymous mapping. Blocks are
// page-aligned and live entirely outside the Go heap.
type Mmap struct {
	pageSize int
	mappings *swiss.Map[uintptr, []byte]
}

// NewMmap creates an Mmap provider
func NewMmap() (*Mmap, error) {
	return &Mmap{
		pageSize: unix.Getpagesize(),
		mappings: swiss.NewMap[uintptr, []byte](16),
	}, nil
}

// PageSize is the granularity that every mapping is rounded up to
func (m *Mmap) PageSize() int {
	return m.pageSize
}

func (m *Mmap) Acquire(size int, alignment uint) (unsafe.Pointer, error) {
	if size < 1 {
		return nil, errors.Newf("cannot acquire a block of %d bytes", size)
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}
	if int(alignment) > m.pageSize {
		return nil, errors.Newf("alignment %d exceeds the page size %d", alignment, m.pageSize)
	}

	length := memutils.AlignUp(size, uint(m.pageSize))
	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping %d bytes", length)
	}

	ptr := unsafe.Pointer(&data[0])
	m.mappings.Put(uintptr(ptr), data)
	return ptr, nil
}

func (m *Mmap) Release(ptr unsafe.Pointer, size int) error {
	data, ok := m.mappings.Get(uintptr(ptr))
	if !ok {
		return errors.Wrapf(UnknownBlockError, "releasing %p", ptr)
	}
	m.mappings.Delete(uintptr(ptr))

	return errors.Wrapf(unix.Munmap(data), "unmapping %d bytes at %p", len(data), ptr)
}
