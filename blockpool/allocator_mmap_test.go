//go:build linux || darwin

package blockpool

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/hostmem/sysmem"
)

func TestAllocatorOverMmap(t *testing.T) {
	mmap, err := sysmem.NewMmap()
	require.NoError(t, err)
	counting := sysmem.NewCounting(mmap)

	allocator := readyAllocator(t, CreateOptions{Provider: counting})

	first := allocate(t, allocator, 3000)
	block := unsafe.Slice((*byte)(first), 3000)
	for i := range block {
		block[i] = byte(i)
	}
	require.NoError(t, allocator.Deallocate(first))

	second := allocate(t, allocator, 2000)
	require.Equal(t, first, second)
	require.Equal(t, byte(255), unsafe.Slice((*byte)(second), 2000)[255])

	require.NoError(t, allocator.Destroy())
	require.Equal(t, 0, counting.Outstanding())
	require.Equal(t, 1, counting.Released())
}
