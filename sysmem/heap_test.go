package sysmem_test

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/hostmem/memutils"
	"github.com/vkngwrapper/hostmem/sysmem"
)

func TestHeapAcquireAligned(t *testing.T) {
	heap := sysmem.NewHeap()

	for _, alignment := range []uint{1, 8, 16, 64, 4096} {
		ptr, err := heap.Acquire(100, alignment)
		require.NoError(t, err)
		require.NotNil(t, ptr)
		require.True(t, memutils.IsAligned(uintptr(ptr), alignment))

		// the whole block is writable
		block := unsafe.Slice((*byte)(ptr), 100)
		for i := range block {
			block[i] = byte(i)
		}
		require.Equal(t, byte(99), block[99])

		require.NoError(t, heap.Release(ptr, 100))
	}
}

func TestHeapAcquireRejectsBadArguments(t *testing.T) {
	heap := sysmem.NewHeap()

	_, err := heap.Acquire(0, 8)
	require.Error(t, err)

	_, err = heap.Acquire(16, 24)
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
}
