package dynarray_test

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/hostmem/blockpool"
	"github.com/vkngwrapper/hostmem/dynarray"
	"github.com/vkngwrapper/hostmem/dynarray/mocks"
	"github.com/vkngwrapper/hostmem/memutils"
	"github.com/vkngwrapper/hostmem/sysmem"
	"go.uber.org/mock/gomock"
)

type person struct {
	ID       int
	Name     [16]byte
	Birthday float64
}

func newPerson(id int, name string) person {
	p := person{ID: id, Birthday: float64(1970 + id)}
	copy(p.Name[:], name)
	return p
}

func readyAllocator(t *testing.T, provider sysmem.Provider) *blockpool.Allocator {
	allocator, err := blockpool.New(nil, blockpool.CreateOptions{Provider: provider})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, allocator.Destroy())
	})
	return allocator
}

func TestNewArrayIsEmpty(t *testing.T) {
	array, err := dynarray.New[int](readyAllocator(t, nil), dynarray.CreateOptions[int]{})
	require.NoError(t, err)

	require.Equal(t, 0, array.Size())
	require.True(t, array.Empty())
	require.Equal(t, dynarray.DefaultInitialCapacity, array.Capacity())
	require.True(t, array.Begin().Equal(array.End()))

	require.NoError(t, array.Destroy())
}

func TestPushBackGrowsByDoubling(t *testing.T) {
	array, err := dynarray.New[int](readyAllocator(t, nil), dynarray.CreateOptions[int]{})
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		require.NoError(t, array.PushBack(i))
	}

	require.Equal(t, 15, array.Size())
	require.False(t, array.Empty())
	require.Equal(t, 20, array.Capacity())

	for i := 0; i < 15; i++ {
		value, err := array.Get(i)
		require.NoError(t, err)
		require.Equal(t, i, value)
	}

	for i := 15; i < 21; i++ {
		require.NoError(t, array.PushBack(i))
	}
	require.Equal(t, 40, array.Capacity())

	require.NoError(t, array.Destroy())
}

func TestGrowthFactor(t *testing.T) {
	array, err := dynarray.New[uint16](readyAllocator(t, nil), dynarray.CreateOptions[uint16]{
		InitialCapacity: 2,
		GrowthFactor:    3,
	})
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		require.NoError(t, array.PushBack(uint16(i)))
	}
	require.Equal(t, 18, array.Capacity())
	require.Equal(t, []uint16{0, 1, 2, 3, 4, 5, 6}, array.ToSlice())

	require.NoError(t, array.Destroy())
}

func TestAtModifiesInPlace(t *testing.T) {
	array, err := dynarray.New[person](readyAllocator(t, nil), dynarray.CreateOptions[person]{})
	require.NoError(t, err)

	require.NoError(t, array.PushBack(newPerson(1, "ada")))
	require.NoError(t, array.PushBack(newPerson(2, "grace")))

	element, err := array.At(1)
	require.NoError(t, err)
	element.Birthday = 1906

	value, err := array.Get(1)
	require.NoError(t, err)
	require.Equal(t, 2, value.ID)
	require.Equal(t, float64(1906), value.Birthday)
	require.Equal(t, "grace", string(value.Name[:5]))

	require.NoError(t, array.Destroy())
}

func TestIndexOutOfRange(t *testing.T) {
	array, err := dynarray.New[int](readyAllocator(t, nil), dynarray.CreateOptions[int]{})
	require.NoError(t, err)

	_, err = array.At(0)
	require.True(t, errors.Is(err, dynarray.OutOfRangeError))

	require.NoError(t, array.PushBack(7))
	require.NoError(t, array.PushBack(8))

	_, err = array.Get(2)
	require.True(t, errors.Is(err, dynarray.OutOfRangeError))
	_, err = array.At(-1)
	require.True(t, errors.Is(err, dynarray.OutOfRangeError))

	// capacity beyond size is not addressable
	_, err = array.At(5)
	require.True(t, errors.Is(err, dynarray.OutOfRangeError))

	require.NoError(t, array.Destroy())
}

func TestPushPopDestroysEveryElementOnce(t *testing.T) {
	released := make(map[int]int)
	array, err := dynarray.New[person](readyAllocator(t, nil), dynarray.CreateOptions[person]{
		Release: func(element *person) {
			released[element.ID]++
		},
	})
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		require.NoError(t, array.PushBack(newPerson(i, "someone")))
	}
	// relocation during growth is not a destruction
	require.Empty(t, released)

	for i := 0; i < 5; i++ {
		array.PopBack()
	}
	require.Equal(t, 20, array.Size())
	require.Len(t, released, 5)
	require.Equal(t, 1, released[24])
	require.Equal(t, 1, released[20])

	require.NoError(t, array.Destroy())
	require.Len(t, released, 25)
	for id, count := range released {
		require.Equal(t, 1, count, "element %d", id)
	}
}

func TestPopBackEmptyIsNoOp(t *testing.T) {
	releaseCount := 0
	array, err := dynarray.New[int](readyAllocator(t, nil), dynarray.CreateOptions[int]{
		Release: func(element *int) { releaseCount++ },
	})
	require.NoError(t, err)

	array.PopBack()
	require.Equal(t, 0, array.Size())
	require.Equal(t, 0, releaseCount)

	require.NoError(t, array.PushBack(1))
	array.PopBack()
	array.PopBack()
	require.True(t, array.Empty())
	require.Equal(t, 1, releaseCount)

	require.NoError(t, array.Destroy())
}

func TestClearKeepsCapacity(t *testing.T) {
	counting := sysmem.NewCounting(nil)
	array, err := dynarray.New[int64](readyAllocator(t, counting), dynarray.CreateOptions[int64]{})
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		require.NoError(t, array.PushBack(int64(i)))
	}
	acquired := counting.Acquired()

	array.Clear()
	require.True(t, array.Empty())
	require.Equal(t, 20, array.Capacity())

	for i := 0; i < 20; i++ {
		require.NoError(t, array.PushBack(int64(-i)))
	}
	require.Equal(t, acquired, counting.Acquired())

	require.NoError(t, array.Destroy())
}

func TestArraysShareReleasedStorage(t *testing.T) {
	counting := sysmem.NewCounting(nil)
	allocator := readyAllocator(t, counting)

	first, err := dynarray.New[int](allocator, dynarray.CreateOptions[int]{})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, first.PushBack(i))
	}
	require.NoError(t, first.Destroy())
	require.Equal(t, 1, counting.Outstanding())

	second, err := dynarray.New[int](allocator, dynarray.CreateOptions[int]{})
	require.NoError(t, err)
	require.Equal(t, 1, counting.Outstanding())
	require.Equal(t, 1, allocator.InUseCount())

	// reused storage holds stale bytes but every slot starts zeroed
	require.NoError(t, second.PushBack(42))
	value, err := second.Get(0)
	require.NoError(t, err)
	require.Equal(t, 42, value)

	require.NoError(t, second.Destroy())
	require.Equal(t, 0, allocator.InUseCount())
}

func TestGrowthReturnsOldStorage(t *testing.T) {
	allocator := readyAllocator(t, nil)
	array, err := dynarray.New[int32](allocator, dynarray.CreateOptions[int32]{InitialCapacity: 4})
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		require.NoError(t, array.PushBack(int32(i)))
	}
	require.Equal(t, 16, array.Capacity())
	require.Equal(t, 1, allocator.InUseCount())
	require.Equal(t, 2, allocator.FreeCount())

	require.NoError(t, array.Destroy())
	require.Equal(t, 3, allocator.FreeCount())
}

func TestGrowthFailureLeavesArrayUnchanged(t *testing.T) {
	allocator, err := blockpool.New(nil, blockpool.CreateOptions{
		MemoryLimit: 10*8 + memutils.DebugMargin,
	})
	require.NoError(t, err)

	array, err := dynarray.New[int64](allocator, dynarray.CreateOptions[int64]{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, array.PushBack(int64(i)))
	}

	err = array.PushBack(10)
	require.True(t, errors.Is(err, memutils.OutOfMemoryError))
	require.Equal(t, 10, array.Size())
	require.Equal(t, 10, array.Capacity())
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, array.ToSlice())

	require.NoError(t, array.Destroy())
	require.NoError(t, allocator.Destroy())
}

func TestPushBackReportsDeallocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	allocator := mocks.NewMockAllocator(ctrl)

	first := make([]int16, 1)
	second := make([]int16, 2)
	firstData := unsafe.Pointer(&first[0])
	secondData := unsafe.Pointer(&second[0])

	gomock.InOrder(
		allocator.EXPECT().Allocate(2, uint(2)).Return(firstData, nil),
		allocator.EXPECT().Allocate(4, uint(2)).Return(secondData, nil),
		allocator.EXPECT().Deallocate(firstData).Return(errors.New("deallocation failed")),
		allocator.EXPECT().Deallocate(secondData).Return(nil),
	)

	array, err := dynarray.New[int16](allocator, dynarray.CreateOptions[int16]{InitialCapacity: 1})
	require.NoError(t, err)

	require.NoError(t, array.PushBack(5))
	require.EqualError(t, array.PushBack(6), "deallocation failed")
	require.Equal(t, []int16{5, 6}, array.ToSlice())
	require.Equal(t, []int16{5, 6}, second)

	require.NoError(t, array.Destroy())
	require.NoError(t, array.Destroy())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	allocator := readyAllocator(t, nil)

	_, err := dynarray.New[int](nil, dynarray.CreateOptions[int]{})
	require.True(t, errors.Is(err, dynarray.InvalidOptionError))

	_, err = dynarray.New[int](allocator, dynarray.CreateOptions[int]{InitialCapacity: -1})
	require.True(t, errors.Is(err, dynarray.InvalidOptionError))

	_, err = dynarray.New[int](allocator, dynarray.CreateOptions[int]{GrowthFactor: 1})
	require.True(t, errors.Is(err, dynarray.InvalidOptionError))

	require.Equal(t, 0, allocator.InUseCount())
}

func TestNewRejectsPointerElements(t *testing.T) {
	allocator := readyAllocator(t, nil)

	_, err := dynarray.New[string](allocator, dynarray.CreateOptions[string]{})
	require.True(t, errors.Is(err, dynarray.PointerElementError))

	_, err = dynarray.New[*int](allocator, dynarray.CreateOptions[*int]{})
	require.True(t, errors.Is(err, dynarray.PointerElementError))

	type withSlice struct {
		ID   int
		Tags [2][]byte
	}
	_, err = dynarray.New[withSlice](allocator, dynarray.CreateOptions[withSlice]{})
	require.True(t, errors.Is(err, dynarray.PointerElementError))

	_, err = dynarray.New[any](allocator, dynarray.CreateOptions[any]{})
	require.True(t, errors.Is(err, dynarray.PointerElementError))

	array, err := dynarray.New[[0]*int](allocator, dynarray.CreateOptions[[0]*int]{})
	require.NoError(t, err)
	require.NoError(t, array.Destroy())

	require.Equal(t, 0, allocator.InUseCount())
}

func TestZeroSizeElements(t *testing.T) {
	array, err := dynarray.New[struct{}](readyAllocator(t, nil), dynarray.CreateOptions[struct{}]{})
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		require.NoError(t, array.PushBack(struct{}{}))
	}
	require.Equal(t, 12, array.Size())

	count := 0
	for it := array.Begin(); !it.Equal(array.End()); it.Next() {
		count++
	}
	require.Equal(t, 12, count)

	require.NoError(t, array.Destroy())
}
