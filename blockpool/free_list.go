package blockpool

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/hostmem/memutils"
)

// freeBlockList holds released blocks in the order they were released. The tail is the most
// recently released block and is always the first candidate for reuse.
type freeBlockList struct {
	count int
	bytes int

	head *memoryBlock
	tail *memoryBlock
}

func (l *freeBlockList) Validate() error {
	declaredCount := l.count
	declaredBytes := l.bytes
	actualCount := 0
	actualBytes := 0

	var prev *memoryBlock
	for block := l.head; block != nil; block = block.next {
		if block.prev != prev {
			return errors.Errorf("the free block at %#x is not linked back to its predecessor", block.Address())
		}
		actualCount++
		actualBytes += block.size
		prev = block
	}

	if prev != l.tail {
		return errors.New("the free list's tail is not its last block")
	}

	if declaredCount != actualCount {
		return errors.Errorf("the listed number of free blocks in the list (%d) does not match the actual number of blocks (%d)", declaredCount, actualCount)
	}

	if declaredBytes != actualBytes {
		return errors.Errorf("the listed size of free blocks in the list (%d) does not match the actual size of the blocks (%d)", declaredBytes, actualBytes)
	}

	return nil
}

func (l *freeBlockList) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	for block := l.head; block != nil; block = block.next {
		stats.AddUnusedRange(block.size)
	}
}

// PrintJson writes the free blocks in the order they will be considered for reuse
func (l *freeBlockList) PrintJson(array *jwriter.ArrayState) {
	for block := l.tail; block != nil; block = block.prev {
		o := array.Object()
		block.printParameters(&o)
		o.End()
	}
}

func (l *freeBlockList) IsEmpty() bool {
	return l.count == 0
}

// FindLatestFit walks from the most recently released block to the least recently released one and
// returns the first that can serve the request, or nil
func (l *freeBlockList) FindLatestFit(size int, alignment uint) *memoryBlock {
	for block := l.tail; block != nil; block = block.prev {
		if block.Fits(size, alignment) {
			return block
		}
	}

	return nil
}

// Contains is a linear search for a block with the provided address
func (l *freeBlockList) Contains(address uintptr) bool {
	for block := l.head; block != nil; block = block.next {
		if block.Address() == address {
			return true
		}
	}

	return false
}

func (l *freeBlockList) PopFront() *memoryBlock {
	block := l.head
	if block != nil {
		l.Remove(block)
	}

	return block
}

func (l *freeBlockList) Remove(block *memoryBlock) {
	prev := block.prev
	next := block.next

	if prev != nil {
		prev.next = next
	} else {
		l.head = next
	}

	if next != nil {
		next.prev = prev
	} else {
		l.tail = prev
	}

	block.next = nil
	block.prev = nil

	l.count--
	l.bytes -= block.size
}

func (l *freeBlockList) PushBack(block *memoryBlock) {
	if l.count == 0 {
		l.head = block
		l.tail = block
		l.count = 1
	} else {
		block.prev = l.tail
		l.tail.next = block

		l.tail = block
		l.count++
	}

	l.bytes += block.size
}
