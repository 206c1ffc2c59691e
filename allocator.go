package vkfractal

import (
	"fmt"
)

// Allocation is a range of a larger block handed out by an allocator.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// LinearAllocator is a first fit allocator over a block of Size bytes. Live
// allocations are kept sorted by offset.
type LinearAllocator struct {
	Size   uint64
	allocs []*Allocation
}

func makeAlignUp(a uint64, align uint64) uint64 {
	if align <= 1 {
		return a
	}
	m := a % align
	if m == 0 {
		return a
	}
	return (a - m) + align
}

func (p *LinearAllocator) Free(fa *Allocation) {
	for i, a := range p.allocs {
		if a == fa {
			p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
			return
		}
	}
}

// Allocate returns nil when the block has no aligned range of size bytes.
func (p *LinearAllocator) Allocate(size uint64, align uint64) *Allocation {
	if size == 0 || size > p.Size {
		return nil
	}

	// candidate start after each live allocation, plus the head of the block
	start := uint64(0)
	for i := 0; i <= len(p.allocs); i++ {
		end := p.Size
		if i < len(p.allocs) {
			end = p.allocs[i].Offset
		}
		if start <= end && end-start >= size {
			na := &Allocation{Offset: start, Size: size}
			p.insert(i, na)
			return na
		}
		if i < len(p.allocs) {
			start = makeAlignUp(p.allocs[i].Offset+p.allocs[i].Size, align)
		}
	}
	return nil
}

func (p *LinearAllocator) insert(i int, a *Allocation) {
	p.allocs = append(p.allocs, nil)
	copy(p.allocs[i+1:], p.allocs[i:])
	p.allocs[i] = a
}

// Used returns the number of bytes in live allocations.
func (p *LinearAllocator) Used() uint64 {
	var n uint64
	for _, a := range p.allocs {
		n += a.Size
	}
	return n
}

// Len returns the number of live allocations.
func (p *LinearAllocator) Len() int {
	return len(p.allocs)
}

func (p *LinearAllocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}
