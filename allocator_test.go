package vkfractal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(12), makeAlignUp(12, 3))
	assert.Equal(t, uint64(12), makeAlignUp(10, 3))
	assert.Equal(t, uint64(7), makeAlignUp(7, 0))
	assert.Equal(t, uint64(256), makeAlignUp(1, 256))
}

func TestAllocator(t *testing.T) {
	a := LinearAllocator{Size: 1024}

	assert.Nil(t, a.Allocate(2048, 1), "larger than the block")

	fa := a.Allocate(512, 1)
	require.NotNil(t, fa)
	assert.Equal(t, uint64(0), fa.Offset)

	assert.Nil(t, a.Allocate(768, 1))

	k := a.Allocate(500, 1)
	require.NotNil(t, k)
	assert.Equal(t, uint64(512), k.Offset)

	assert.Nil(t, a.Allocate(50, 1))
	require.NotNil(t, a.Allocate(5, 1))
	assert.Nil(t, a.Allocate(20, 1))

	a.Free(k)
	ra := a.Allocate(500, 1)
	require.NotNil(t, ra, "exact fit between allocations")
	assert.Equal(t, uint64(512), ra.Offset)

	a.Free(fa)
	ra = a.Allocate(20, 1)
	require.NotNil(t, ra, "head of the block")
	assert.Equal(t, uint64(0), ra.Offset)

	ra = a.Allocate(40, 1)
	require.NotNil(t, ra)
	assert.Equal(t, uint64(20), ra.Offset)

	ra = a.Allocate(12, 1)
	require.NotNil(t, ra)
	assert.Equal(t, uint64(60), ra.Offset)

	assert.Nil(t, a.Allocate(500, 1))

	ra = a.Allocate(5, 1)
	require.NotNil(t, ra)
	assert.Equal(t, uint64(72), ra.Offset)

	assert.Equal(t, 6, a.Len())
	assert.Equal(t, uint64(20+40+12+5+500+5), a.Used())
}

func TestAllocatorAlignment(t *testing.T) {
	a := LinearAllocator{Size: 1024}

	first := a.Allocate(32, 256)
	require.NotNil(t, first)
	second := a.Allocate(32, 256)
	require.NotNil(t, second)
	assert.Equal(t, uint64(256), second.Offset)

	a.Allocate(32, 256)
	a.Allocate(32, 256)
	assert.Nil(t, a.Allocate(32, 256), "aligned start past the end")

	a.Free(second)
	again := a.Allocate(32, 256)
	require.NotNil(t, again)
	assert.Equal(t, uint64(256), again.Offset)
}

func TestAllocatorZeroSize(t *testing.T) {
	a := LinearAllocator{Size: 16}
	assert.Nil(t, a.Allocate(0, 1))
	a.Free(&Allocation{})
	assert.Equal(t, 0, a.Len())
}
