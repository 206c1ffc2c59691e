package vkfractal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkfractal/params"
)

func hostPool(records int, align uint64) *ParameterPool {
	size := makeAlignUp(params.Size, align) * uint64(records)
	return &ParameterPool{
		Allocator: &LinearAllocator{Size: size},
		Align:     align,
		mapped:    make([]byte, size),
	}
}

func TestParameterPoolWrite(t *testing.T) {
	p := hostPool(4, 64)
	f := params.Frame{Scale: 0.5, Iterations: 300, Kind: params.KindJulia}

	var allocs []*Allocation
	for i := 0; i < 4; i++ {
		a, err := p.Write(f.Bytes())
		require.NoError(t, err)
		assert.Equal(t, uint64(i*64), a.Offset)
		assert.Equal(t, uint64(params.Size), a.Size)
		allocs = append(allocs, a)
	}
	assert.Equal(t, f.Bytes(), p.mapped[64:64+params.Size])

	_, err := p.Write(f.Bytes())
	assert.ErrorIs(t, err, errInsufficientPoolSpace)
	assert.ErrorContains(t, err, "4 records live, 128 of 256 bytes used")

	p.Free(allocs[1])
	p.Free(nil)
	a, err := p.Write(params.Frame{Iterations: 7}.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(64), a.Offset)
	assert.Equal(t, byte(7), p.mapped[64+24])
}
