package vkfractal

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkfractal/frame"
	"github.com/celer/vkfractal/params"
	"github.com/celer/vkfractal/spirv"
)

func computeModule(bindings ...spirv.Binding) *spirv.Module {
	return &spirv.Module{
		EntryPoints: []spirv.EntryPoint{
			{Name: "vs", Model: spirv.ExecutionModelVertex},
			{Name: "main", Model: spirv.ExecutionModelGLCompute, LocalSize: [3]uint32{8, 4, 1}},
		},
		Bindings: bindings,
	}
}

func TestPlanLayout(t *testing.T) {
	m := computeModule(
		spirv.Binding{Binding: 2, Kind: spirv.BindingStorageImage, Count: 1},
		spirv.Binding{Binding: 5, Kind: spirv.BindingUniformBuffer, Count: 1},
	)
	plan, err := planLayout(m)
	require.NoError(t, err)
	assert.Equal(t, "main", plan.entry.Name)
	assert.Equal(t, [3]uint32{8, 4, 1}, plan.entry.LocalSize)
	assert.Equal(t, uint32(2), plan.target)
	assert.Equal(t, uint32(5), plan.params)
	assert.Equal(t, spirv.BindingUniformBuffer, plan.paramsKind)
	assert.Len(t, plan.bindings, 2)

	m = computeModule(
		spirv.Binding{Binding: 0, Kind: spirv.BindingStorageImage, Count: 1},
		spirv.Binding{Binding: 1, Kind: spirv.BindingStorageBuffer, Count: 1, Size: params.Size},
	)
	_, err = planLayout(m)
	assert.NoError(t, err, "a buffer exactly the size of a frame record fits")
}

func TestPlanLayoutRejects(t *testing.T) {
	image := spirv.Binding{Binding: 0, Kind: spirv.BindingStorageImage, Count: 1}
	buffer := spirv.Binding{Binding: 1, Kind: spirv.BindingStorageBuffer, Count: 1}

	cases := map[string]*spirv.Module{
		"no compute entry point": {
			EntryPoints: []spirv.EntryPoint{{Name: "fs", Model: spirv.ExecutionModelFragment}},
			Bindings:    []spirv.Binding{image, buffer},
		},
		"no workgroup size": {
			EntryPoints: []spirv.EntryPoint{{Name: "main", Model: spirv.ExecutionModelGLCompute}},
			Bindings:    []spirv.Binding{image, buffer},
		},
		"second set":     computeModule(image, buffer, spirv.Binding{Set: 1, Kind: spirv.BindingStorageBuffer}),
		"no image":       computeModule(buffer),
		"no buffer":      computeModule(image),
		"two images":     computeModule(image, spirv.Binding{Binding: 3, Kind: spirv.BindingStorageImage}, buffer),
		"sampler":        computeModule(image, buffer, spirv.Binding{Binding: 2, Kind: spirv.BindingSampler}),
		"unknown kind":   computeModule(image, buffer, spirv.Binding{Binding: 2, Kind: spirv.BindingUnknown}),
		"empty bindings": computeModule(),
		"oversized parameters": computeModule(image,
			spirv.Binding{Binding: 1, Kind: spirv.BindingStorageBuffer, Count: 1, Size: params.Size + 16}),
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := planLayout(m)
			assert.ErrorIs(t, err, frame.ErrPipelineLink)
		})
	}
}

func TestDescriptorType(t *testing.T) {
	dt, ok := descriptorType(spirv.BindingStorageImage)
	assert.True(t, ok)
	assert.Equal(t, vk.DescriptorTypeStorageImage, dt)

	dt, ok = descriptorType(spirv.BindingStorageBuffer)
	assert.True(t, ok)
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, dt)

	_, ok = descriptorType(spirv.BindingUnknown)
	assert.False(t, ok)
}

func TestGroupCount(t *testing.T) {
	x, y, z := GroupCount(frame.Extent{Width: 1024, Height: 1024}, [3]uint32{16, 16, 1})
	assert.Equal(t, []uint32{64, 64, 1}, []uint32{x, y, z})

	x, y, z = GroupCount(frame.Extent{Width: 1000, Height: 17}, [3]uint32{16, 16, 1})
	assert.Equal(t, []uint32{63, 2, 1}, []uint32{x, y, z})

	x, y, _ = GroupCount(frame.Extent{Width: 5, Height: 5}, [3]uint32{0, 0, 0})
	assert.Equal(t, []uint32{5, 5}, []uint32{x, y})
}
