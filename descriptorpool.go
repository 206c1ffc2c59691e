package vkfractal

import (
	vk "github.com/goki/vulkan"
)

// DescriptorPool hands out the per-frame descriptor sets.
type DescriptorPool struct {
	Device               *Device
	VKDescriptorPool     vk.DescriptorPool
	VKDescriptorPoolSize []vk.DescriptorPoolSize
}

// CreateDescriptorPool creates a pool holding up to maxSets sets of layout.
// Sets may be freed individually.
func (d *Device) CreateDescriptorPool(layout *DescriptorSetLayout, maxSets int) (*DescriptorPool, error) {
	sizes := layout.PoolSizes(maxSets)
	descriptorPoolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}

	var descriptorPool vk.DescriptorPool
	err := vk.Error(vk.CreateDescriptorPool(d.VKDevice, &descriptorPoolCreateInfo, nil, &descriptorPool))
	if err != nil {
		return nil, err
	}

	return &DescriptorPool{Device: d, VKDescriptorPool: descriptorPool, VKDescriptorPoolSize: sizes}, nil
}

// Allocate allocates a descriptor set from the pool given the descriptor set layout
func (d *DescriptorPool) Allocate(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	descriptorSetAllocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.VKDescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.VKDescriptorSetLayout},
	}

	var descriptorSet vk.DescriptorSet
	err := vk.Error(vk.AllocateDescriptorSets(d.Device.VKDevice, &descriptorSetAllocateInfo, &descriptorSet))
	if err != nil {
		return nil, err
	}

	return &DescriptorSet{Device: d.Device, VKDescriptorSet: descriptorSet, DescriptorPool: d}, nil
}

func (d *DescriptorPool) Free(ds *DescriptorSet) error {
	descriptorSet := ds.VKDescriptorSet
	return vk.Error(vk.FreeDescriptorSets(d.Device.VKDevice, d.VKDescriptorPool, 1, &descriptorSet))
}

func (d *DescriptorPool) Destroy() {
	vk.DestroyDescriptorPool(d.Device.VKDevice, d.VKDescriptorPool, nil)
}
