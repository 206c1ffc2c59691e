package vkfractal

import (
	vk "github.com/goki/vulkan"
)

// DescriptorSet is a binding of resources to a descriptor, per a specific DescriptorSetLayout
type DescriptorSet struct {
	Device               *Device
	DescriptorPool       *DescriptorPool
	VKDescriptorSet      vk.DescriptorSet
	VKWriteDiscriptorSet []vk.WriteDescriptorSet
}

// AddBuffer adds size bytes of b starting at offset to this descriptor set
func (du *DescriptorSet) AddBuffer(dstBinding uint32, dtype vk.DescriptorType, b *Buffer, offset, size uint64) {
	descriptorBufferInfo := vk.DescriptorBufferInfo{
		Buffer: b.VKBuffer,
		Offset: vk.DeviceSize(offset),
		Range:  vk.DeviceSize(size),
	}

	du.VKWriteDiscriptorSet = append(du.VKWriteDiscriptorSet, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      dstBinding,
		DescriptorCount: 1,
		DescriptorType:  dtype,
		PBufferInfo:     []vk.DescriptorBufferInfo{descriptorBufferInfo},
	})
}

// AddStorageImage adds an image view the shader writes in the given layout
func (du *DescriptorSet) AddStorageImage(dstBinding uint32, layout vk.ImageLayout, imageView vk.ImageView) {
	descriptorImageInfo := vk.DescriptorImageInfo{
		ImageView:   imageView,
		ImageLayout: layout,
	}

	du.VKWriteDiscriptorSet = append(du.VKWriteDiscriptorSet, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      dstBinding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		PImageInfo:      []vk.DescriptorImageInfo{descriptorImageInfo},
	})
}

// Write modifies the descriptor set
func (du *DescriptorSet) Write() {
	for i := range du.VKWriteDiscriptorSet {
		du.VKWriteDiscriptorSet[i].DstSet = du.VKDescriptorSet
	}
	vk.UpdateDescriptorSets(du.Device.VKDevice, uint32(len(du.VKWriteDiscriptorSet)), du.VKWriteDiscriptorSet, 0, nil)
	du.VKWriteDiscriptorSet = nil
}
