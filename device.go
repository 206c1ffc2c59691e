package vkfractal

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device
	// QueueFamily is the index of the compute and present family the device
	// was created with.
	QueueFamily int
}

func (d *Device) Destroy() {
	vk.DestroyDevice(d.VKDevice, nil)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

func (d *Device) WaitIdle() error {
	return vk.Error(vk.DeviceWaitIdle(d.VKDevice))
}

// GetQueue returns the first queue of the device's queue family.
func (d *Device) GetQueue() *Queue {
	var vkq vk.Queue
	vk.GetDeviceQueue(d.VKDevice, uint32(d.QueueFamily), 0, &vkq)
	return &Queue{Device: d, FamilyIndex: d.QueueFamily, VKQueue: vkq}
}

type AllocationRequirements struct {
	Size           uint64
	MemoryTypeBits uint32
}

func (d *Device) AllocateForBuffer(b *Buffer, memoryProperties vk.MemoryPropertyFlagBits) (*DeviceMemory, error) {
	ar := b.AllocationRequirements()
	return d.Allocate(ar.Size, ar.MemoryTypeBits, memoryProperties)
}

func (d *Device) AllocateForImage(i *Image, memoryProperties vk.MemoryPropertyFlagBits) (*DeviceMemory, error) {
	ar := i.AllocationRequirements()
	return d.Allocate(ar.Size, ar.MemoryTypeBits, memoryProperties)
}

func (d *Device) Allocate(sizeInBytes uint64, memoryTypeBits uint32, memoryProperties vk.MemoryPropertyFlagBits) (*DeviceMemory, error) {
	typeIndex, err := d.PhysicalDevice.FindMemoryType(memoryTypeBits, memoryProperties)
	if err != nil {
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(sizeInBytes),
		MemoryTypeIndex: typeIndex,
	}

	var deviceMemory vk.DeviceMemory
	err = vk.Error(vk.AllocateMemory(d.VKDevice, &allocateInfo, nil, &deviceMemory))
	if err != nil {
		return nil, err
	}

	return &DeviceMemory{Size: sizeInBytes, Device: d, VKDeviceMemory: deviceMemory}, nil
}
