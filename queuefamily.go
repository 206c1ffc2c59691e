package vkfractal

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type QueueFamilySlice []*QueueFamily

type QueueFamily struct {
	Index                   int
	PhysicalDevice          *PhysicalDevice
	VKQueueFamilyProperties vk.QueueFamilyProperties
}

func (q *QueueFamily) hasFlag(bit vk.QueueFlagBits) bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(bit) == vk.QueueFlags(bit)
}

func (q *QueueFamily) IsCompute() bool {
	return q.hasFlag(vk.QueueComputeBit)
}

func (q *QueueFamily) IsGraphics() bool {
	return q.hasFlag(vk.QueueGraphicsBit)
}

func (q *QueueFamily) IsTransfer() bool {
	return q.hasFlag(vk.QueueTransferBit)
}

func (q *QueueFamily) SupportsPresent(surface vk.Surface) bool {
	var supportsPresent vk.Bool32
	err := vk.Error(vk.GetPhysicalDeviceSurfaceSupport(q.PhysicalDevice.VKPhysicalDevice, uint32(q.Index), surface, &supportsPresent))
	return err == nil && supportsPresent == vk.True
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Compute: %v Graphics: %v Transfer: %v }", q.Index, q.IsCompute(), q.IsGraphics(), q.IsTransfer())
}
