package vkfractal

import (
	vk "github.com/goki/vulkan"
)

// VKCreateSemaphore creates a binary semaphore. The Presenter uses them to
// order acquire, compute and present on the queue.
func (d *Device) VKCreateSemaphore() (vk.Semaphore, error) {
	var sem vk.Semaphore
	err := vk.Error(vk.CreateSemaphore(d.VKDevice, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem))
	return sem, err
}

// VKDestroySemaphore must only be called once no pending batch uses s.
func (d *Device) VKDestroySemaphore(s vk.Semaphore) {
	vk.DestroySemaphore(d.VKDevice, s, nil)
}
