package vkfractal

import (
	vk "github.com/goki/vulkan"
)

type Fence struct {
	Device  *Device
	VKFence vk.Fence
}

func (d *Device) VKCreateFence(signaled bool) (vk.Fence, error) {
	var fence vk.Fence
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	err := vk.Error(vk.CreateFence(d.VKDevice, &fenceCreateInfo, nil, &fence))
	if err != nil {
		return vk.NullFence, err
	}
	return fence, nil
}

func (d *Device) CreateFence() (*Fence, error) {
	fence, err := d.VKCreateFence(false)
	if err != nil {
		return nil, err
	}
	return &Fence{VKFence: fence, Device: d}, nil
}

// Signaled polls the fence without blocking.
func (f *Fence) Signaled() bool {
	return vk.GetFenceStatus(f.Device.VKDevice, f.VKFence) == vk.Success
}

// Wait blocks until the fence is signaled.
func (f *Fence) Wait() error {
	return vk.Error(vk.WaitForFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}, vk.True, vk.MaxUint64))
}

func (f *Fence) Reset() error {
	return vk.Error(vk.ResetFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}))
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.Device.VKDevice, f.VKFence, nil)
}
