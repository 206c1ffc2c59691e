package vkfractal

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

type Queue struct {
	Device      *Device
	FamilyIndex int
	VKQueue     vk.Queue
}

// Wait is a semaphore a submission waits on before the given stages run.
type Wait struct {
	Semaphore vk.Semaphore
	Stage     vk.PipelineStageFlagBits
}

// Submission is one batch for Queue.Submit.
type Submission struct {
	Buffers []*CommandBuffer
	Waits   []Wait
	Signals []vk.Semaphore
	// Fence is signaled once the batch completes, may be nil.
	Fence *Fence
}

// Submit queues a single batch.
func (q *Queue) Submit(s Submission) error {
	b := make([]vk.CommandBuffer, len(s.Buffers))
	for i := range s.Buffers {
		b[i] = s.Buffers[i].VKCommandBuffer
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(b)),
		PCommandBuffers:      b,
		SignalSemaphoreCount: uint32(len(s.Signals)),
		PSignalSemaphores:    s.Signals,
	}
	if len(s.Waits) > 0 {
		sems := make([]vk.Semaphore, len(s.Waits))
		stages := make([]vk.PipelineStageFlags, len(s.Waits))
		for i, w := range s.Waits {
			sems[i] = w.Semaphore
			stages[i] = vk.PipelineStageFlags(w.Stage)
		}
		submitInfo.WaitSemaphoreCount = uint32(len(sems))
		submitInfo.PWaitSemaphores = sems
		submitInfo.PWaitDstStageMask = stages
	}

	fence := vk.NullFence
	if s.Fence != nil {
		fence = s.Fence.VKFence
	}
	return vk.Error(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
}

// Present queues image index of sc for display once wait is signaled. A
// suboptimal result is reported through the bool, out of date as
// vk.ErrorOutOfDate.
func (q *Queue) Present(sc *Swapchain, index uint32, wait vk.Semaphore) (suboptimal bool, res vk.Result) {
	res = vk.QueuePresent(q.VKQueue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.VKSwapchain},
		PImageIndices:      []uint32{index},
	})
	if res == vk.Suboptimal {
		return true, vk.Success
	}
	return false, res
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %d}", q.Device.String(), q.FamilyIndex)
}
