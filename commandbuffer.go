package vkfractal

import (
	vk "github.com/goki/vulkan"
)

// CommandBuffers describe a sequence of commands that will be executed
// upon being sent to a device queue. Not all available vulkan commands
// are wrapped by this package. It is expected that the calling application
// must call the native vulkan command APIs.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

// Reset this command buffer
func (c *CommandBuffer) Reset() error {
	return vk.Error(vk.ResetCommandBuffer(c.VKCommandBuffer, 0))
}

// BeginOneTime begins capturing work for this command buffer, with the stipulation that it will only be submitted once before being reset
func (c *CommandBuffer) BeginOneTime() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return vk.Error(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

func (c *CommandBuffer) CmdBindComputePipeline(p *ComputePipeline) {
	vk.CmdBindPipeline(c.VKCommandBuffer, vk.PipelineBindPointCompute, p.VKPipeline)
}

func (c *CommandBuffer) CmdBindDescriptorSets(bindPoint vk.PipelineBindPoint, layout *PipelineLayout, firstSet int, descriptorSets ...*DescriptorSet) {
	sets := make([]vk.DescriptorSet, len(descriptorSets))
	for i := range descriptorSets {
		sets[i] = descriptorSets[i].VKDescriptorSet
	}

	vk.CmdBindDescriptorSets(c.VKCommandBuffer, bindPoint,
		layout.VKPipelineLayout, uint32(firstSet), uint32(len(descriptorSets)), sets, 0, nil)
}

func (c *CommandBuffer) CmdDispatch(x, y, z uint32) {
	vk.CmdDispatch(c.VKCommandBuffer, x, y, z)
}

// ImageTransition moves a whole color image from one layout to another.
type ImageTransition struct {
	Image              vk.Image
	OldLayout          vk.ImageLayout
	NewLayout          vk.ImageLayout
	SrcAccess          vk.AccessFlagBits
	DstAccess          vk.AccessFlagBits
	SrcStage, DstStage vk.PipelineStageFlagBits
}

var colorRange = vk.ImageSubresourceRange{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LevelCount: 1,
	LayerCount: 1,
}

var colorLayers = vk.ImageSubresourceLayers{
	AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	LayerCount: 1,
}

// CmdImageBarrier records a pipeline barrier for a single layout transition.
func (c *CommandBuffer) CmdImageBarrier(t ImageTransition) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(t.SrcAccess),
		DstAccessMask:       vk.AccessFlags(t.DstAccess),
		OldLayout:           t.OldLayout,
		NewLayout:           t.NewLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.Image,
		SubresourceRange:    colorRange,
	}
	vk.CmdPipelineBarrier(c.VKCommandBuffer,
		vk.PipelineStageFlags(t.SrcStage), vk.PipelineStageFlags(t.DstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// CmdBlitImage scales the whole of src onto the whole of dst with a linear
// filter. src must be in TRANSFER_SRC_OPTIMAL and dst in TRANSFER_DST_OPTIMAL.
func (c *CommandBuffer) CmdBlitImage(src vk.Image, srcSize vk.Extent2D, dst vk.Image, dstSize vk.Extent2D) {
	region := vk.ImageBlit{
		SrcSubresource: colorLayers,
		SrcOffsets: [2]vk.Offset3D{
			{},
			{X: int32(srcSize.Width), Y: int32(srcSize.Height), Z: 1},
		},
		DstSubresource: colorLayers,
		DstOffsets: [2]vk.Offset3D{
			{},
			{X: int32(dstSize.Width), Y: int32(dstSize.Height), Z: 1},
		},
	}
	vk.CmdBlitImage(c.VKCommandBuffer,
		src, vk.ImageLayoutTransferSrcOptimal,
		dst, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}

// End describing work for this command buffer
func (c *CommandBuffer) End() error {
	return vk.Error(vk.EndCommandBuffer(c.VKCommandBuffer))
}
