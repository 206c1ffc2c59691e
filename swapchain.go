package vkfractal

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/celer/vkfractal/frame"
)

// Swapchain is one generation of the presentable image chain. It is never
// resized; the Presenter creates a new one and retires the old.
type Swapchain struct {
	Device      *Device
	VKSwapchain vk.Swapchain
	Format      vk.Format
	Images      []vk.Image

	extent     frame.Extent
	generation uint64
	// renderDone[i] is signaled by the submission writing image i and waited
	// on by its present.
	renderDone []vk.Semaphore
}

func (s *Swapchain) Extent() frame.Extent { return s.extent }
func (s *Swapchain) ImageCount() int      { return len(s.Images) }
func (s *Swapchain) Generation() uint64   { return s.generation }

func (s *Swapchain) VKExtent() vk.Extent2D {
	return vk.Extent2D{Width: s.extent.Width, Height: s.extent.Height}
}

// Destroy must only be called once the device no longer uses the swapchain.
func (s *Swapchain) Destroy() {
	for _, sem := range s.renderDone {
		s.Device.VKDestroySemaphore(sem)
	}
	s.renderDone = nil
	vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
}

func (s *Swapchain) getImages() ([]vk.Image, error) {
	var imageCount uint32
	err := vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, nil))
	if err != nil {
		return nil, err
	}

	images := make([]vk.Image, imageCount)
	err = vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, images))
	if err != nil {
		return nil, err
	}
	return images[:imageCount], nil
}

func imageUsage(u frame.ImageUsage) vk.ImageUsageFlagBits {
	var out vk.ImageUsageFlagBits
	if u&frame.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&frame.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&frame.ImageUsageStorage != 0 {
		out |= vk.ImageUsageStorageBit
	}
	return out
}

func presentMode(m frame.PresentMode) vk.PresentMode {
	switch m {
	case frame.PresentModeFIFO:
		return vk.PresentModeFifo
	default:
		return vk.PresentModeFifo
	}
}

// SwapchainOptions are the inputs of Device.CreateSwapchain.
type SwapchainOptions struct {
	Surface vk.Surface
	// Size is the window framebuffer size, used when the surface leaves the
	// extent to the swapchain.
	Size frame.Extent
	// Old is retired by the new swapchain and may be nil.
	Old        *Swapchain
	Generation uint64
}

// CreateSwapchain creates a swapchain for the device's queue family. All
// failures wrap frame.ErrSwapchainCreation.
func (d *Device) CreateSwapchain(opts SwapchainOptions) (*Swapchain, error) {
	fail := func(format string, args ...any) (*Swapchain, error) {
		return nil, fmt.Errorf("%w: %s", frame.ErrSwapchainCreation, fmt.Sprintf(format, args...))
	}

	caps, err := d.PhysicalDevice.GetSurfaceCapabilities(opts.Surface)
	if err != nil {
		return fail("surface capabilities: %v", err)
	}
	formats, err := d.PhysicalDevice.GetSurfaceFormats(opts.Surface)
	if err != nil {
		return fail("surface formats: %v", err)
	}
	plan, err := frame.PlanSwapchain(surfaceCapabilities(caps, formats), opts.Size)
	if err != nil {
		return nil, err
	}
	usage := imageUsage(plan.Usage)
	if vk.ImageUsageFlagBits(caps.SupportedUsageFlags)&usage != usage {
		return fail("surface does not support image usage %#x", uint32(usage))
	}
	if plan.Extent.Empty() {
		return fail("extent %s is empty", plan.Extent)
	}

	createInfo := &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          opts.Surface,
		MinImageCount:    plan.ImageCount,
		ImageFormat:      vk.Format(plan.Format.Format),
		ImageColorSpace:  vk.ColorSpace(plan.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: plan.Extent.Width, Height: plan.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(usage),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaFlagBits(plan.CompositeAlpha),
		PresentMode:      presentMode(plan.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if opts.Old != nil {
		createInfo.OldSwapchain = opts.Old.VKSwapchain
	}

	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(d.VKDevice, createInfo, nil, &swapchain)); err != nil {
		return fail("%v", err)
	}

	sc := &Swapchain{
		Device:      d,
		VKSwapchain: swapchain,
		Format:      createInfo.ImageFormat,
		extent:      plan.Extent,
		generation:  opts.Generation,
	}
	sc.Images, err = sc.getImages()
	if err != nil {
		sc.Destroy()
		return fail("swapchain images: %v", err)
	}
	for range sc.Images {
		sem, err := d.VKCreateSemaphore()
		if err != nil {
			sc.Destroy()
			return fail("semaphore: %v", err)
		}
		sc.renderDone = append(sc.renderDone, sem)
	}
	return sc, nil
}
