package vkfractal

import (
	"fmt"

	"github.com/docker/go-units"
	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/celer/vkfractal/frame"
)

type Image struct {
	Device   *Device
	VKImage  vk.Image
	VKFormat vk.Format
	Extent   vk.Extent2D
}

func (i *Image) VKMemoryRequirements() vk.MemoryRequirements {
	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.Device.VKDevice, i.VKImage, &memRequirements)
	memRequirements.Deref()
	return memRequirements
}

func (i *Image) AllocationRequirements() AllocationRequirements {
	mr := i.VKMemoryRequirements()
	return AllocationRequirements{Size: uint64(mr.Size), MemoryTypeBits: mr.MemoryTypeBits}
}

func (d *Device) CreateImage(extent vk.Extent2D, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlagBits) (*Image, error) {
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var image vk.Image

	err := vk.Error(vk.CreateImage(d.VKDevice, &imageInfo, nil, &image))
	if err != nil {
		return nil, err
	}

	return &Image{Device: d, VKImage: image, VKFormat: format, Extent: extent}, nil
}

func (i *Image) Destroy() {
	vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
}

// TargetFormat is the pixel format of the off-screen image, matching the
// rgba8unorm storage texture of the shader.
const TargetFormat = vk.FormatR8g8b8a8Unorm

// TargetImage is the fixed size off-screen image the compute program writes
// and the blit reads. It lives for the whole process.
type TargetImage struct {
	Image
	View   *ImageView
	Memory *DeviceMemory
}

// CreateTargetImage creates a device local storage image of the given size.
func (d *Device) CreateTargetImage(size frame.Extent) (*TargetImage, error) {
	if size.Empty() {
		return nil, fmt.Errorf("target image size %s is empty", size)
	}
	img, err := d.CreateImage(vk.Extent2D{Width: size.Width, Height: size.Height}, TargetFormat,
		vk.ImageTilingOptimal, vk.ImageUsageStorageBit|vk.ImageUsageTransferSrcBit)
	if err != nil {
		return nil, fmt.Errorf("failed to create target image: %w", err)
	}
	t := &TargetImage{Image: *img}

	t.Memory, err = d.AllocateForImage(img, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		t.Destroy()
		return nil, fmt.Errorf("failed to allocate target image memory: %w", err)
	}
	if err := vk.Error(vk.BindImageMemory(d.VKDevice, t.VKImage, t.Memory.VKDeviceMemory, 0)); err != nil {
		t.Destroy()
		return nil, fmt.Errorf("failed to bind target image memory: %w", err)
	}
	t.View, err = t.CreateImageView()
	if err != nil {
		t.Destroy()
		return nil, fmt.Errorf("failed to create target image view: %w", err)
	}

	Logger().Debug("target image created",
		zap.Stringer("size", size),
		zap.String("memory", units.BytesSize(float64(t.Memory.Size))))
	return t, nil
}

// Size returns the image extent.
func (t *TargetImage) Size() frame.Extent {
	return frame.Extent{Width: t.Extent.Width, Height: t.Extent.Height}
}

func (t *TargetImage) Destroy() {
	if t.View != nil {
		t.View.Destroy()
		t.View = nil
	}
	t.Image.Destroy()
	if t.Memory != nil {
		t.Memory.Destroy()
		t.Memory = nil
	}
}
