package vkfractal

import (
	vk "github.com/goki/vulkan"
)

type ImageView struct {
	Device      *Device
	VKImageView vk.ImageView
}

// CreateImageView creates a 2D view of the single color level and layer, the
// form the compute program binds its storage image in.
func (i *Image) CreateImageView() (*ImageView, error) {
	info := &vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            i.VKImage,
		ViewType:         vk.ImageViewType2d,
		Format:           i.VKFormat,
		Components:       vk.ComponentMapping{},
		SubresourceRange: colorRange,
	}

	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(i.Device.VKDevice, info, nil, &view)); err != nil {
		return nil, err
	}
	return &ImageView{Device: i.Device, VKImageView: view}, nil
}

func (i *ImageView) Destroy() {
	vk.DestroyImageView(i.Device.VKDevice, i.VKImageView, nil)
}
