package vkfractal

import (
	"math"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkfractal/frame"
)

func TestDeviceClass(t *testing.T) {
	assert.Equal(t, frame.DeviceClassDiscrete, deviceClass(vk.PhysicalDeviceTypeDiscreteGpu))
	assert.Equal(t, frame.DeviceClassIntegrated, deviceClass(vk.PhysicalDeviceTypeIntegratedGpu))
	assert.Equal(t, frame.DeviceClassVirtual, deviceClass(vk.PhysicalDeviceTypeVirtualGpu))
	assert.Equal(t, frame.DeviceClassCPU, deviceClass(vk.PhysicalDeviceTypeCpu))
	assert.Equal(t, frame.DeviceClassOther, deviceClass(vk.PhysicalDeviceTypeOther))
	assert.Equal(t, frame.DeviceClassUnknown, deviceClass(vk.PhysicalDeviceType(1000)))
}

func TestDecodeVersion(t *testing.T) {
	v := frame.Version{Major: 1, Minor: 3, Patch: 275}
	assert.Equal(t, v, DecodeVersion(VKVersion(v)))
	assert.Equal(t, frame.Version{Major: 1, Minor: 2}, DecodeVersion(1<<22|2<<12))
}

func TestFeatureNames(t *testing.T) {
	f := vk.PhysicalDeviceFeatures{
		RobustBufferAccess: vk.True,
		ShaderFloat64:      vk.True,
	}
	assert.Equal(t, []string{"robustBufferAccess", "shaderFloat64"}, featureNames(f))
	assert.Empty(t, featureNames(vk.PhysicalDeviceFeatures{}))
}

func TestEnableFeatures(t *testing.T) {
	f, err := enableFeatures([]string{"shaderFloat64", "shaderInt64"})
	require.NoError(t, err)
	assert.Equal(t, vk.Bool32(vk.True), f.ShaderFloat64)
	assert.Equal(t, vk.Bool32(vk.True), f.ShaderInt64)
	assert.Equal(t, vk.Bool32(vk.False), f.RobustBufferAccess)
	assert.Equal(t, []string{"shaderFloat64", "shaderInt64"}, featureNames(f))

	_, err = enableFeatures([]string{"warpDrive"})
	assert.EqualError(t, err, `unknown device feature "warpDrive"`)

	_, err = enableFeatures([]string{""})
	assert.Error(t, err)
}

func TestSurfaceCapabilities(t *testing.T) {
	caps := &vk.SurfaceCapabilities{
		MinImageCount:           1,
		MaxImageCount:           0,
		CurrentExtent:           vk.Extent2D{Width: 640, Height: 480},
		MinImageExtent:          vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent:          vk.Extent2D{Width: 8192, Height: 8192},
		SupportedCompositeAlpha: vk.CompositeAlphaFlags(vk.CompositeAlphaOpaqueBit | vk.CompositeAlphaInheritBit),
	}
	formats := []vk.SurfaceFormat{
		{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}

	got := surfaceCapabilities(caps, formats)
	assert.True(t, got.CurrentExtentDefined)
	assert.Equal(t, frame.Extent{Width: 640, Height: 480}, got.CurrentExtent)
	assert.Equal(t, frame.Extent{Width: 8192, Height: 8192}, got.MaxImageExtent)
	assert.Equal(t, []frame.SurfaceFormat{{Format: uint32(vk.FormatB8g8r8a8Unorm), ColorSpace: uint32(vk.ColorSpaceSrgbNonlinear)}}, got.Formats)

	plan, err := frame.PlanSwapchain(got, frame.Extent{Width: 100, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), plan.ImageCount)
	assert.Equal(t, uint32(vk.CompositeAlphaOpaqueBit), plan.CompositeAlpha)
	assert.Equal(t, frame.Extent{Width: 640, Height: 480}, plan.Extent)

	caps.CurrentExtent = vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
	got = surfaceCapabilities(caps, formats)
	assert.False(t, got.CurrentExtentDefined)
	assert.Equal(t, frame.Extent{}, got.CurrentExtent)
}

func TestSafeStrings(t *testing.T) {
	in := []string{"VK_KHR_swapchain", "done\x00"}
	out := safeStrings(in)
	assert.Equal(t, []string{"VK_KHR_swapchain\x00", "done\x00"}, out)
	assert.Equal(t, "VK_KHR_swapchain", in[0], "input untouched")
	assert.Equal(t, "\x00", safeString(""))
}

func TestQueueFamilyString(t *testing.T) {
	q := &QueueFamily{
		Index: 2,
		VKQueueFamilyProperties: vk.QueueFamilyProperties{
			QueueFlags: vk.QueueFlags(vk.QueueComputeBit | vk.QueueTransferBit),
		},
	}
	assert.True(t, q.IsCompute())
	assert.Equal(t, "{ Index: 2 Compute: true Graphics: false Transfer: true }", q.String())
}
