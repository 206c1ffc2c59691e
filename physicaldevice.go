package vkfractal

import (
	"fmt"
	"math"
	"reflect"
	"unicode"

	vk "github.com/goki/vulkan"

	"github.com/celer/vkfractal/frame"
)

type PhysicalDevice struct {
	DeviceName                 string
	VKPhysicalDevice           vk.PhysicalDevice
	VKPhysicalDeviceProperties vk.PhysicalDeviceProperties
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

// Class returns the device type.
func (p *PhysicalDevice) Class() frame.DeviceClass {
	return deviceClass(p.VKPhysicalDeviceProperties.DeviceType)
}

func deviceClass(t vk.PhysicalDeviceType) frame.DeviceClass {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return frame.DeviceClassDiscrete
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return frame.DeviceClassIntegrated
	case vk.PhysicalDeviceTypeVirtualGpu:
		return frame.DeviceClassVirtual
	case vk.PhysicalDeviceTypeCpu:
		return frame.DeviceClassCPU
	case vk.PhysicalDeviceTypeOther:
		return frame.DeviceClassOther
	default:
		return frame.DeviceClassUnknown
	}
}

// APIVersion is the highest Vulkan version the device supports.
func (p *PhysicalDevice) APIVersion() frame.Version {
	return DecodeVersion(p.VKPhysicalDeviceProperties.ApiVersion)
}

// MinStorageBufferOffsetAlignment is the alignment of storage buffer descriptor offsets.
func (p *PhysicalDevice) MinStorageBufferOffsetAlignment() uint64 {
	a := uint64(p.VKPhysicalDeviceProperties.Limits.MinStorageBufferOffsetAlignment)
	if a == 0 {
		return 1
	}
	return a
}

// MinUniformBufferOffsetAlignment is the alignment of uniform buffer descriptor offsets.
func (p *PhysicalDevice) MinUniformBufferOffsetAlignment() uint64 {
	a := uint64(p.VKPhysicalDeviceProperties.Limits.MinUniformBufferOffsetAlignment)
	if a == 0 {
		return 1
	}
	return a
}

func (p *PhysicalDevice) GetSurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, nil))
	if err != nil {
		return nil, err
	}

	f := make([]vk.SurfaceFormat, count)
	err = vk.Error(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, f))
	if err != nil {
		return nil, err
	}
	for i := range f {
		f[i].Deref()
	}
	return f, nil
}

func (p *PhysicalDevice) GetSurfaceCapabilities(surface vk.Surface) (*vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(p.VKPhysicalDevice, surface, &caps))
	if err != nil {
		return nil, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return &caps, nil
}

// surfaceCapabilities converts what the surface reports into the form
// frame.PlanSwapchain consumes.
func surfaceCapabilities(caps *vk.SurfaceCapabilities, formats []vk.SurfaceFormat) frame.SurfaceCapabilities {
	out := frame.SurfaceCapabilities{
		MinImageCount:           caps.MinImageCount,
		MaxImageCount:           caps.MaxImageCount,
		CurrentExtentDefined:    caps.CurrentExtent.Width != math.MaxUint32,
		MinImageExtent:          frame.Extent{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxImageExtent:          frame.Extent{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
		SupportedCompositeAlpha: uint32(caps.SupportedCompositeAlpha),
	}
	if out.CurrentExtentDefined {
		out.CurrentExtent = frame.Extent{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	}
	for _, f := range formats {
		out.Formats = append(out.Formats, frame.SurfaceFormat{Format: uint32(f.Format), ColorSpace: uint32(f.ColorSpace)})
	}
	return out
}

func (p *PhysicalDevice) QueueFamilies() (QueueFamilySlice, error) {
	var queueFamilyCount uint32

	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &queueFamilyCount, nil)

	if queueFamilyCount == 0 {
		return nil, nil
	}

	queues := make([]vk.QueueFamilyProperties, queueFamilyCount)

	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &queueFamilyCount, queues)

	ret := make(QueueFamilySlice, queueFamilyCount)
	for i, queue := range queues {
		ret[i] = &QueueFamily{Index: i, PhysicalDevice: p, VKQueueFamilyProperties: queue}
		ret[i].VKQueueFamilyProperties.Deref()
	}

	return ret, nil
}

// SupportedExtensions returns the names of the device extensions.
func (p *PhysicalDevice) SupportedExtensions() ([]string, error) {
	var count uint32
	err := vk.Error(vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, nil))
	if err != nil {
		return nil, err
	}

	ext := make([]vk.ExtensionProperties, count)

	err = vk.Error(vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, ext))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ext))
	for _, e := range ext {
		e.Deref()
		names = append(names, vk.ToString(e.ExtensionName[:]))
	}
	return names, nil
}

func (p *PhysicalDevice) VKPhysicalDeviceFeatures() vk.PhysicalDeviceFeatures {
	var deviceFeatures vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(p.VKPhysicalDevice, &deviceFeatures)
	deviceFeatures.Deref()
	return deviceFeatures
}

// Features returns the names of the supported core features, spelled as in
// the Vulkan specification (shaderFloat64, robustBufferAccess, ...).
func (p *PhysicalDevice) Features() []string {
	return featureNames(p.VKPhysicalDeviceFeatures())
}

var bool32Type = reflect.TypeOf(vk.Bool32(0))

func featureNames(f vk.PhysicalDeviceFeatures) []string {
	v := reflect.ValueOf(f)
	t := v.Type()
	var names []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Type != bool32Type {
			continue
		}
		if v.Field(i).Uint() == uint64(vk.True) {
			names = append(names, featureName(field.Name))
		}
	}
	return names
}

// enableFeatures returns a feature struct with exactly the named features set.
func enableFeatures(names []string) (vk.PhysicalDeviceFeatures, error) {
	var f vk.PhysicalDeviceFeatures
	v := reflect.ValueOf(&f).Elem()
	for _, name := range names {
		field, ok := v.Type().FieldByName(fieldName(name))
		if !ok || !field.IsExported() || field.Type != bool32Type {
			return f, fmt.Errorf("unknown device feature %q", name)
		}
		v.FieldByIndex(field.Index).SetUint(uint64(vk.True))
	}
	return f, nil
}

func featureName(field string) string {
	r := []rune(field)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func fieldName(feature string) string {
	if feature == "" {
		return ""
	}
	r := []rune(feature)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Candidate describes the device for frame.SelectDevice. Present support is
// queried against surface.
func (p *PhysicalDevice) Candidate(surface vk.Surface) (frame.DeviceCandidate, error) {
	ext, err := p.SupportedExtensions()
	if err != nil {
		return frame.DeviceCandidate{}, fmt.Errorf("failed to enumerate device extensions: %w", err)
	}
	qfs, err := p.QueueFamilies()
	if err != nil {
		return frame.DeviceCandidate{}, err
	}

	c := frame.DeviceCandidate{
		Name:       p.DeviceName,
		Class:      p.Class(),
		APIVersion: p.APIVersion(),
		Extensions: ext,
		Features:   p.Features(),
	}
	for _, q := range qfs {
		c.QueueFamilies = append(c.QueueFamilies, frame.QueueFamilyInfo{
			Index:   q.Index,
			Compute: q.IsCompute(),
			Present: q.SupportsPresent(surface),
		})
	}
	return c, nil
}

func (p *PhysicalDevice) VKPhysicalDeviceMemoryProperties() vk.PhysicalDeviceMemoryProperties {
	var memoryProperties vk.PhysicalDeviceMemoryProperties

	vk.GetPhysicalDeviceMemoryProperties(p.VKPhysicalDevice, &memoryProperties)
	memoryProperties.Deref()
	return memoryProperties
}

// MemoryHeaps returns the size of every memory heap and whether it is device local.
func (p *PhysicalDevice) MemoryHeaps() []MemoryHeap {
	mp := p.VKPhysicalDeviceMemoryProperties()
	heaps := make([]MemoryHeap, 0, mp.MemoryHeapCount)
	for i := uint32(0); i < mp.MemoryHeapCount; i++ {
		h := mp.MemoryHeaps[i]
		h.Deref()
		heaps = append(heaps, MemoryHeap{
			Size:        uint64(h.Size),
			DeviceLocal: vk.MemoryHeapFlagBits(h.Flags)&vk.MemoryHeapDeviceLocalBit != 0,
		})
	}
	return heaps
}

// MemoryHeap is one memory heap of a physical device.
type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

func (p *PhysicalDevice) FindMemoryType(memoryTypeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	mp := p.VKPhysicalDeviceMemoryProperties()

	// the first type allowed by memoryTypeBits that carries every requested property
	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		if memoryTypeBits&(1<<i) != 0 &&
			vk.MemoryPropertyFlagBits(mt.PropertyFlags)&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no matching memory type found")
}

// CreateLogicalDevice creates the device with a single queue from the selected
// family and the selected extensions and features.
func (p *PhysicalDevice) CreateLogicalDevice(sel frame.Selection, features []string) (*Device, error) {
	enabled, err := enableFeatures(features)
	if err != nil {
		return nil, err
	}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(sel.QueueFamily),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensions := safeStrings(sel.EnabledExtensions)
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{enabled},
	}

	var ldevice vk.Device
	err = vk.Error(vk.CreateDevice(p.VKPhysicalDevice, &deviceCreateInfo, nil, &ldevice))
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	return &Device{PhysicalDevice: p, VKDevice: ldevice, QueueFamily: sel.QueueFamily}, nil
}
