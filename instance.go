package vkfractal

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"go.uber.org/zap"

	"github.com/celer/vkfractal/frame"
)

// Initialize loads the Vulkan entry points through procAddr, which is the
// loader's vkGetInstanceProcAddr, usually glfw.GetVulkanGetInstanceProcAddress().
func Initialize(procAddr unsafe.Pointer) error {
	if procAddr == nil {
		return fmt.Errorf("vulkan loader not found")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	return vk.Init()
}

// VKVersion returns a Vulkan compatible version representation
func VKVersion(v frame.Version) uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// DecodeVersion splits a packed Vulkan version.
func DecodeVersion(v uint32) frame.Version {
	return frame.Version{
		Major: int(v >> 22),
		Minor: int((v >> 12) & 0x3ff),
		Patch: int(v & 0xfff),
	}
}

// App is used to provide information about this specific application to Vulkan
type App struct {
	// Name the name of the application
	Name string
	// Engine the name of the engine associated with the application
	EngineName string
	// Version the version of the application
	Version frame.Version
	// APIVersion the expected minimum version of the Vulkan API (i.e. 1.0.0)
	APIVersion frame.Version

	// EnabledLayers the enabled layers
	EnabledLayers []string

	// EnabledExtensions the enabled extensions
	EnabledExtensions []string

	debugReport bool
}

// SupportedLayers returns a list of supported layers for use by Vulkan
// this may crash if Vulkan has not been initialized
func SupportedLayers() ([]string, error) {
	var instanceLayerLen uint32
	err := vk.Error(vk.EnumerateInstanceLayerProperties(&instanceLayerLen, nil))
	if err != nil {
		return nil, err
	}
	instanceLayer := make([]vk.LayerProperties, instanceLayerLen)
	err = vk.Error(vk.EnumerateInstanceLayerProperties(&instanceLayerLen, instanceLayer))
	if err != nil {
		return nil, err
	}
	layerNames := make([]string, 0, len(instanceLayer))
	for _, layer := range instanceLayer {
		layer.Deref()
		layerNames = append(layerNames, vk.ToString(layer.LayerName[:]))
	}
	return layerNames, nil
}

// SupportedExtensions returns a list of supported instance extensions
// this may crash if Vulkan has not been initialized
func SupportedExtensions() ([]string, error) {
	var instanceExtLen uint32
	err := vk.Error(vk.EnumerateInstanceExtensionProperties("", &instanceExtLen, nil))
	if err != nil {
		return nil, err
	}
	instanceExt := make([]vk.ExtensionProperties, instanceExtLen)
	err = vk.Error(vk.EnumerateInstanceExtensionProperties("", &instanceExtLen, instanceExt))
	if err != nil {
		return nil, err
	}
	extNames := make([]string, 0, len(instanceExt))
	for _, ext := range instanceExt {
		ext.Deref()
		extNames = append(extNames, vk.ToString(ext.ExtensionName[:]))
	}
	return extNames, nil
}

// EnableDebugging turns on the Khronos validation layer and routes its reports
// to the package logger once the instance is created.
//
// see: https://vulkan.lunarg.com/doc/view/latest/windows/khronos_validation_layer.html
func (a *App) EnableDebugging() error {
	if _, err := a.EnableLayer("VK_LAYER_KHRONOS_validation"); err != nil {
		return err
	}
	a.EnableExtension("VK_EXT_debug_report")
	a.debugReport = true
	return nil
}

// Enable a specific layer
func (a *App) EnableLayer(layer string) (*App, error) {
	layers, err := SupportedLayers()
	if err != nil {
		return a, fmt.Errorf("error getting supported layers: %w", err)
	}
	if !containsString(layers, layer) {
		return a, fmt.Errorf("validation layer '%s' not found", layer)
	}
	if !containsString(a.EnabledLayers, layer) {
		a.EnabledLayers = append(a.EnabledLayers, layer)
	}
	return a, nil
}

// Enable an extension for use by the application
func (a *App) EnableExtension(extension ...string) *App {
	for _, e := range extension {
		if !containsString(a.EnabledExtensions, e) {
			a.EnabledExtensions = append(a.EnabledExtensions, e)
		}
	}
	return a
}

// VKApplicationInfo creates a structure representing this application in a Vulkan friendly format
func (a *App) VKApplicationInfo() vk.ApplicationInfo {
	api := a.APIVersion
	if api.Major < 1 {
		api = frame.Version{Major: 1}
	}

	return vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         VKVersion(api),
		ApplicationVersion: VKVersion(a.Version),
		PApplicationName:   safeString(a.Name),
		PEngineName:        safeString(a.EngineName),
	}
}

// CreateInstance creates an the Vulkan Instance
func (a *App) CreateInstance() (*Instance, error) {
	appInfo := a.VKApplicationInfo()

	extensions := safeStrings(a.EnabledExtensions)
	layers := safeStrings(a.EnabledLayers)

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	instance := &Instance{}

	err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance.VKInstance))
	if err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}
	if err := vk.InitInstance(instance.VKInstance); err != nil {
		vk.DestroyInstance(instance.VKInstance, nil)
		return nil, fmt.Errorf("failed to load instance functions: %w", err)
	}

	if a.debugReport {
		if err := instance.SetDebugCallback(logDebugReport); err != nil {
			Logger().Warn("debug report callback not installed", zap.Error(err))
		}
	}

	return instance, nil
}

// Instance is an instance of the Vulkan subsystem
type Instance struct {
	// VKInstance is the native Vulkan instance object
	VKInstance vk.Instance

	debugCallback    vk.DebugReportCallback
	hasDebugCallback bool
}

// PhysicalDevices returns the physical devices known to Vulkan, in enumeration order
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(i.VKInstance, &deviceCount, nil))
	if err != nil {
		return nil, err
	}

	if deviceCount == 0 {
		return nil, nil
	}

	devices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(i.VKInstance, &deviceCount, devices))
	if err != nil {
		return nil, err
	}

	ret := make([]*PhysicalDevice, deviceCount)
	for i, device := range devices {
		ret[i] = &PhysicalDevice{VKPhysicalDevice: device}

		vk.GetPhysicalDeviceProperties(device, &ret[i].VKPhysicalDeviceProperties)
		ret[i].VKPhysicalDeviceProperties.Deref()
		ret[i].VKPhysicalDeviceProperties.Limits.Deref()
		ret[i].DeviceName = vk.ToString(ret[i].VKPhysicalDeviceProperties.DeviceName[:])
	}
	return ret, nil
}

// SetDebugCallback installs a debug report callback for errors, warnings and
// performance warnings. Only one callback is kept per instance.
func (i *Instance) SetDebugCallback(callback vk.DebugReportCallbackFunc) error {
	if i.hasDebugCallback {
		vk.DestroyDebugReportCallback(i.VKInstance, i.debugCallback, nil)
		i.hasDebugCallback = false
	}
	var debugCallback vk.DebugReportCallback
	ret := vk.CreateDebugReportCallback(i.VKInstance, &vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit),
		PfnCallback: callback,
	}, nil, &debugCallback)
	if err := vk.Error(ret); err != nil {
		return err
	}
	i.debugCallback = debugCallback
	i.hasDebugCallback = true
	return nil
}

func logDebugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint64, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	fields := []zap.Field{
		zap.String("layer", pLayerPrefix),
		zap.Int32("code", messageCode),
	}
	l := Logger()
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		l.Error(pMessage, fields...)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		l.Warn(pMessage, fields...)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		l.Warn(pMessage, append(fields, zap.Bool("performance", true))...)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		l.Debug(pMessage, fields...)
	default:
		l.Info(pMessage, fields...)
	}
	return vk.Bool32(vk.False)
}

// SelectDevice enumerates the physical devices, describes each of them
// against surface and picks one with frame.SelectDevice.
func (i *Instance) SelectDevice(surface vk.Surface, req frame.Requirements) (*PhysicalDevice, frame.Selection, error) {
	devices, err := i.PhysicalDevices()
	if err != nil {
		return nil, frame.Selection{}, fmt.Errorf("failed to enumerate physical devices: %w", err)
	}

	candidates := make([]frame.DeviceCandidate, len(devices))
	for n, d := range devices {
		c, err := d.Candidate(surface)
		if err != nil {
			return nil, frame.Selection{}, fmt.Errorf("failed to query %s: %w", d, err)
		}
		candidates[n] = c
	}

	sel, err := frame.SelectDevice(candidates, req)
	if err != nil {
		return nil, frame.Selection{}, err
	}
	pd := devices[sel.Index]
	fields := []zap.Field{
		zap.String("name", sel.Device.Name),
		zap.Stringer("type", sel.Device.Class),
		zap.Stringer("api", sel.Device.APIVersion),
		zap.Int("queue_family", sel.QueueFamily),
	}
	if families, err := pd.QueueFamilies(); err == nil && sel.QueueFamily < len(families) {
		fields = append(fields, zap.Stringer("queue", families[sel.QueueFamily]))
	}
	Logger().Info("using device", fields...)
	return pd, sel, nil
}

func (i *Instance) Destroy() {
	if i.hasDebugCallback {
		vk.DestroyDebugReportCallback(i.VKInstance, i.debugCallback, nil)
		i.hasDebugCallback = false
	}
	vk.DestroyInstance(i.VKInstance, nil)
}
