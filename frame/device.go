package frame

import (
	"fmt"
	"strings"
)

// DeviceClass is the kind of a physical device.
type DeviceClass int

const (
	DeviceClassUnknown DeviceClass = iota
	DeviceClassDiscrete
	DeviceClassIntegrated
	DeviceClassVirtual
	DeviceClassCPU
	DeviceClassOther
)

// Cost ranks the device class, lower is preferred.
func (c DeviceClass) Cost() int {
	switch c {
	case DeviceClassDiscrete:
		return 0
	case DeviceClassIntegrated:
		return 1
	case DeviceClassVirtual:
		return 2
	case DeviceClassCPU:
		return 3
	case DeviceClassOther:
		return 4
	default:
		return 5
	}
}

func (c DeviceClass) String() string {
	switch c {
	case DeviceClassDiscrete:
		return "DiscreteGpu"
	case DeviceClassIntegrated:
		return "IntegratedGpu"
	case DeviceClassVirtual:
		return "VirtualGpu"
	case DeviceClassCPU:
		return "Cpu"
	case DeviceClassOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// QueueFamilyInfo describes one queue family of a candidate device.
type QueueFamilyInfo struct {
	Index   int
	Compute bool
	// Present reports whether the family can present to the target surface.
	Present bool
}

// DeviceCandidate is what the selector knows about one enumerated device.
type DeviceCandidate struct {
	Name          string
	Class         DeviceClass
	APIVersion    Version
	Extensions    []string
	Features      []string
	QueueFamilies []QueueFamilyInfo
}

func (d DeviceCandidate) hasExtension(name string) bool {
	return contains(d.Extensions, name)
}

// Requirements are the filters a device must pass.
type Requirements struct {
	// MinAPIVersion is the minimum API version, unless FallbackExtension is present.
	MinAPIVersion Version
	// FallbackExtension stands in for MinAPIVersion on older devices. Empty disables the fallback.
	FallbackExtension string
	Extensions        []string
	Features          []string
}

// DefaultRequirements asks for Vulkan 1.3 (or dynamic rendering) and a swapchain.
func DefaultRequirements() Requirements {
	return Requirements{
		MinAPIVersion:     Version{Major: 1, Minor: 3},
		FallbackExtension: "VK_KHR_dynamic_rendering",
		Extensions:        []string{"VK_KHR_swapchain"},
	}
}

// Selection is the outcome of SelectDevice.
type Selection struct {
	// Index is the position of the device in the enumeration order.
	Index       int
	Device      DeviceCandidate
	QueueFamily int
	// EnabledExtensions are the device extensions to enable at creation.
	EnabledExtensions []string
}

// Rejection records why a candidate was filtered out.
type Rejection struct {
	Index  int
	Name   string
	Reason string
}

// SelectionError lists the rejection of every candidate.
type SelectionError struct {
	Rejections []Rejection
}

func (e *SelectionError) Error() string {
	if len(e.Rejections) == 0 {
		return ErrNoSuitableDevice.Error() + ": no devices enumerated"
	}
	parts := make([]string, len(e.Rejections))
	for i, r := range e.Rejections {
		parts[i] = fmt.Sprintf("%s: %s", r.Name, r.Reason)
	}
	return ErrNoSuitableDevice.Error() + ": " + strings.Join(parts, "; ")
}

func (e *SelectionError) Unwrap() error {
	return ErrNoSuitableDevice
}

// Evaluate applies the filters to a single candidate. It returns the index of
// the first queue family supporting compute and present, or a non-empty reason
// when the candidate is unsuitable.
func Evaluate(d DeviceCandidate, req Requirements) (queueFamily int, reason string) {
	if d.APIVersion.Less(req.MinAPIVersion) {
		if req.FallbackExtension == "" || !d.hasExtension(req.FallbackExtension) {
			return -1, fmt.Sprintf("api version %s below %s", d.APIVersion, req.MinAPIVersion)
		}
	}
	for _, ext := range req.Extensions {
		if !d.hasExtension(ext) {
			return -1, fmt.Sprintf("missing extension %s", ext)
		}
	}
	for _, f := range req.Features {
		if !contains(d.Features, f) {
			return -1, fmt.Sprintf("missing feature %s", f)
		}
	}
	for _, qf := range d.QueueFamilies {
		if qf.Compute && qf.Present {
			return qf.Index, ""
		}
	}
	return -1, "no queue family with compute and present support"
}

// SelectDevice picks the cheapest suitable device by class; ties go to the
// device enumerated first.
func SelectDevice(candidates []DeviceCandidate, req Requirements) (Selection, error) {
	best := -1
	bestQueue := -1
	var rejections []Rejection

	for i, d := range candidates {
		qf, reason := Evaluate(d, req)
		if reason != "" {
			rejections = append(rejections, Rejection{Index: i, Name: d.Name, Reason: reason})
			continue
		}
		if best == -1 || d.Class.Cost() < candidates[best].Class.Cost() {
			best = i
			bestQueue = qf
		}
	}

	if best == -1 {
		return Selection{}, &SelectionError{Rejections: rejections}
	}

	d := candidates[best]
	extensions := append([]string(nil), req.Extensions...)
	if d.APIVersion.Less(req.MinAPIVersion) && req.FallbackExtension != "" && !contains(extensions, req.FallbackExtension) {
		extensions = append(extensions, req.FallbackExtension)
	}

	return Selection{
		Index:             best,
		Device:            d,
		QueueFamily:       bestQueue,
		EnabledExtensions: extensions,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
