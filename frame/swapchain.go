package frame

import "fmt"

// PresentMode is the presentation mode of a swapchain.
type PresentMode int

const (
	// PresentModeFIFO waits for vertical blank; no tearing and no dropped frames.
	PresentModeFIFO PresentMode = iota
)

// ImageUsage is a set of usages requested for swapchain images.
type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageStorage
)

// SurfaceFormat is a backend specific pixel format and color space pair.
type SurfaceFormat struct {
	Format     uint32
	ColorSpace uint32
}

// SurfaceCapabilities is what the presentation surface reports.
type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of zero means no limit.
	MaxImageCount uint32
	// CurrentExtentDefined is false when the surface lets the swapchain choose its size.
	CurrentExtentDefined bool
	CurrentExtent        Extent
	MinImageExtent       Extent
	MaxImageExtent       Extent
	// SupportedCompositeAlpha is a bit mask of supported composite alpha modes.
	SupportedCompositeAlpha uint32
	Formats                 []SurfaceFormat
}

// SwapchainPlan holds the parameters a swapchain is created with.
type SwapchainPlan struct {
	ImageCount     uint32
	Extent         Extent
	Format         SurfaceFormat
	CompositeAlpha uint32
	PresentMode    PresentMode
	Usage          ImageUsage
}

// MinSwapchainImages is the lower bound on image count; some drivers report 1,
// which breaks continuous presentation.
const MinSwapchainImages = 2

// ImageCount returns the number of swapchain images for a surface minimum and maximum.
func ImageCount(min, max uint32) uint32 {
	n := min
	if n < MinSwapchainImages {
		n = MinSwapchainImages
	}
	if max >= MinSwapchainImages && n > max {
		n = max
	}
	return n
}

// PlanSwapchain derives the swapchain parameters for a surface and window size.
func PlanSwapchain(caps SurfaceCapabilities, window Extent) (SwapchainPlan, error) {
	if len(caps.Formats) == 0 {
		return SwapchainPlan{}, fmt.Errorf("%w: surface reports no formats", ErrSwapchainCreation)
	}

	var alpha uint32
	for bit := uint32(1); bit != 0; bit <<= 1 {
		if caps.SupportedCompositeAlpha&bit != 0 {
			alpha = bit
			break
		}
	}
	if alpha == 0 {
		return SwapchainPlan{}, fmt.Errorf("%w: surface reports no composite alpha mode", ErrSwapchainCreation)
	}

	var extent Extent
	if caps.CurrentExtentDefined {
		extent = caps.CurrentExtent
	} else {
		extent = window.Clamp(caps.MinImageExtent, caps.MaxImageExtent)
	}

	return SwapchainPlan{
		ImageCount:     ImageCount(caps.MinImageCount, caps.MaxImageCount),
		Extent:         extent,
		Format:         caps.Formats[0],
		CompositeAlpha: alpha,
		PresentMode:    PresentModeFIFO,
		Usage:          ImageUsageColorAttachment | ImageUsageTransferDst,
	}, nil
}

// Swapchain is a chain of presentable images. Each recreation produces a new
// Swapchain with a higher generation; images of older generations are invalid.
type Swapchain interface {
	Extent() Extent
	ImageCount() int
	Generation() uint64
}

// AcquiredImage is a swapchain image handed out by Backend.Acquire.
type AcquiredImage struct {
	Index      uint32
	Generation uint64
	// Suboptimal means the image is usable but the swapchain should be recreated.
	Suboptimal bool
	// Ready completes when the image may be written to.
	Ready Future
}
