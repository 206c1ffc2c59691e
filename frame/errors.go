package frame

import "errors"

var (
	// ErrNoSuitableDevice is returned when no physical device passes the filters.
	ErrNoSuitableDevice = errors.New("no suitable physical device found")

	// ErrSwapchainCreation is returned when the surface rejects the swapchain parameters.
	ErrSwapchainCreation = errors.New("swapchain creation failed")

	// ErrShaderCompile is returned when the compute program cannot be compiled or loaded.
	ErrShaderCompile = errors.New("shader compilation failed")

	// ErrPipelineLink is returned when the compute program cannot be linked into a pipeline.
	ErrPipelineLink = errors.New("pipeline link failed")

	// ErrOutOfDate is reported by Acquire and Present when the swapchain no longer
	// matches the surface and must be recreated.
	ErrOutOfDate = errors.New("swapchain out of date")
)
