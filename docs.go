/*
Package vkfractal renders an animated Mandelbrot or Julia fractal into a window
with a single Vulkan compute dispatch per frame.

Every frame a compute pipeline writes the fractal into a fixed size off-screen
image, the image is blitted into the acquired swapchain image with a linear
filter, and the swapchain image is presented. The interesting part is not the
fractal but the orchestration around it: device and queue selection, swapchain
recreation on resize or staleness, the ordering of submissions, and the fences
and semaphores that tell the CPU what the GPU has finished.

The per-frame state machine lives in the frame package and is written against
frame.Backend. Presenter is the Vulkan implementation of that interface; this
package also holds the thin wrappers it is built from.

Native Vulkan terms
	Instance	the vulkan runtime instance
	PhysicalDevice	the physical hardware device
	Device		the logical device, target of most of the vulkan apis
	Queue		a queue command buffers are submitted to, here compute and present capable
	Swapchain	the chain of presentable images, recreated when the window changes
	Fence		a GPU to CPU signal, polled or waited on by futures
	Semaphore	a GPU to GPU signal, orders one submission after another
	DescriptorSet	binds the target image and the parameter buffer to the shader

Setting up a frame loop

	1. Initialize with the loader's vkGetInstanceProcAddr (from GLFW)
	2. Create an Instance with the window system extensions, optionally with validation
	3. Create a surface and call Instance.SelectDevice
	4. Create the logical device and its queue
	5. Build the compute pipeline from the embedded WGSL program or a SPIR-V file
	6. Create a Presenter and hand it to a frame.Controller

Logging

The package logs through a zap logger set with SetLogger. Nothing is logged
until a logger is set.
*/
package vkfractal
