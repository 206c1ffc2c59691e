/*
Package frame implements the per-frame control flow of a compute-and-present
renderer, independent of any particular graphics API.

A Controller owns the loop state that a Vulkan application usually keeps in
globals: the current swapchain, the "needs recreation" flag, the future of the
previously submitted frame and the last cursor position. It is driven one event
at a time by Handle, from a single goroutine. All GPU work goes through a
Backend, which is implemented for Vulkan by the root vkfractal package and by
fakes in the tests.

Tick sequence

	Idle          window area is zero, nothing is done
	Reclaim       release bookkeeping for work the GPU already finished
	MaybeRecreate rebuild the swapchain if a resize or staleness was seen
	Acquire       get the next presentable image
	Parameters    compute this frame's parameter record
	Submit        dispatch + blit, ordered after the previous frame and the acquire
	Present       queue the image for display after the submission
	Retire        keep the resulting future as the previous frame

The package also holds the pure policies the backend applies: device selection
(SelectDevice) and swapchain planning (PlanSwapchain).
*/
package frame
