package vkfractal

import (
	"errors"

	vk "github.com/goki/vulkan"

	"github.com/celer/vkfractal/frame"
)

var errNeverSubmitted = errors.New("acquired image was never submitted")

// frameFuture completes when the fence of a submitted frame signals. Present
// hands back the same future; the presentation itself is not tracked.
type frameFuture struct {
	p *Presenter
	f *inFlightFrame
}

var _ frame.Future = (*frameFuture)(nil)

func (ff *frameFuture) Done() bool {
	return ff.f.finished()
}

func (ff *frameFuture) Wait() error {
	return ff.f.wait()
}

func (ff *frameFuture) CleanupFinished() {
	ff.p.Reclaim()
}

// acquireFuture stands for an acquired image. It owns the acquire semaphore
// until a submission consumes it, and completes with that submission.
type acquireFuture struct {
	p         *Presenter
	swapchain *Swapchain
	semaphore vk.Semaphore
	consumer  *inFlightFrame
}

var _ frame.Future = (*acquireFuture)(nil)

func (af *acquireFuture) Done() bool {
	return af.consumer != nil && af.consumer.finished()
}

func (af *acquireFuture) Wait() error {
	if af.consumer == nil {
		return errNeverSubmitted
	}
	return af.consumer.wait()
}

func (af *acquireFuture) CleanupFinished() {
	af.p.Reclaim()
}
