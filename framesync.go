package vkfractal

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// semaphoreWait is a semaphore a batch waits on before stage runs.
type semaphoreWait[S comparable] struct {
	Semaphore S
	Stage     vk.PipelineStageFlagBits
}

// frameBatch is the semaphore traffic of one frame submission.
type frameBatch[S comparable] struct {
	Waits   []semaphoreWait[S]
	Signals []S

	acquire S
	chain   S
	prev    S
	chained bool
}

// semaphoreLedger tracks the completion chains between frames and the
// semaphores waiting to be destroyed. S is a semaphore handle; the zero value
// is the null handle.
type semaphoreLedger[S comparable] struct {
	// pending are chains no frame has waited on yet.
	pending []S
	// orphans have a signal pending that nothing will wait on. They may only
	// be destroyed once the device is idle.
	orphans []S
}

// plan composes a frame's batch. It waits on acquire at the transfer stage
// and, when prev is a chain nobody has waited on, on prev before the
// dispatch. It signals renderDone for present and chain for the next frame.
func (l *semaphoreLedger[S]) plan(acquire, renderDone, chain, prev S) frameBatch[S] {
	b := frameBatch[S]{
		Waits:   []semaphoreWait[S]{{Semaphore: acquire, Stage: vk.PipelineStageTransferBit}},
		Signals: []S{renderDone, chain},
		acquire: acquire,
		chain:   chain,
		prev:    prev,
	}
	var null S
	if prev != null && l.index(prev) >= 0 {
		b.Waits = append(b.Waits, semaphoreWait[S]{Semaphore: prev, Stage: vk.PipelineStageComputeShaderBit})
		b.chained = true
	}
	return b
}

// commit records that b was submitted and returns the semaphores the
// batch's fence covers: the ones it waited on and every chain left unwaited.
// The batch's own chain becomes the only pending one.
func (l *semaphoreLedger[S]) commit(b frameBatch[S]) []S {
	release := []S{b.acquire}
	if b.chained {
		l.take(b.prev)
		release = append(release, b.prev)
	}
	release = append(release, l.pending...)
	l.pending = append(l.pending[:0], b.chain)
	return release
}

// abort records that submitting b failed. The semaphores it would have
// waited on may or may not have been consumed, so they become orphans.
func (l *semaphoreLedger[S]) abort(b frameBatch[S]) {
	l.orphan(b.acquire)
	if b.chained {
		l.take(b.prev)
		l.orphan(b.prev)
	}
}

func (l *semaphoreLedger[S]) orphan(s S) {
	l.orphans = append(l.orphans, s)
}

// drainOrphans must only be called while the device is idle.
func (l *semaphoreLedger[S]) drainOrphans() []S {
	out := l.orphans
	l.orphans = nil
	return out
}

func (l *semaphoreLedger[S]) drainPending() []S {
	out := l.pending
	l.pending = nil
	return out
}

func (l *semaphoreLedger[S]) index(s S) int {
	for i, p := range l.pending {
		if p == s {
			return i
		}
	}
	return -1
}

func (l *semaphoreLedger[S]) take(s S) {
	if i := l.index(s); i >= 0 {
		l.pending = append(l.pending[:i], l.pending[i+1:]...)
	}
}

// throttle waits on the oldest frame while at least limit frames are in
// flight, reclaiming finished frames after every wait.
func throttle(inFlight func() int, limit int, waitOldest func() error, reclaim func()) error {
	for inFlight() >= limit {
		if err := waitOldest(); err != nil {
			return fmt.Errorf("wait for frame in flight: %w", err)
		}
		reclaim()
	}
	return nil
}
