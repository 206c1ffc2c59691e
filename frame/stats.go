package frame

import "time"

// SkipReason says why a tick did not present a frame.
type SkipReason string

const (
	SkipMinimized SkipReason = "minimized"
	SkipOutOfDate SkipReason = "out_of_date"
	SkipFailed    SkipReason = "failed"
)

// Stats receives frame loop events, for metrics.
type Stats interface {
	FramePresented(d time.Duration)
	FrameSkipped(reason SkipReason)
	SwapchainRecreated()
}

type nopStats struct{}

func (nopStats) FramePresented(time.Duration) {}
func (nopStats) FrameSkipped(SkipReason)      {}
func (nopStats) SwapchainRecreated()          {}
