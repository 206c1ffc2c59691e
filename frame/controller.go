package frame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/celer/vkfractal/params"
)

// Backend is the graphics API the controller drives.
type Backend interface {
	// CreateSwapchain creates a swapchain for size. When old is non-nil it is
	// retired by the new swapchain and must not be used afterwards.
	CreateSwapchain(size Extent, old Swapchain) (Swapchain, error)
	// DestroySwapchain releases a swapchain once the device no longer uses it.
	DestroySwapchain(sc Swapchain)
	// Acquire returns the next presentable image. It may block until one is free.
	Acquire(sc Swapchain) (AcquiredImage, error)
	// Submit records and submits the frame's commands. They start only after
	// both after and img.Ready have completed.
	Submit(after Future, img AcquiredImage, p params.Frame) (Future, error)
	// Present queues img for display once submitted has completed.
	Present(submitted Future, img AcquiredImage) (Future, error)
	// Reclaim releases resources of finished frames without blocking.
	Reclaim()
	// WaitIdle blocks until the device has finished all work.
	WaitIdle() error
}

// Config configures a Controller.
type Config struct {
	Backend Backend
	Feed    params.Feed
	// Size is the initial framebuffer size of the window.
	Size   Extent
	Logger *zap.Logger
	Stats  Stats
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Controller is the per-frame state machine.
type Controller struct {
	backend Backend
	feed    params.Feed
	log     *zap.Logger
	stats   Stats
	clock   func() time.Time
	start   time.Time

	size      Extent
	cursor    Point
	swapchain Swapchain
	recreate  bool
	previous  Future
	closing   bool
}

// NewController creates a controller and, unless the window is minimized, the
// initial swapchain.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, errors.New("frame: nil backend")
	}
	if err := cfg.Feed.Validate(); err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	c := &Controller{
		backend:  cfg.Backend,
		feed:     cfg.Feed,
		log:      cfg.Logger,
		stats:    cfg.Stats,
		clock:    cfg.Clock,
		size:     cfg.Size,
		previous: Now(),
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.stats == nil {
		c.stats = nopStats{}
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	c.start = c.clock()
	c.cursor = Point{X: float64(c.size.Width) / 2, Y: float64(c.size.Height) / 2}

	if !c.size.Empty() {
		sc, err := c.backend.CreateSwapchain(c.size, nil)
		if err != nil {
			return nil, err
		}
		c.swapchain = sc
	}
	return c, nil
}

// SetFeed replaces the parameter feed from the next tick on.
func (c *Controller) SetFeed(f params.Feed) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.feed = f
	return nil
}

// Feed returns the active parameter feed.
func (c *Controller) Feed() params.Feed {
	return c.feed
}

// Closing reports whether a CloseRequested event was handled.
func (c *Controller) Closing() bool {
	return c.closing
}

// Handle processes one event. It returns true once the loop should stop.
func (c *Controller) Handle(ev Event) (bool, error) {
	switch e := ev.(type) {
	case Resize:
		if e.Size != c.size {
			c.size = e.Size
			c.recreate = true
		}
	case CursorMove:
		c.cursor = e.Position
	case CloseRequested:
		c.closing = true
	case RefreshTick:
		if err := c.Tick(); err != nil {
			return true, err
		}
	default:
		panic(fmt.Sprintf("frame: unhandled event %T", ev))
	}
	return c.closing, nil
}

// Tick draws one frame. Only fatal errors are returned; per-frame failures are
// logged and recovered on the next tick.
func (c *Controller) Tick() error {
	if c.size.Empty() {
		c.stats.FrameSkipped(SkipMinimized)
		return nil
	}

	c.previous.CleanupFinished()
	c.backend.Reclaim()

	if c.recreate || c.swapchain == nil {
		if err := c.recreateSwapchain(); err != nil {
			return err
		}
	}

	img, err := c.backend.Acquire(c.swapchain)
	switch {
	case errors.Is(err, ErrOutOfDate):
		c.log.Debug("acquire: swapchain out of date")
		c.recreate = true
		c.stats.FrameSkipped(SkipOutOfDate)
		return nil
	case err != nil:
		return fmt.Errorf("failed to acquire next image: %w", err)
	}
	if img.Generation != c.swapchain.Generation() {
		c.log.Warn("acquired image from a retired swapchain",
			zap.Uint64("image_generation", img.Generation),
			zap.Uint64("swapchain_generation", c.swapchain.Generation()))
		c.recreate = true
		c.stats.FrameSkipped(SkipOutOfDate)
		return nil
	}
	if img.Suboptimal {
		c.recreate = true
	}

	now := c.clock()
	p := c.feed.Compute(now.Sub(c.start), c.normalizedCursor())

	previous := c.previous
	c.previous = nil
	submitted, err := c.backend.Submit(previous, img, p)
	if err != nil {
		c.retire(nil, err)
		// The acquired image is never presented, so the swapchain holding it
		// is retired.
		c.recreate = true
		return nil
	}
	presented, err := c.backend.Present(submitted, img)
	c.retire(presented, err)
	if err == nil {
		c.stats.FramePresented(c.clock().Sub(now))
	}
	return nil
}

func (c *Controller) retire(f Future, err error) {
	switch {
	case err == nil:
		c.previous = f
	case errors.Is(err, ErrOutOfDate):
		c.log.Debug("present: swapchain out of date")
		c.recreate = true
		c.previous = Now()
		c.stats.FrameSkipped(SkipOutOfDate)
	default:
		c.log.Error("failed to flush future", zap.Error(err))
		c.previous = Now()
		c.stats.FrameSkipped(SkipFailed)
	}
}

func (c *Controller) recreateSwapchain() error {
	sc, err := c.backend.CreateSwapchain(c.size, c.swapchain)
	if err != nil {
		return fmt.Errorf("failed to recreate swapchain: %w", err)
	}
	if c.swapchain != nil {
		c.backend.DestroySwapchain(c.swapchain)
	}
	c.log.Debug("swapchain recreated",
		zap.Stringer("extent", sc.Extent()),
		zap.Int("images", sc.ImageCount()),
		zap.Uint64("generation", sc.Generation()))
	c.swapchain = sc
	c.recreate = false
	c.stats.SwapchainRecreated()
	return nil
}

func (c *Controller) normalizedCursor() [2]float32 {
	if c.size.Empty() {
		return [2]float32{0.5, 0.5}
	}
	return [2]float32{
		float32(c.cursor.X / float64(c.size.Width)),
		float32(c.cursor.Y / float64(c.size.Height)),
	}
}

// Close waits for the GPU to finish and releases the swapchain. It blocks.
func (c *Controller) Close() error {
	var errs []error
	if c.previous != nil {
		errs = append(errs, c.previous.Wait())
		c.previous = Now()
	}
	errs = append(errs, c.backend.WaitIdle())
	c.backend.Reclaim()
	if c.swapchain != nil {
		c.backend.DestroySwapchain(c.swapchain)
		c.swapchain = nil
	}
	return errors.Join(errs...)
}

// Run drives the controller until a close is requested, ctx is done or a
// fatal error occurs. poll returns the events gathered since the last call; a
// RefreshTick is appended after them on every iteration.
func (c *Controller) Run(ctx context.Context, poll func() []Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		events := append(poll(), RefreshTick{})
		for _, ev := range events {
			done, err := c.Handle(ev)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}
