package frame

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/vkfractal/params"
)

type fakeSwapchain struct {
	extent     Extent
	generation uint64
	images     []int
}

func (s *fakeSwapchain) Extent() Extent     { return s.extent }
func (s *fakeSwapchain) ImageCount() int    { return len(s.images) }
func (s *fakeSwapchain) Generation() uint64 { return s.generation }

type fakeFuture struct {
	id       int
	waited   bool
	cleanups int
}

func (f *fakeFuture) Done() bool       { return true }
func (f *fakeFuture) Wait() error      { f.waited = true; return nil }
func (f *fakeFuture) CleanupFinished() { f.cleanups++ }

type submission struct {
	after  Future
	image  AcquiredImage
	params params.Frame
}

type fakeBackend struct {
	calls      []string
	generation uint64
	nextHandle int
	destroyed  []Swapchain

	acquireErr    []error
	suboptimal    bool
	staleAcquire  bool
	submitErr     error
	presentErr    []error
	createErr     error
	submissions   []submission
	futures       []*fakeFuture
	acquiredFrom  []*fakeSwapchain
	acquiredImage []int
}

func (b *fakeBackend) CreateSwapchain(size Extent, old Swapchain) (Swapchain, error) {
	b.calls = append(b.calls, "create")
	if b.createErr != nil {
		return nil, b.createErr
	}
	b.generation++
	sc := &fakeSwapchain{extent: size, generation: b.generation}
	for i := 0; i < 3; i++ {
		b.nextHandle++
		sc.images = append(sc.images, b.nextHandle)
	}
	return sc, nil
}

func (b *fakeBackend) DestroySwapchain(sc Swapchain) {
	b.calls = append(b.calls, "destroy")
	b.destroyed = append(b.destroyed, sc)
}

func (b *fakeBackend) Acquire(sc Swapchain) (AcquiredImage, error) {
	b.calls = append(b.calls, "acquire")
	if len(b.acquireErr) > 0 {
		err := b.acquireErr[0]
		b.acquireErr = b.acquireErr[1:]
		if err != nil {
			return AcquiredImage{}, err
		}
	}
	fsc := sc.(*fakeSwapchain)
	idx := uint32(len(b.acquiredImage) % len(fsc.images))
	b.acquiredFrom = append(b.acquiredFrom, fsc)
	b.acquiredImage = append(b.acquiredImage, fsc.images[idx])
	gen := fsc.generation
	if b.staleAcquire {
		gen--
	}
	return AcquiredImage{Index: idx, Generation: gen, Suboptimal: b.suboptimal, Ready: Now()}, nil
}

func (b *fakeBackend) Submit(after Future, img AcquiredImage, p params.Frame) (Future, error) {
	b.calls = append(b.calls, "submit")
	b.submissions = append(b.submissions, submission{after: after, image: img, params: p})
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	return Now(), nil
}

func (b *fakeBackend) Present(submitted Future, img AcquiredImage) (Future, error) {
	b.calls = append(b.calls, "present")
	if len(b.presentErr) > 0 {
		err := b.presentErr[0]
		b.presentErr = b.presentErr[1:]
		if err != nil {
			return nil, err
		}
	}
	f := &fakeFuture{id: len(b.futures) + 1}
	b.futures = append(b.futures, f)
	return f, nil
}

func (b *fakeBackend) Reclaim()        { b.calls = append(b.calls, "reclaim") }
func (b *fakeBackend) WaitIdle() error { b.calls = append(b.calls, "wait"); return nil }

func (b *fakeBackend) count(call string) int {
	n := 0
	for _, c := range b.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (b *fakeBackend) reset() { b.calls = nil }

type recordingStats struct {
	presented int
	skipped   map[SkipReason]int
	recreated int
}

func (s *recordingStats) FramePresented(time.Duration) { s.presented++ }
func (s *recordingStats) FrameSkipped(r SkipReason) {
	if s.skipped == nil {
		s.skipped = map[SkipReason]int{}
	}
	s.skipped[r]++
}
func (s *recordingStats) SwapchainRecreated() { s.recreated++ }

func newTestController(t *testing.T, b *fakeBackend, size Extent) (*Controller, *recordingStats) {
	t.Helper()
	start := time.Unix(1000, 0)
	stats := &recordingStats{}
	feed := params.DefaultFeed()
	feed.Mode = params.ModeMandelbrot
	c, err := NewController(Config{
		Backend: b,
		Feed:    feed,
		Size:    size,
		Stats:   stats,
		Clock:   func() time.Time { return start },
	})
	require.NoError(t, err)
	b.reset()
	return c, stats
}

func TestNewControllerCreatesSwapchain(t *testing.T) {
	b := &fakeBackend{}
	_, err := NewController(Config{Backend: b, Feed: params.DefaultFeed(), Size: Extent{800, 600}})
	require.NoError(t, err)
	assert.Equal(t, []string{"create"}, b.calls)
}

func TestNewControllerMinimized(t *testing.T) {
	b := &fakeBackend{}
	_, err := NewController(Config{Backend: b, Feed: params.DefaultFeed(), Size: Extent{0, 600}})
	require.NoError(t, err)
	assert.Empty(t, b.calls)
}

func TestNewControllerErrors(t *testing.T) {
	_, err := NewController(Config{Feed: params.DefaultFeed()})
	assert.Error(t, err)

	b := &fakeBackend{createErr: ErrSwapchainCreation}
	_, err = NewController(Config{Backend: b, Feed: params.DefaultFeed(), Size: Extent{1, 1}})
	assert.ErrorIs(t, err, ErrSwapchainCreation)

	bad := params.DefaultFeed()
	bad.Mode = "spiral"
	_, err = NewController(Config{Backend: &fakeBackend{}, Feed: bad, Size: Extent{1, 1}})
	assert.Error(t, err)
}

func TestTickZeroAreaIsNoop(t *testing.T) {
	sizes := []Extent{{0, 0}, {0, 480}, {640, 0}}
	for _, size := range sizes {
		t.Run(size.String(), func(t *testing.T) {
			b := &fakeBackend{}
			c, stats := newTestController(t, b, Extent{640, 480})

			_, err := c.Handle(Resize{Size: size})
			require.NoError(t, err)
			for i := 0; i < 3; i++ {
				require.NoError(t, c.Tick())
			}
			assert.Empty(t, b.calls)
			assert.Equal(t, 3, stats.skipped[SkipMinimized])
		})
	}
}

func TestTickSequence(t *testing.T) {
	b := &fakeBackend{}
	c, stats := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"reclaim", "acquire", "submit", "present"}, b.calls)
	assert.Equal(t, 1, stats.presented)

	require.Len(t, b.submissions, 1)
	p := b.submissions[0].params
	assert.Equal(t, params.KindMandelbrot, p.Kind)
	assert.Equal(t, int32(124), p.Iterations)
	assert.InDelta(t, 0.0576, p.Scale, 0.0005)
	assert.Equal(t, [2]float32{0, 0}, p.Offset)
	assert.True(t, IsNow(b.submissions[0].after))
}

func TestTickOrdersAfterPreviousFrame(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	require.NoError(t, c.Tick())
	require.Len(t, b.submissions, 2)
	require.Len(t, b.futures, 2)
	assert.Same(t, b.futures[0], b.submissions[1].after)
	assert.Equal(t, 1, b.futures[0].cleanups)
}

func TestRetainedFutureIsReplaced(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	for i := 0; i < 50; i++ {
		require.NoError(t, c.Tick())
		require.Len(t, b.futures, i+1)
		assert.Same(t, b.futures[i], c.previous)
	}
	// every future except the latest was handed to exactly one submission
	for i := 1; i < len(b.submissions); i++ {
		assert.Same(t, b.futures[i-1], b.submissions[i].after)
	}
}

func TestResizeRecreatesBeforeAcquire(t *testing.T) {
	b := &fakeBackend{}
	c, stats := newTestController(t, b, Extent{640, 480})

	_, err := c.Handle(Resize{Size: Extent{1024, 768}})
	require.NoError(t, err)
	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"reclaim", "create", "destroy", "acquire", "submit", "present"}, b.calls)
	assert.Equal(t, Extent{1024, 768}, c.swapchain.Extent())
	assert.Equal(t, 1, stats.recreated)

	b.reset()
	require.NoError(t, c.Tick())
	assert.Zero(t, b.count("create"))
}

func TestResizeToSameSizeDoesNotRecreate(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	_, err := c.Handle(Resize{Size: Extent{640, 480}})
	require.NoError(t, err)
	require.NoError(t, c.Tick())
	assert.Zero(t, b.count("create"))
}

func TestRecreateNeverReusesImages(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	before := map[int]bool{}
	for _, sc := range []*fakeSwapchain{b.acquiredFrom[0]} {
		for _, h := range sc.images {
			before[h] = true
		}
	}

	_, err := c.Handle(Resize{Size: Extent{320, 240}})
	require.NoError(t, err)
	require.NoError(t, c.Tick())

	last := b.acquiredImage[len(b.acquiredImage)-1]
	assert.False(t, before[last])
	assert.Equal(t, c.swapchain, b.acquiredFrom[len(b.acquiredFrom)-1])
}

func TestAcquireOutOfDate(t *testing.T) {
	b := &fakeBackend{acquireErr: []error{ErrOutOfDate}}
	c, stats := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"reclaim", "acquire"}, b.calls)
	assert.Equal(t, 1, stats.skipped[SkipOutOfDate])

	b.reset()
	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"reclaim", "create", "destroy", "acquire", "submit", "present"}, b.calls)
}

func TestAcquireFatal(t *testing.T) {
	boom := errors.New("device lost")
	b := &fakeBackend{acquireErr: []error{boom}}
	c, _ := newTestController(t, b, Extent{640, 480})

	err := c.Tick()
	assert.ErrorIs(t, err, boom)

	quit, err := c.Handle(RefreshTick{})
	assert.NoError(t, err)
	assert.False(t, quit)
}

func TestAcquireSuboptimalProceeds(t *testing.T) {
	b := &fakeBackend{suboptimal: true}
	c, _ := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	assert.Equal(t, 1, b.count("present"))
	assert.Zero(t, b.count("create"))

	b.suboptimal = false
	b.reset()
	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"reclaim", "create", "destroy", "acquire", "submit", "present"}, b.calls)
}

func TestAcquireFromRetiredSwapchainIsSkipped(t *testing.T) {
	b := &fakeBackend{staleAcquire: true}
	c, stats := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	assert.Zero(t, b.count("submit"))
	assert.Equal(t, 1, stats.skipped[SkipOutOfDate])
	assert.True(t, c.recreate)
}

func TestPresentOutOfDateRecreatesNextTick(t *testing.T) {
	b := &fakeBackend{presentErr: []error{ErrOutOfDate}}
	c, stats := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	assert.True(t, IsNow(c.previous))
	assert.Equal(t, 1, stats.skipped[SkipOutOfDate])
	assert.Zero(t, stats.presented)

	b.reset()
	require.NoError(t, c.Tick())
	require.GreaterOrEqual(t, len(b.calls), 4)
	assert.Equal(t, []string{"reclaim", "create", "destroy", "acquire"}, b.calls[:4])
}

func TestBackendFailureIsRecoverable(t *testing.T) {
	b := &fakeBackend{submitErr: errors.New("out of device memory")}
	c, stats := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	assert.True(t, IsNow(c.previous))
	assert.Zero(t, b.count("present"))
	assert.Equal(t, 1, stats.skipped[SkipFailed])

	b.submitErr = nil
	b.presentErr = []error{errors.New("surface lost")}
	b.reset()
	require.NoError(t, c.Tick())
	assert.True(t, IsNow(c.previous))
	assert.Equal(t, 2, stats.skipped[SkipFailed])

	b.reset()
	require.NoError(t, c.Tick())
	assert.Zero(t, b.count("create"))
	assert.Equal(t, 1, stats.presented)
}

func TestSubmitFailureRetiresSwapchain(t *testing.T) {
	b := &fakeBackend{submitErr: errors.New("device lost")}
	c, stats := newTestController(t, b, Extent{640, 480})
	first := c.swapchain

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Tick())
	}
	assert.Equal(t, 3, b.count("submit"))
	assert.Zero(t, b.count("present"))
	// Every tick after a failed submit acquires from a fresh swapchain.
	assert.Equal(t, 2, b.count("create"))
	assert.Equal(t, 2, stats.recreated)
	require.NotEmpty(t, b.destroyed)
	assert.Same(t, first, b.destroyed[0])

	b.submitErr = nil
	b.reset()
	require.NoError(t, c.Tick())
	assert.Equal(t, []string{"reclaim", "create", "destroy", "acquire", "submit", "present"}, b.calls)
	assert.Equal(t, 1, stats.presented)
}

func TestRecreateFailureIsFatal(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	b.createErr = ErrSwapchainCreation
	_, err := c.Handle(Resize{Size: Extent{100, 100}})
	require.NoError(t, err)
	quit, err := c.Handle(RefreshTick{})
	assert.True(t, quit)
	assert.ErrorIs(t, err, ErrSwapchainCreation)
}

func TestCursorFeedsJulia(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{200, 100})

	feed := params.DefaultFeed()
	feed.Mode = params.ModeJuliaCursor
	require.NoError(t, c.SetFeed(feed))

	_, err := c.Handle(CursorMove{Position: Point{X: 200, Y: 0}})
	require.NoError(t, err)
	require.NoError(t, c.Tick())

	p := b.submissions[0].params
	assert.Equal(t, params.KindJulia, p.Kind)
	assert.InDelta(t, 1.5, p.Offset[0], 1e-6)
	assert.InDelta(t, -1.5, p.Offset[1], 1e-6)
}

func TestSetFeedRejectsInvalid(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{200, 100})

	bad := params.DefaultFeed()
	bad.TimeScale = -1
	assert.Error(t, c.SetFeed(bad))
	assert.Equal(t, params.ModeMandelbrot, c.Feed().Mode)
}

func TestCloseRequested(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	quit, err := c.Handle(CloseRequested{})
	require.NoError(t, err)
	assert.True(t, quit)
	assert.True(t, c.Closing())
}

func TestCloseWaitsForPreviousFrame(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	require.NoError(t, c.Tick())
	b.reset()
	require.NoError(t, c.Close())
	assert.True(t, b.futures[0].waited)
	assert.Equal(t, []string{"wait", "reclaim", "destroy"}, b.calls)
}

type unknownEvent struct{ Event }

func TestHandleUnknownEventPanics(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})
	assert.Panics(t, func() { _, _ = c.Handle(unknownEvent{}) })
}

func TestRunStopsOnClose(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	polls := 0
	err := c.Run(context.Background(), func() []Event {
		polls++
		if polls == 3 {
			return []Event{CursorMove{Position: Point{1, 1}}, CloseRequested{}}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.Equal(t, 2, b.count("present"))
}

func TestRunStopsOnContext(t *testing.T) {
	b := &fakeBackend{}
	c, _ := newTestController(t, b, Extent{640, 480})

	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	err := c.Run(ctx, func() []Event {
		polls++
		if polls == 2 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, polls)
}

func TestRunReturnsFatalError(t *testing.T) {
	boom := errors.New("device lost")
	b := &fakeBackend{acquireErr: []error{boom}}
	c, _ := newTestController(t, b, Extent{640, 480})

	err := c.Run(context.Background(), func() []Event { return nil })
	assert.ErrorIs(t, err, boom)
}
