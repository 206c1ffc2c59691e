package params

import (
	"fmt"
	"time"

	"github.com/chewxy/math32"
)

// Mode is a parameter feed configuration.
type Mode string

const (
	// ModeMandelbrot animates the zoom depth over time.
	ModeMandelbrot Mode = "mandelbrot"
	// ModeJulia renders a Julia set with a pinned constant.
	ModeJulia Mode = "julia"
	// ModeJuliaCursor renders a Julia set whose constant follows the cursor.
	ModeJuliaCursor Mode = "julia-cursor"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeMandelbrot, ModeJulia, ModeJuliaCursor:
		return true
	}
	return false
}

// Feed turns elapsed time and cursor position into a Frame.
type Feed struct {
	Mode Mode
	// TimeScale converts elapsed seconds into animation time.
	TimeScale float32
	// Center is the view center in the Mandelbrot mode.
	Center [2]float32
	// Constant is the Julia constant in the pinned Julia mode.
	Constant [2]float32
	// Scale and Iterations are used by the Julia modes.
	Scale      float32
	Iterations int32
}

// DefaultFeed is the pinned Julia set.
func DefaultFeed() Feed {
	return Feed{
		Mode:       ModeJulia,
		TimeScale:  0.05,
		Center:     [2]float32{-0.7451544, 0.1853},
		Constant:   [2]float32{-0.162, -1.04},
		Scale:      0.5,
		Iterations: 300,
	}
}

// Validate checks the feed configuration.
func (f Feed) Validate() error {
	if !f.Mode.Valid() {
		return fmt.Errorf("unknown feed mode %q", f.Mode)
	}
	if f.TimeScale < 0 || math32.IsNaN(f.TimeScale) {
		return fmt.Errorf("feed time scale must not be negative, got %g", f.TimeScale)
	}
	if f.Mode != ModeMandelbrot {
		if f.Scale <= 0 {
			return fmt.Errorf("feed scale must be positive, got %g", f.Scale)
		}
		if f.Iterations <= 0 {
			return fmt.Errorf("feed iterations must be positive, got %d", f.Iterations)
		}
	}
	return nil
}

// Compute returns the parameters for a frame. cursor is normalized to [0,1]²
// and clamped.
func (f Feed) Compute(elapsed time.Duration, cursor [2]float32) Frame {
	t := float32(elapsed.Seconds()) * f.TimeScale
	offset := CursorOffset(cursor)

	switch f.Mode {
	case ModeMandelbrot:
		base := ZoomBase(t)
		return Frame{
			Center:     f.Center,
			Time:       t,
			Scale:      Zoom(base),
			Offset:     offset,
			Iterations: Iterations(base),
			Kind:       KindMandelbrot,
		}
	case ModeJuliaCursor:
		return Frame{
			Time:       t,
			Scale:      f.Scale,
			Offset:     offset,
			Iterations: f.Iterations,
			Kind:       KindJulia,
		}
	default:
		return Frame{
			Time:       t,
			Scale:      f.Scale,
			Offset:     f.Constant,
			Iterations: f.Iterations,
			Kind:       KindJulia,
		}
	}
}

// ZoomBase is the un-eased zoom curve, oscillating around 0.7 with amplitude
// 0.38. The sine phase makes t = 0 start at the base zoom of 0.7.
func ZoomBase(t float32) float32 {
	return 0.7 + 0.38*math32.Sin(1.2*t)
}

// Zoom eases the base curve by raising it to the 8th power.
func Zoom(base float32) float32 {
	b2 := base * base
	b4 := b2 * b2
	return b4 * b4
}

// Iterations grows the iteration budget as the zoom deepens, wrapping at 800.
func Iterations(base float32) int32 {
	return 100 + int32(math32.Floor(12/(base*base)))%800
}

// CursorOffset maps a [0,1] cursor position to [-1.5, 1.5].
func CursorOffset(cursor [2]float32) [2]float32 {
	return [2]float32{
		(clamp01(cursor[0]) - 0.5) * 3.0,
		(clamp01(cursor[1]) - 0.5) * 3.0,
	}
}

func clamp01(v float32) float32 {
	if math32.IsNaN(v) {
		return 0.5
	}
	return math32.Min(math32.Max(v, 0), 1)
}
