// Package config loads the settings of the fractal binaries from a TOML file
// and command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/celer/vkfractal/frame"
	"github.com/celer/vkfractal/params"
)

type Config struct {
	Window  Window  `toml:"window"`
	Render  Render  `toml:"render"`
	Feed    Feed    `toml:"feed"`
	Metrics Metrics `toml:"metrics"`
}

type Window struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type Render struct {
	// TargetWidth and TargetHeight size the off-screen image, independent of
	// the window.
	TargetWidth  uint32 `toml:"target_width"`
	TargetHeight uint32 `toml:"target_height"`
	// Shader is a .wgsl or .spv file replacing the built-in program.
	Shader            string   `toml:"shader"`
	Validation        bool     `toml:"validation"`
	MinAPIVersion     string   `toml:"min_api_version"`
	FallbackExtension string   `toml:"fallback_extension"`
	Extensions        []string `toml:"extensions"`
	Features          []string `toml:"features"`
	MaxFramesInFlight int      `toml:"max_frames_in_flight"`
}

type Feed struct {
	Mode       string     `toml:"mode"`
	TimeScale  float32    `toml:"time_scale"`
	Center     [2]float32 `toml:"center"`
	Constant   [2]float32 `toml:"constant"`
	Scale      float32    `toml:"scale"`
	Iterations int32      `toml:"iterations"`
}

type Metrics struct {
	// Addr is the listen address of the metrics endpoint, empty disables it.
	Addr string `toml:"addr"`
}

func Default() Config {
	req := frame.DefaultRequirements()
	return Config{
		Window: Window{Width: 800, Height: 600, Title: "vkfractal"},
		Render: Render{
			TargetWidth:       1024,
			TargetHeight:      1024,
			MinAPIVersion:     req.MinAPIVersion.String(),
			FallbackExtension: req.FallbackExtension,
			Extensions:        req.Extensions,
			MaxFramesInFlight: 4,
		},
		Feed: FeedFrom(params.DefaultFeed()),
	}
}

// FeedFrom converts a parameter feed into its file form.
func FeedFrom(f params.Feed) Feed {
	return Feed{
		Mode:       string(f.Mode),
		TimeScale:  f.TimeScale,
		Center:     f.Center,
		Constant:   f.Constant,
		Scale:      f.Scale,
		Iterations: f.Iterations,
	}
}

// Params returns the feed section as a parameter feed.
func (f Feed) Params() params.Feed {
	return params.Feed{
		Mode:       params.Mode(f.Mode),
		TimeScale:  f.TimeScale,
		Center:     f.Center,
		Constant:   f.Constant,
		Scale:      f.Scale,
		Iterations: f.Iterations,
	}
}

// Requirements returns the device requirements of the render section.
func (r Render) Requirements() (frame.Requirements, error) {
	v, err := frame.ParseVersion(r.MinAPIVersion)
	if err != nil {
		return frame.Requirements{}, fmt.Errorf("render.min_api_version: %w", err)
	}
	return frame.Requirements{
		MinAPIVersion:     v,
		FallbackExtension: r.FallbackExtension,
		Extensions:        r.Extensions,
		Features:          r.Features,
	}, nil
}

// TargetSize is the off-screen image extent.
func (r Render) TargetSize() frame.Extent {
	return frame.Extent{Width: r.TargetWidth, Height: r.TargetHeight}
}

// Validate returns every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Render.TargetSize().Empty() {
		errs = append(errs, fmt.Errorf("render target size must be positive, got %s", c.Render.TargetSize()))
	}
	if _, err := c.Render.Requirements(); err != nil {
		errs = append(errs, err)
	}
	if c.Render.MaxFramesInFlight < 1 {
		errs = append(errs, fmt.Errorf("render.max_frames_in_flight must be at least 1, got %d", c.Render.MaxFramesInFlight))
	}
	if err := c.Feed.Params().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("feed: %w", err))
	}
	return errors.Join(errs...)
}

// Parse decodes TOML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return Config{}, err
	}
	return c, nil
}

// Load reads and validates the file at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

// Encode writes c as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
