package config

import (
	"flag"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Flags are the command line settings shared by the binaries. Flags that
// are set explicitly override the config file.
type Flags struct {
	Path     string
	LogLevel zapcore.Level

	width, height int
	validation    bool
	shader        string
	mode          string
	features      string
	metricsAddr   string
}

// RegisterFlags defines the flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{LogLevel: zapcore.InfoLevel}
	fs.StringVar(&f.Path, "config", "", "path of a TOML config file")
	fs.Var(&f.LogLevel, "log-level", "log level: debug, info, warn or error")
	fs.IntVar(&f.width, "width", 0, "window width")
	fs.IntVar(&f.height, "height", 0, "window height")
	fs.BoolVar(&f.validation, "debug", false, "enable the validation layer")
	fs.StringVar(&f.shader, "shader", "", "compute program, a .wgsl or .spv file")
	fs.StringVar(&f.mode, "mode", "", "parameter feed: mandelbrot, julia or julia-cursor")
	fs.StringVar(&f.features, "features", "", "comma separated device features to require")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "listen address of the metrics endpoint")
	return f
}

// Load reads the config file named by -config and applies the flags set on fs.
func (f *Flags) Load(fs *flag.FlagSet) (Config, error) {
	c, err := Load(f.Path)
	if err != nil {
		return Config{}, err
	}
	f.Apply(fs, &c)
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid flags: %w", err)
	}
	return c, nil
}

// Apply overrides c with every flag explicitly set on fs.
func (f *Flags) Apply(fs *flag.FlagSet, c *Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "width":
			c.Window.Width = f.width
		case "height":
			c.Window.Height = f.height
		case "debug":
			c.Render.Validation = f.validation
		case "shader":
			c.Render.Shader = f.shader
		case "mode":
			c.Feed.Mode = f.mode
		case "features":
			c.Render.Features = splitList(f.features)
		case "metrics-addr":
			c.Metrics.Addr = f.metricsAddr
		}
	})
}

// Watch reloads the config file named by -config. Flags set on fs keep
// overriding the file after every reload.
func (f *Flags) Watch(fs *flag.FlagSet, log *zap.Logger) (*Watcher, error) {
	w, err := NewWatcher(f.Path, log)
	if err != nil {
		return nil, err
	}
	w.override = func(c *Config) { f.Apply(fs, c) }
	return w, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
