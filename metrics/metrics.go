// Package metrics exports frame loop statistics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/celer/vkfractal/frame"
)

const namespace = "vkfractal"

// Collector implements frame.Stats on top of its own registry.
type Collector struct {
	registry *prometheus.Registry

	presented  prometheus.Counter
	skipped    *prometheus.CounterVec
	recreated  prometheus.Counter
	frameTimes prometheus.Histogram
}

var _ frame.Stats = (*Collector)(nil)

// NewCollector registers the frame metrics plus the Go runtime and process
// collectors on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		presented: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_presented_total",
			Help:      "Frames submitted and queued for presentation.",
		}),
		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Ticks that did not present a frame, by reason.",
		}, []string{"reason"}),
		recreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swapchain_recreations_total",
			Help:      "Swapchains created after the first.",
		}),
		frameTimes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_cpu_seconds",
			Help:      "CPU time from parameter computation to present.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
	}
	for _, r := range []frame.SkipReason{frame.SkipMinimized, frame.SkipOutOfDate, frame.SkipFailed} {
		c.skipped.WithLabelValues(string(r))
	}
	return c
}

func (c *Collector) FramePresented(d time.Duration) {
	c.presented.Inc()
	c.frameTimes.Observe(d.Seconds())
}

func (c *Collector) FrameSkipped(reason frame.SkipReason) {
	c.skipped.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) SwapchainRecreated() {
	c.recreated.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
