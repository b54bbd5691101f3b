package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and histograms for the rendering pipeline.
type Metrics struct {
	registry              *prometheus.Registry
	segmentsRenderedTotal prometheus.Counter
	cacheHitsTotal        prometheus.Counter
	cacheMissesTotal      prometheus.Counter
	coalescedWaitsTotal   prometheus.Counter
	transitionFramesTotal prometheus.Counter
	jobsTotal             *prometheus.CounterVec
	segmentRenderSeconds  prometheus.Histogram
	activeRenders         prometheus.Gauge
}

// New creates and registers Prometheus metrics for the pipeline.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	segmentsRenderedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slides2video_segments_rendered_total",
		Help: "Total number of segments rendered (cache misses that produced a blob)",
	})
	cacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slides2video_cache_hits_total",
		Help: "Total number of segment cache hits",
	})
	cacheMissesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slides2video_cache_misses_total",
		Help: "Total number of segment cache misses",
	})
	coalescedWaitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slides2video_coalesced_waits_total",
		Help: "Total number of requests that waited on another in-flight render of the same key",
	})
	transitionFramesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slides2video_transition_frames_total",
		Help: "Total number of frames composited inside transition windows",
	})
	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slides2video_jobs_total",
		Help: "Total number of composition jobs by outcome",
	}, []string{"outcome"})
	segmentRenderSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slides2video_segment_render_seconds",
		Help:    "Wall time spent rendering a single segment",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	activeRenders := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slides2video_active_renders",
		Help: "Number of segment renders currently running",
	})

	registry.MustRegister(
		segmentsRenderedTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		coalescedWaitsTotal,
		transitionFramesTotal,
		jobsTotal,
		segmentRenderSeconds,
		activeRenders,
	)

	return &Metrics{
		registry:              registry,
		segmentsRenderedTotal: segmentsRenderedTotal,
		cacheHitsTotal:        cacheHitsTotal,
		cacheMissesTotal:      cacheMissesTotal,
		coalescedWaitsTotal:   coalescedWaitsTotal,
		transitionFramesTotal: transitionFramesTotal,
		jobsTotal:             jobsTotal,
		segmentRenderSeconds:  segmentRenderSeconds,
		activeRenders:         activeRenders,
	}
}

// IncSegmentsRendered increments the rendered segments counter.
func (m *Metrics) IncSegmentsRendered() {
	m.segmentsRenderedTotal.Inc()
}

// IncCacheHit increments the cache hit counter.
func (m *Metrics) IncCacheHit() {
	m.cacheHitsTotal.Inc()
}

// IncCacheMiss increments the cache miss counter.
func (m *Metrics) IncCacheMiss() {
	m.cacheMissesTotal.Inc()
}

// IncCoalescedWait increments the coalesced waits counter.
func (m *Metrics) IncCoalescedWait() {
	m.coalescedWaitsTotal.Inc()
}

// AddTransitionFrames adds n to the composited transition frame counter.
func (m *Metrics) AddTransitionFrames(n int) {
	m.transitionFramesTotal.Add(float64(n))
}

// IncJob increments the job counter for the given outcome ("ok" or "error").
func (m *Metrics) IncJob(outcome string) {
	m.jobsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSegmentRender records the wall time of one segment render.
func (m *Metrics) ObserveSegmentRender(d time.Duration) {
	m.segmentRenderSeconds.Observe(d.Seconds())
}

// RenderStarted increments the active render gauge.
func (m *Metrics) RenderStarted() {
	m.activeRenders.Inc()
}

// RenderFinished decrements the active render gauge.
func (m *Metrics) RenderFinished() {
	m.activeRenders.Dec()
}

// Handler returns an http.Handler that serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
