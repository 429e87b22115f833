// Package metrics records build metrics with Prometheus.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/k11v/gtfshtml/internal/build"
)

const namespace = "gtfshtml"

var _ build.Recorder = (*Recorder)(nil)

// Recorder implements build.Recorder.
type Recorder struct {
	builds        *prom.CounterVec
	buildDuration *prom.HistogramVec
	inFlight      prom.Gauge
	rejected      *prom.CounterVec
	feedBytes     prom.Histogram
}

// NewRecorder constructs the build metrics and registers them with reg.
func NewRecorder(reg prom.Registerer) *Recorder {
	r := &Recorder{
		builds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Finished builds by delivery mode and outcome",
		}, []string{"mode", "outcome"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration of admitted builds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 300},
		}, []string{"mode"}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "builds_in_flight",
			Help:      "Builds currently running",
		}),
		rejected: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "builds_rejected_total",
			Help:      "Builds refused before they started",
		}, []string{"reason"}),
		feedBytes: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_size_bytes",
			Help:      "Size of staged GTFS archives",
			Buckets:   prom.ExponentialBuckets(64<<10, 2, 8),
		}),
	}
	reg.MustRegister(r.builds, r.buildDuration, r.inFlight, r.rejected, r.feedBytes)
	return r
}

func (r *Recorder) BuildStarted() {
	r.inFlight.Inc()
}

func (r *Recorder) BuildFinished(mode build.Mode, outcome string, d time.Duration) {
	r.inFlight.Dec()
	r.builds.WithLabelValues(string(mode), outcome).Inc()
	r.buildDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
}

func (r *Recorder) BuildRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) FeedStaged(size int64) {
	r.feedBytes.Observe(float64(size))
}

// NewRegistry returns a registry with the process and Go runtime collectors.
func NewRegistry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg
}

// Handler serves the metrics of reg.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
