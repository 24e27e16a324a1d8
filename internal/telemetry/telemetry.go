// Package telemetry records pipeline metrics in a private Prometheus registry
// that can be written to a node-exporter textfile.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"scqc/internal/errors"
)

// Recorder holds one run's metrics
type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	discarded     *prometheus.GaugeVec
	entries       *prometheus.GaugeVec
	clusters      *prometheus.GaugeVec
	meanSil       prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scqc_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"stage"},
		),
		discarded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scqc_discarded_total",
				Help: "Entries flagged for discard by each policy",
			},
			[]string{"axis", "policy"},
		),
		entries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scqc_entries",
				Help: "Number of cells or genes at each pipeline point",
			},
			[]string{"axis", "point"},
		),
		clusters: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scqc_clusters",
				Help: "Number of clusters found by each method",
			},
			[]string{"method"},
		),
		meanSil: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scqc_hclust_mean_silhouette",
			Help: "Mean silhouette width of the hierarchical clustering",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveStage records how long a stage took
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Time starts timing a stage; call the returned func when it ends
func (r *Recorder) Time(stage string) func() {
	start := time.Now()
	return func() { r.ObserveStage(stage, time.Since(start)) }
}

// SetDiscarded records a policy's discard count
func (r *Recorder) SetDiscarded(axis, policy string, n int) {
	r.discarded.WithLabelValues(axis, policy).Set(float64(n))
}

// SetEntries records the number of cells or genes at a named point
func (r *Recorder) SetEntries(axis, point string, n int) {
	r.entries.WithLabelValues(axis, point).Set(float64(n))
}

// SetClusters records a method's cluster count
func (r *Recorder) SetClusters(method string, n int) {
	r.clusters.WithLabelValues(method).Set(float64(n))
}

// SetMeanSilhouette records the hierarchical clustering diagnostic
func (r *Recorder) SetMeanSilhouette(v float64) {
	r.meanSil.Set(v)
}

// WriteTextfile writes every metric in text exposition format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
