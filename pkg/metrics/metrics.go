// Package metrics records release pipeline timings in a private Prometheus registry
// and flushes them once at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	namespace = "relmake"
	jobName   = "relmake"
)

// Recorder collects stage durations and artifact sizes for a single run.
type Recorder struct {
	reg           *prometheus.Registry
	stageSeconds  *prometheus.HistogramVec
	artifactBytes *prometheus.GaugeVec
	failures      *prometheus.CounterVec
	info          *prometheus.GaugeVec
}

// New builds a Recorder labelled with the release version and channel.
func New(version, channel string) *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		reg: reg,
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage", "app"}),
		artifactBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of produced files.",
		}, []string{"app", "os", "arch", "kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that ended the run.",
		}, []string{"stage"}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "release_info",
			Help:      "Constant 1, labelled with the version being built.",
		}, []string{"version", "channel"}),
	}

	reg.MustRegister(r.stageSeconds, r.artifactBytes, r.failures, r.info)
	r.info.WithLabelValues(version, channel).Set(1)
	return r
}

// ObserveStage records how long stage took for app. A nil Recorder is a no-op.
func (r *Recorder) ObserveStage(stage, app string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageSeconds.WithLabelValues(stage, app).Observe(d.Seconds())
}

// SetArtifactSize records the size of a produced file.
func (r *Recorder) SetArtifactSize(app, goos, goarch, kind string, size int64) {
	if r == nil {
		return
	}
	r.artifactBytes.WithLabelValues(app, goos, goarch, kind).Set(float64(size))
}

// Failed counts a stage failure.
func (r *Recorder) Failed(stage string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(stage).Inc()
}

// Flush writes the registry to textfile (node_exporter textfile format) and pushes it to
// pushURL. Either destination may be empty.
func (r *Recorder) Flush(ctx context.Context, textfile, pushURL string) error {
	if r == nil {
		return nil
	}
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, r.reg); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
	}
	if pushURL != "" {
		if err := push.New(pushURL, jobName).Gatherer(r.reg).PushContext(ctx); err != nil {
			return fmt.Errorf("push metrics: %w", err)
		}
	}
	return nil
}
