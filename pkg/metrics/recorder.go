// Package metrics reports segmentation runs in the Prometheus text format so
// that a node_exporter textfile collector can pick them up. Nothing is served.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"ctsegment/pkg/segmentation"
)

// Recorder collects the gauges of one run in a private registry
type Recorder struct {
	registry *prometheus.Registry

	maskVoxels     *prometheus.GaugeVec
	organDuration  *prometheus.GaugeVec
	volumeVoxels   prometheus.Gauge
	runDuration    prometheus.Gauge
	lastSuccessful prometheus.Gauge
}

// NewRecorder creates a recorder with every gauge registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		maskVoxels: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ctsegment_mask_voxels",
				Help: "Number of voxels set in the organ mask",
			},
			[]string{"organ"},
		),
		organDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ctsegment_organ_duration_seconds",
				Help: "Time spent computing and writing the organ mask",
			},
			[]string{"organ"},
		),
		volumeVoxels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctsegment_volume_voxels",
			Help: "Number of voxels in the input volume",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctsegment_run_duration_seconds",
			Help: "Wall time of the whole segmentation run",
		}),
		lastSuccessful: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctsegment_last_success_timestamp_seconds",
			Help: "Unix time at which the last run completed",
		}),
	}
	r.registry.MustRegister(r.maskVoxels, r.organDuration, r.volumeVoxels, r.runDuration, r.lastSuccessful)
	return r
}

// Observe records a completed run
func (r *Recorder) Observe(res *segmentation.Result) {
	r.volumeVoxels.Set(float64(res.Shape[0] * res.Shape[1] * res.Shape[2]))
	r.runDuration.Set(res.Duration.Seconds())
	for _, o := range res.Organs {
		r.maskVoxels.WithLabelValues(o.Name).Set(float64(o.Voxels))
		r.organDuration.WithLabelValues(o.Name).Set(o.Duration.Seconds())
	}
	r.lastSuccessful.SetToCurrentTime()
}

// Registry exposes the underlying registry as a Gatherer
func (r *Recorder) Registry() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes every gauge to path in the Prometheus text format.
// The file is written atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
