// Package metrics instruments export runs with Prometheus collectors.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"usbverifier/internal/allocator"
)

const namespace = "usbverifier"

// Recorder owns a private registry with the export collectors. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	results      *prometheus.CounterVec
	durations    *prometheus.HistogramVec
	memoryRows   *prometheus.GaugeVec
	addressWidth *prometheus.GaugeVec
	enabled      prometheus.Gauge
	watchdog     prometheus.Gauge
	unmatched    prometheus.Counter
}

// NewRecorder builds a recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations by name and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"operation"}),
		memoryRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_rows",
			Help:      "Rows in each operator memory of the last export.",
		}, []string{"operator"}),
		addressWidth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_address_bits",
			Help:      "Address width of each operator memory of the last export.",
		}, []string{"operator"}),
		enabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operators_enabled",
			Help:      "Operators in use in the last export.",
		}),
		watchdog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watchdog_limit_cycles",
			Help:      "Watchdog limit of the last export, in clock cycles.",
		}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_unmatched_keys_total",
			Help:      "Wrapper constants absent from the HDL template.",
		}),
	}
	r.registry.MustRegister(r.results, r.durations, r.memoryRows, r.addressWidth, r.enabled, r.watchdog, r.unmatched)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Observe records the outcome and latency of one operation.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	r.results.WithLabelValues(operation, result).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLayout publishes the memory layout of an export.
func (r *Recorder) RecordLayout(configs []allocator.Config, summary allocator.Summary) {
	if r == nil {
		return
	}
	for _, cfg := range configs {
		op := cfg.Operator.ReadableName()
		r.memoryRows.WithLabelValues(op).Set(float64(cfg.Total))
		r.addressWidth.WithLabelValues(op).Set(float64(cfg.AddressWidth))
	}
	r.enabled.Set(float64(summary.InUse()))
	r.watchdog.Set(float64(summary.WatchdogLimit))
}

// RecordUnmatched counts wrapper keys the template did not define.
func (r *Recorder) RecordUnmatched(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.unmatched.Add(float64(n))
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
