package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// series is one labelled value of a metric.
type series struct {
	labels string
	value  float64
}

type metric struct {
	help   string
	kind   MetricType
	series map[string]*series
}

// MetricsCollector keeps counters and gauges for inference runs and renders
// them in the Prometheus text format.
type MetricsCollector struct {
	metrics     map[string]*metric
	metricsLock sync.RWMutex

	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string]*metric),
		startTime: time.Now(),
	}
}

// RecordRun counts one envelope call. kind is the error kind for a failed
// call and empty on success.
func (mc *MetricsCollector) RecordRun(model string, rows int, kind string, elapsed time.Duration) {
	status := "completed"
	if kind != "" {
		status = "failed"
	}
	mc.IncrCounter("salesproof_runs_total", "Envelope calls by model and outcome", 1,
		map[string]string{"model": model, "status": status})
	if kind != "" {
		mc.IncrCounter("salesproof_run_errors_total", "Failed envelope calls by error kind", 1,
			map[string]string{"model": model, "kind": kind})
		return
	}
	mc.IncrCounter("salesproof_rows_predicted_total", "Rows predicted", float64(rows),
		map[string]string{"model": model})
	mc.IncrCounter("salesproof_run_seconds_total", "Time spent in successful envelope calls", elapsed.Seconds(),
		map[string]string{"model": model})
}

// RecordVerify counts one proof verification.
func (mc *MetricsCollector) RecordVerify(ok bool) {
	result := "rejected"
	if ok {
		result = "verified"
	}
	mc.IncrCounter("salesproof_verifications_total", "Proof verifications by result", 1,
		map[string]string{"result": result})
}

func (mc *MetricsCollector) IncrCounter(name, help string, value float64, labels map[string]string) {
	mc.record(name, help, MetricTypeCounter, labels, func(s *series) { s.value += value })
}

func (mc *MetricsCollector) SetGauge(name, help string, value float64, labels map[string]string) {
	mc.record(name, help, MetricTypeGauge, labels, func(s *series) { s.value = value })
}

func (mc *MetricsCollector) record(name, help string, kind MetricType, labels map[string]string, update func(*series)) {
	key := formatLabels(labels)

	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m, ok := mc.metrics[name]
	if !ok {
		m = &metric{help: help, kind: kind, series: make(map[string]*series)}
		mc.metrics[name] = m
	}
	s, ok := m.series[key]
	if !ok {
		s = &series{labels: key}
		m.series[key] = s
	}
	update(s)
}

// Value returns the current value of one series, or 0 if it was never set.
func (mc *MetricsCollector) Value(name string, labels map[string]string) float64 {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()
	if m, ok := mc.metrics[name]; ok {
		if s, ok := m.series[formatLabels(labels)]; ok {
			return s.value
		}
	}
	return 0
}

// ExportPrometheus renders every metric with its series sorted by labels.
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.SetGauge("salesproof_goroutines", "Number of goroutines", float64(runtime.NumGoroutine()), nil)
	mc.SetGauge("salesproof_uptime_seconds", "Seconds since start", mc.GetUptime().Seconds(), nil)

	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	names := make([]string, 0, len(mc.metrics))
	for name := range mc.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var out strings.Builder
	for _, name := range names {
		m := mc.metrics[name]
		fmt.Fprintf(&out, "# HELP %s %s\n", name, m.help)
		fmt.Fprintf(&out, "# TYPE %s %s\n", name, m.kind)

		keys := make([]string, 0, len(m.series))
		for key := range m.series {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&out, "%s%s %g\n", name, key, m.series[key].value)
		}
	}
	return out.String()
}

func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
