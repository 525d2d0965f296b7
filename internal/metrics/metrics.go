// Package metrics 批量运行的 Prometheus 指标，运行结束后写入 textfile
// 供 node_exporter 的 textfile collector 采集
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iWorld-y/gnc_reports/internal/model"
)

// Metrics 包含一次批量运行的全部指标；nil 值可安全调用
type Metrics struct {
	reg *prometheus.Registry

	ItemsTotal   *prometheus.CounterVec
	ItemDuration *prometheus.HistogramVec
	Recoveries   prometheus.Counter

	Artifacts        prometheus.Gauge
	RunDuration      prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// New 创建指标实例，使用独立的 Registry
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Report items processed, by outcome",
			},
			[]string{"status"},
		),
		ItemDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Time spent on one report item from selection to download",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"status"},
		),
		Recoveries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_recoveries_total",
				Help:      "Session resets after an item failure",
			},
		),
		Artifacts: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "artifacts",
				Help:      "Files present in the download directory at the end of the run",
			},
		),
		RunDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of the last batch run",
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last batch run finished",
			},
		),
	}
}

// ObserveItem 记录单个报表的结果
func (m *Metrics) ObserveItem(res model.ItemResult) {
	if m == nil {
		return
	}
	status := string(res.Status)
	m.ItemsTotal.WithLabelValues(status).Inc()
	m.ItemDuration.WithLabelValues(status).Observe(res.Duration.Seconds())
}

// ObserveRecovery 记录一次会话恢复
func (m *Metrics) ObserveRecovery() {
	if m == nil {
		return
	}
	m.Recoveries.Inc()
}

// ObserveRun 记录整次运行
func (m *Metrics) ObserveRun(report *model.BatchReport) {
	if m == nil || report == nil {
		return
	}
	m.Artifacts.Set(float64(len(report.Artifacts)))
	if !report.FinishedAt.IsZero() {
		m.RunDuration.Set(report.FinishedAt.Sub(report.StartedAt).Seconds())
		m.LastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
	}
}

// WriteTextfile 以 Prometheus 文本格式写入文件（先写临时文件再改名）
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: ensure dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
