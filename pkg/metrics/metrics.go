// Package metrics 导出检测循环的 Prometheus 指标
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 检测循环指标，使用独立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	frames        prometheus.Counter
	captureErrors prometheus.Counter
	detections    *prometheus.CounterVec
	moves         prometheus.Counter
	cycleSeconds  prometheus.Histogram
	cpuPercent    prometheus.Gauge
	rssBytes      prometheus.Gauge
}

// New 创建并注册所有指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointsight_frames_total",
			Help: "Frames processed by the detection loop",
		}),
		captureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointsight_capture_errors_total",
			Help: "Screen capture failures",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pointsight_detections_total",
			Help: "Frames in which a target was found",
		}, []string{"target"}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pointsight_pointer_moves_total",
			Help: "Pointer moves triggered by detections",
		}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pointsight_cycle_seconds",
			Help:    "Time spent matching all active targets in one frame",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pointsight_process_cpu_percent",
			Help: "Process CPU usage in percent",
		}),
		rssBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pointsight_process_rss_bytes",
			Help: "Process resident memory in bytes",
		}),
	}

	m.registry.MustRegister(
		m.frames,
		m.captureErrors,
		m.detections,
		m.moves,
		m.cycleSeconds,
		m.cpuPercent,
		m.rssBytes,
	)
	return m
}

// ObserveCycle 记录一帧的处理结果
// found 为命中的目标名称
func (m *Metrics) ObserveCycle(elapsed time.Duration, found []string, moved bool) {
	m.frames.Inc()
	m.cycleSeconds.Observe(elapsed.Seconds())
	for _, name := range found {
		m.detections.WithLabelValues(name).Inc()
	}
	if moved {
		m.moves.Inc()
	}
}

// CaptureError 记录一次采集失败
func (m *Metrics) CaptureError() {
	m.captureErrors.Inc()
}

// SetProcessUsage 更新进程资源占用
func (m *Metrics) SetProcessUsage(cpuPercent float64, rss uint64) {
	m.cpuPercent.Set(cpuPercent)
	m.rssBytes.Set(float64(rss))
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上提供 /metrics，ctx 取消后关闭
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
