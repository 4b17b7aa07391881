package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 持有故事服务的 Prometheus 指标。每个实例使用独立的 registry，
// 测试之间互不干扰。
type Metrics struct {
	registry *prometheus.Registry

	storySteps       *prometheus.CounterVec
	imageGenerations *prometheus.CounterVec
	duration         *prometheus.HistogramVec
}

// New 创建并注册全部指标。
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		storySteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyteller_story_steps_total",
			Help: "Total number of story text requests, partitioned by endpoint and status.",
		}, []string{"endpoint", "status"}),
		imageGenerations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyteller_image_generations_total",
			Help: "Total number of illustration requests, partitioned by status.",
		}, []string{"status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storyteller_generation_duration_seconds",
			Help:    "Latency of text and image generation.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"kind"}),
	}
}

// ObserveStep 记录一次文本生成。
func (m *Metrics) ObserveStep(endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.storySteps.WithLabelValues(endpoint, status).Inc()
	m.duration.WithLabelValues("text").Observe(elapsed.Seconds())
}

// ObserveImage 记录一次插图生成。
func (m *Metrics) ObserveImage(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.imageGenerations.WithLabelValues(status).Inc()
	m.duration.WithLabelValues("image").Observe(elapsed.Seconds())
}

// Handler 暴露 /metrics。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层 registry。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
