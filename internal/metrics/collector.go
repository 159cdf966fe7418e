package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/logging"
	"github.com/hupe1980/swarmchat/model"
	"github.com/hupe1980/swarmchat/pipeline"
	"github.com/hupe1980/swarmchat/registry"
)

// Collector records HTTP, pipeline, registry and model metrics.
type Collector struct {
	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Pipeline
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runSteps     *prometheus.HistogramVec
	stepsTotal   *prometheus.CounterVec
	stepDuration prometheus.Histogram

	// Registry
	creationsTotal *prometheus.CounterVec
	removalsTotal  *prometheus.CounterVec
	instances      prometheus.Gauge

	// Models
	modelRequestsTotal   *prometheus.CounterVec
	modelRequestDuration *prometheus.HistogramVec
	modelTokensUsed      *prometheus.CounterVec

	logger logging.Logger
}

var (
	_ pipeline.Recorder = (*Collector)(nil)
	_ registry.Metrics  = (*Collector)(nil)
	_ model.Observer    = (*Collector)(nil)
)

// NewCollector registers all metrics under namespace with reg.
func NewCollector(namespace string, reg prometheus.Registerer, logger logging.Logger) *Collector {
	factory := promauto.With(reg)
	c := &Collector{logger: logging.OrNoOp(logger)}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 30, 60, 120, 300, 600},
		},
		[]string{"method", "path"},
	)

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"intent", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"intent"},
	)

	c.runSteps = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_steps",
			Help:      "Number of steps completed per successful run",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"intent"},
	)

	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Total number of agent invocations",
		},
		[]string{"status"},
	)

	c.stepDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Agent invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	c.creationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_creations_total",
			Help:      "Total number of instance creations",
		},
		[]string{"status"},
	)

	c.removalsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_removals_total",
			Help:      "Total number of instances removed from the registry",
		},
		[]string{"reason"},
	)

	c.instances = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_instances",
			Help:      "Number of live conversation instances",
		},
	)

	c.modelRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total number of model requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.modelRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Model request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.modelTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.logger.Debug("metrics collector registered", "namespace", namespace)

	return c
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ObserveRun implements pipeline.Recorder.
func (c *Collector) ObserveRun(intent, status string, steps int, d time.Duration) {
	c.runsTotal.WithLabelValues(intent, status).Inc()
	c.runDuration.WithLabelValues(intent).Observe(d.Seconds())
	if status == pipeline.StatusSuccess {
		c.runSteps.WithLabelValues(intent).Observe(float64(steps))
	}
}

// ObserveStep implements pipeline.Recorder.
func (c *Collector) ObserveStep(status string, d time.Duration) {
	c.stepsTotal.WithLabelValues(status).Inc()
	c.stepDuration.Observe(d.Seconds())
}

// ObserveCreate implements registry.Metrics.
func (c *Collector) ObserveCreate(err error) {
	status := pipeline.StatusSuccess
	if err != nil {
		status = core.Kind(err)
	}
	c.creationsTotal.WithLabelValues(status).Inc()
}

// ObserveRemoval implements registry.Metrics.
func (c *Collector) ObserveRemoval(reason string) {
	c.removalsTotal.WithLabelValues(reason).Inc()
}

// SetInstances implements registry.Metrics.
func (c *Collector) SetInstances(n int) {
	c.instances.Set(float64(n))
}

// ObserveModelCall implements model.Observer.
func (c *Collector) ObserveModelCall(info model.Info, status string, d time.Duration, usage *model.TokenUsage) {
	c.modelRequestsTotal.WithLabelValues(info.Provider, info.Name, status).Inc()
	c.modelRequestDuration.WithLabelValues(info.Provider, info.Name).Observe(d.Seconds())
	if usage != nil {
		c.modelTokensUsed.WithLabelValues(info.Provider, info.Name, "prompt").Add(float64(usage.PromptTokens))
		c.modelTokensUsed.WithLabelValues(info.Provider, info.Name, "completion").Add(float64(usage.CompletionTokens))
	}
}
