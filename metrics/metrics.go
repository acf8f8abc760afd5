package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datatrails/go-datatrails-redisobjs/environment"
	"github.com/datatrails/go-datatrails-redisobjs/logger"
)

type Logger = logger.Logger

// PipelineCommandsMetric counts queued commands by name.
func PipelineCommandsMetric() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redisobjs_pipeline_commands_total",
			Help: "Total number of commands queued on pipelines by service and command.",
		},
		[]string{"service", "command"},
	)
}

func PipelineExecutesMetric() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redisobjs_pipeline_executes_total",
			Help: "Total number of pipeline round trips by service.",
		},
		[]string{"service"},
	)
}

// PipelineLatencyMetric measures the time of one round trip.
// bucket limits are in seconds...
func PipelineLatencyMetric() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redisobjs_pipeline_execute_latency",
			Help:    "Histogram of time to execute a pipeline.",
			Buckets: []float64{.001, .002, .005, .01, .02, .04, .08, .16, .32},
		},
		[]string{"service"},
	)
}

// PipelineBatchSizeMetric measures the number of commands sent per round trip.
func PipelineBatchSizeMetric() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redisobjs_pipeline_batch_size",
			Help:    "Histogram of commands sent per pipeline execute.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"service"},
	)
}

// Metrics. Only those metrics specified
// are returned. The GoCollector and ProcessCollector metrics are omitted by
// using our own registry.
type Metrics struct {
	serviceName string
	port        string
	registry    *prometheus.Registry
	log         Logger
}

func New(log Logger, serviceName string) *Metrics {
	return &Metrics{
		log:         log.WithServiceName(serviceName),
		serviceName: strings.ToLower(serviceName),
		registry:    prometheus.NewRegistry(),
	}
}

// NewFromEnvironment returns nil unless USE_METRICS is truthy, in which case
// METRICS_PORT must be set.
func NewFromEnvironment(log Logger, serviceName string) *Metrics {
	if !environment.GetTruthy("USE_METRICS") {
		return nil
	}
	m := New(log, serviceName)
	m.port = environment.GetOrFatal("METRICS_PORT")
	return m
}

func (m *Metrics) String() string {
	return m.serviceName
}

func (m *Metrics) Register(cs ...prometheus.Collector) {
	m.registry.MustRegister(cs...)
}

func (m *Metrics) Port() string {
	if m != nil {
		return m.port
	}
	return ""
}

// NewPromHandler - this handler is used on the endpoint that serves metrics endpoint
// which is provided on a different port to the service.
// The default InstrumentMetricHandler is suppressed.
func (m *Metrics) NewPromHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
