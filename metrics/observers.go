package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineObservers records pipeline activity. It satisfies
// redisobjs.Observer.
type PipelineObservers struct {
	commands    *prometheus.CounterVec
	executes    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	batchSize   *prometheus.HistogramVec
	serviceName string
	log         Logger
}

// NewPipelineObserver registers the pipeline metrics with m. A nil m gives a
// nil observer, which records nothing.
func NewPipelineObserver(m *Metrics) *PipelineObservers {
	if m == nil {
		return nil
	}

	o := PipelineObservers{
		log:         m.log,
		commands:    PipelineCommandsMetric(),
		executes:    PipelineExecutesMetric(),
		latency:     PipelineLatencyMetric(),
		batchSize:   PipelineBatchSizeMetric(),
		serviceName: m.serviceName,
	}

	m.Register(o.commands, o.executes, o.latency, o.batchSize)
	return &o
}

func (o *PipelineObservers) ObserveCommand(command string) {
	if o == nil {
		return
	}
	o.commands.WithLabelValues(o.serviceName, command).Inc()
}

func (o *PipelineObservers) ObserveExecute(commands int, elapsed time.Duration) {
	if o == nil {
		return
	}
	o.log.Debugf("Execute %s: %d commands in %v", o.serviceName, commands, elapsed)
	o.executes.WithLabelValues(o.serviceName).Inc()
	o.latency.WithLabelValues(o.serviceName).Observe(elapsed.Seconds())
	o.batchSize.WithLabelValues(o.serviceName).Observe(float64(commands))
}
