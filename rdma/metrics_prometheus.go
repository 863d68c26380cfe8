package rdma

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rocketbitz/efaloop/aio"
)

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var (
	_ MetricHook = (*PrometheusMetrics)(nil)
	_ aio.Hook   = (*PrometheusMetrics)(nil)
)

// PrometheusMetrics implements MetricHook and aio.Hook using Prometheus
// counters.
type PrometheusMetrics struct {
	loopStarted       prometheus.Counter
	loopStopped       prometheus.Counter
	completionsPolled prometheus.Counter
	handlesDispatched prometheus.Counter
	cqErrors          prometheus.Counter
	opsCompleted      *prometheus.CounterVec
	opsFailed         *prometheus.CounterVec
	bytesTransferred  *prometheus.CounterVec
}

const labelOperation = "operation"

var operationLabelKeys = []string{labelOperation}

// NewPrometheusMetrics constructs the hook and registers its collectors,
// reusing already registered collectors when present.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: opts.ConstLabels,
		})
	}
	counterVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: opts.ConstLabels,
		}, operationLabelKeys)
	}

	p := &PrometheusMetrics{
		loopStarted:       counter("efaloop_loop_started_total", "Number of times the event loop started"),
		loopStopped:       counter("efaloop_loop_stopped_total", "Number of times the event loop stopped"),
		completionsPolled: counter("efaloop_completions_polled_total", "Completion entries dispatched by the selector"),
		handlesDispatched: counter("efaloop_handles_dispatched_total", "Handles run by the scheduler"),
		cqErrors:          counter("efaloop_cq_errors_total", "Fatal completion queue errors"),
		opsCompleted:      counterVec("efaloop_operations_completed_total", "Completed connection operations"),
		opsFailed:         counterVec("efaloop_operations_failed_total", "Failed connection operations"),
		bytesTransferred:  counterVec("efaloop_bytes_transferred_total", "Bytes moved by completed operations"),
	}

	var err error
	if p.loopStarted, err = registerCounter(reg, p.loopStarted); err != nil {
		return nil, err
	}
	if p.loopStopped, err = registerCounter(reg, p.loopStopped); err != nil {
		return nil, err
	}
	if p.completionsPolled, err = registerCounter(reg, p.completionsPolled); err != nil {
		return nil, err
	}
	if p.handlesDispatched, err = registerCounter(reg, p.handlesDispatched); err != nil {
		return nil, err
	}
	if p.cqErrors, err = registerCounter(reg, p.cqErrors); err != nil {
		return nil, err
	}
	if p.opsCompleted, err = registerCounterVec(reg, p.opsCompleted); err != nil {
		return nil, err
	}
	if p.opsFailed, err = registerCounterVec(reg, p.opsFailed); err != nil {
		return nil, err
	}
	if p.bytesTransferred, err = registerCounterVec(reg, p.bytesTransferred); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PrometheusMetrics) LoopStarted()            { p.loopStarted.Inc() }
func (p *PrometheusMetrics) LoopStopped()            { p.loopStopped.Inc() }
func (p *PrometheusMetrics) CompletionsPolled(n int) { p.completionsPolled.Add(float64(n)) }
func (p *PrometheusMetrics) HandlesDispatched(n int) { p.handlesDispatched.Add(float64(n)) }
func (p *PrometheusMetrics) CQError(error)           { p.cqErrors.Inc() }

func (p *PrometheusMetrics) completed(op string, n int) {
	p.opsCompleted.WithLabelValues(op).Inc()
	p.bytesTransferred.WithLabelValues(op).Add(float64(n))
}

func (p *PrometheusMetrics) SendCompleted(n int)  { p.completed("send", n) }
func (p *PrometheusMetrics) SendFailed(error)     { p.opsFailed.WithLabelValues("send").Inc() }
func (p *PrometheusMetrics) RecvCompleted(n int)  { p.completed("recv", n) }
func (p *PrometheusMetrics) RecvFailed(error)     { p.opsFailed.WithLabelValues("recv").Inc() }
func (p *PrometheusMetrics) WriteCompleted(n int) { p.completed("write", n) }
func (p *PrometheusMetrics) WriteFailed(error)    { p.opsFailed.WithLabelValues("write").Inc() }
func (p *PrometheusMetrics) ReadResumed(n int)    { p.completed("read", n) }
func (p *PrometheusMetrics) ReadFailed(error)     { p.opsFailed.WithLabelValues("read").Inc() }

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}
