package rdma

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rocketbitz/efaloop/aio"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var (
	_ MetricHook = (*OTelMetrics)(nil)
	_ aio.Hook   = (*OTelMetrics)(nil)
)

// OTelMetrics implements MetricHook and aio.Hook using OpenTelemetry
// counters.
type OTelMetrics struct {
	meter             metric.Meter
	loopStarted       metric.Int64Counter
	loopStopped       metric.Int64Counter
	completionsPolled metric.Int64Counter
	handlesDispatched metric.Int64Counter
	cqErrors          metric.Int64Counter
	opsCompleted      metric.Int64Counter
	opsFailed         metric.Int64Counter
	bytesTransferred  metric.Int64Counter
}

// NewOTelMetrics constructs a hook that emits OpenTelemetry counter
// measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/rocketbitz/efaloop/rdma"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	o := &OTelMetrics{meter: meter}
	var err error
	if o.loopStarted, err = meter.Int64Counter("efaloop.loop.started"); err != nil {
		return nil, err
	}
	if o.loopStopped, err = meter.Int64Counter("efaloop.loop.stopped"); err != nil {
		return nil, err
	}
	if o.completionsPolled, err = meter.Int64Counter("efaloop.loop.completions_polled"); err != nil {
		return nil, err
	}
	if o.handlesDispatched, err = meter.Int64Counter("efaloop.loop.handles_dispatched"); err != nil {
		return nil, err
	}
	if o.cqErrors, err = meter.Int64Counter("efaloop.loop.cq_errors"); err != nil {
		return nil, err
	}
	if o.opsCompleted, err = meter.Int64Counter("efaloop.conn.operations_completed"); err != nil {
		return nil, err
	}
	if o.opsFailed, err = meter.Int64Counter("efaloop.conn.operations_failed"); err != nil {
		return nil, err
	}
	if o.bytesTransferred, err = meter.Int64Counter("efaloop.conn.bytes_transferred"); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OTelMetrics) LoopStarted() {
	o.loopStarted.Add(context.Background(), 1)
}

func (o *OTelMetrics) LoopStopped() {
	o.loopStopped.Add(context.Background(), 1)
}

func (o *OTelMetrics) CompletionsPolled(n int) {
	o.completionsPolled.Add(context.Background(), int64(n))
}

func (o *OTelMetrics) HandlesDispatched(n int) {
	o.handlesDispatched.Add(context.Background(), int64(n))
}

func (o *OTelMetrics) CQError(error) {
	o.cqErrors.Add(context.Background(), 1)
}

func (o *OTelMetrics) completed(op string, n int) {
	attrs := metric.WithAttributes(attribute.String(labelOperation, op))
	o.opsCompleted.Add(context.Background(), 1, attrs)
	o.bytesTransferred.Add(context.Background(), int64(n), attrs)
}

func (o *OTelMetrics) failed(op string) {
	o.opsFailed.Add(context.Background(), 1, metric.WithAttributes(attribute.String(labelOperation, op)))
}

func (o *OTelMetrics) SendCompleted(n int)  { o.completed("send", n) }
func (o *OTelMetrics) SendFailed(error)     { o.failed("send") }
func (o *OTelMetrics) RecvCompleted(n int)  { o.completed("recv", n) }
func (o *OTelMetrics) RecvFailed(error)     { o.failed("recv") }
func (o *OTelMetrics) WriteCompleted(n int) { o.completed("write", n) }
func (o *OTelMetrics) WriteFailed(error)    { o.failed("write") }
func (o *OTelMetrics) ReadResumed(n int)    { o.completed("read", n) }
func (o *OTelMetrics) ReadFailed(error)     { o.failed("read") }
