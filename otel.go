package voicemail

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/sipfoundry/voicemail"

// opInstruments is the latency/count/error instrument triple recorded
// for one manager operation family.
type opInstruments struct {
	latency metric.Float64Histogram
	count   metric.Int64Counter
	errors  metric.Int64Counter
}

func newOpInstruments(meter metric.Meter, op, what string) (opInstruments, error) {
	var oi opInstruments
	var err error

	if oi.latency, err = meter.Float64Histogram(
		"voicemail."+op+".duration",
		metric.WithDescription("Duration of "+what),
		metric.WithUnit("s"),
	); err != nil {
		return oi, err
	}
	if oi.count, err = meter.Int64Counter(
		"voicemail."+op+".count",
		metric.WithDescription("Number of "+what),
	); err != nil {
		return oi, err
	}
	oi.errors, err = meter.Int64Counter(
		"voicemail."+op+".errors",
		metric.WithDescription("Number of failed "+what),
	)
	return oi, err
}

func (oi opInstruments) record(ctx context.Context, d time.Duration, err error, attrs ...attribute.KeyValue) {
	set := metric.WithAttributes(attrs...)
	oi.latency.Record(ctx, d.Seconds(), set)
	oi.count.Add(ctx, 1, set)
	if err != nil {
		oi.errors.Add(ctx, 1, set)
	}
}

// otelInstrumentation holds the manager's OpenTelemetry state. Both
// tracing and metrics are opt-in and default to the global providers.
type otelInstrumentation struct {
	enabled bool

	tracingEnabled bool
	tracer         trace.Tracer

	metricsEnabled bool
	deposit        opInstruments
	forward        opInstruments
	transition     opInstruments
	list           opInstruments
}

func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		enabled:        opts.tracingEnabled || opts.metricsEnabled,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}
	if !o.enabled {
		return o, nil
	}

	if opts.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if opts.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		meter := mp.Meter(instrumentationName)

		var err error
		if o.deposit, err = newOpInstruments(meter, "deposit", "deposit operations"); err != nil {
			return nil, err
		}
		if o.forward, err = newOpInstruments(meter, "forward", "forward operations"); err != nil {
			return nil, err
		}
		if o.transition, err = newOpInstruments(meter, "transition", "folder transitions"); err != nil {
			return nil, err
		}
		if o.list, err = newOpInstruments(meter, "list", "list operations"); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// startSpan starts a span when tracing is on. The returned func records
// the operation's error and ends the span.
func (o *otelInstrumentation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if !o.tracingEnabled || o.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func (o *otelInstrumentation) recordDeposit(ctx context.Context, d time.Duration, urgent bool, err error) {
	if o.metricsEnabled {
		o.deposit.record(ctx, d, err, attribute.Bool("urgent", urgent))
	}
}

func (o *otelInstrumentation) recordForward(ctx context.Context, d time.Duration, withComment bool, err error) {
	if o.metricsEnabled {
		o.forward.record(ctx, d, err, attribute.Bool("with_comment", withComment))
	}
}

func (o *otelInstrumentation) recordTransition(ctx context.Context, d time.Duration, action string, err error) {
	if o.metricsEnabled {
		o.transition.record(ctx, d, err, attribute.String("action", action))
	}
}

func (o *otelInstrumentation) recordList(ctx context.Context, d time.Duration, folder string, results int, err error) {
	if o.metricsEnabled {
		o.list.record(ctx, d, err,
			attribute.String("folder", folder),
			attribute.Int("result_count", results))
	}
}
