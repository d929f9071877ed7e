package inventory

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName          = "hwinv.inventory"
	metricPushTotal    = "hwinv_push_total"
	metricDeleteTotal  = "hwinv_delete_total"
	metricWatchDropped = "hwinv_watch_dropped_total"
)

var (
	// instrumentation handles are cached globally to avoid re-registering OTEL instruments on every call.
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	pushCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	deleteCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	watchDroppedCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	push, err := meter.Int64Counter(
		metricPushTotal,
		metric.WithDescription("Total hardware push operations by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	pushCounter = push

	del, err := meter.Int64Counter(
		metricDeleteTotal,
		metric.WithDescription("Total hardware delete operations by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	deleteCounter = del

	dropped, err := meter.Int64Counter(
		metricWatchDropped,
		metric.WithDescription("Total watch subscribers dropped for falling behind"),
	)
	if err != nil {
		otel.Handle(err)
	}
	watchDroppedCounter = dropped
}

func recordPush(ctx context.Context, outcome string) {
	meterOnce.Do(initMeter)
	if pushCounter == nil {
		return
	}

	pushCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordDelete(ctx context.Context, outcome string) {
	meterOnce.Do(initMeter)
	if deleteCounter == nil {
		return
	}

	deleteCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordWatchDropped(ctx context.Context) {
	meterOnce.Do(initMeter)
	if watchDroppedCounter == nil {
		return
	}

	watchDroppedCounter.Add(ctx, 1)
}
