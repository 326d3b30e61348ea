package queryservice

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.uber.org/atomic"
)

// metrics holds the atomic counters the async instruments observe.
type metrics struct {
	mActiveConnections atomic.Int64
	mQueriesServed     atomic.Int64
	mEventsPushed      atomic.Int64
}

func (s *QueryService) initMetrics() error {
	meter := global.MeterProvider().Meter("chainindex")

	mActiveConnections, err := meter.Int64ObservableGauge("chainindex.queryservice.active_connections")
	if err != nil {
		return fmt.Errorf("creating active connections gauge: %s", err)
	}
	mQueriesServed, err := meter.Int64ObservableCounter("chainindex.queryservice.queries_served")
	if err != nil {
		return fmt.Errorf("creating queries served counter: %s", err)
	}
	mEventsPushed, err := meter.Int64ObservableCounter("chainindex.queryservice.events_pushed")
	if err != nil {
		return fmt.Errorf("creating events pushed counter: %s", err)
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mActiveConnections, s.metrics.mActiveConnections.Load())
			o.ObserveInt64(mQueriesServed, s.metrics.mQueriesServed.Load())
			o.ObserveInt64(mEventsPushed, s.metrics.mEventsPushed.Load())
			return nil
		}, []instrument.Asynchronous{mActiveConnections, mQueriesServed, mEventsPushed}...)
	if err != nil {
		return fmt.Errorf("registering async metric callback: %s", err)
	}

	return nil
}
