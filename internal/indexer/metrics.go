package indexer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.uber.org/atomic"
)

// metrics holds the instruments and the atomic counters their async
// callback observes; held in Indexer's metrics field so commitBlock can update
// them without touching the otel API directly.
type metrics struct {
	mLastProcessedHeight atomic.Int64
	mEventsIndexed        instrument.Int64Counter
}

func (ix *Indexer) initMetrics() error {
	meter := global.MeterProvider().Meter("chainindex")

	mLastProcessedHeight, err := meter.Int64ObservableGauge("chainindex.indexer.last_processed_height")
	if err != nil {
		return fmt.Errorf("creating last processed height gauge: %s", err)
	}
	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mLastProcessedHeight, ix.metrics.mLastProcessedHeight.Load())
			return nil
		}, []instrument.Asynchronous{mLastProcessedHeight}...)
	if err != nil {
		return fmt.Errorf("registering async metric callback: %s", err)
	}

	ix.metrics.mEventsIndexed, err = meter.Int64Counter("chainindex.indexer.events_indexed")
	if err != nil {
		return fmt.Errorf("creating events indexed counter: %s", err)
	}

	return nil
}
