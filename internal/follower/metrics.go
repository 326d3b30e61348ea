package follower

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
)

func (f *Follower) initMetrics() error {
	meter := global.MeterProvider().Meter("chainindex")

	mHeight, err := meter.Int64ObservableGauge("chainindex.follower.height")
	if err != nil {
		return fmt.Errorf("creating height gauge: %s", err)
	}
	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mHeight, f.mCurrentHeight.Load())
			return nil
		}, []instrument.Asynchronous{mHeight}...)
	if err != nil {
		return fmt.Errorf("registering async callback: %s", err)
	}

	return nil
}
