// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instrumentationName is the OpenTelemetry scope of the runtime's meters.
const instrumentationName = "code.hybscloud.com/fx"

// MetricsSupervisor records fiber lifecycle metrics through OpenTelemetry:
//
//   - fx.fibers.started: fibers started
//   - fx.fibers.ended: fibers ended, by fx.outcome
//   - fx.fibers.active: fibers started and not yet ended
type MetricsSupervisor struct {
	started metric.Int64Counter
	ended   metric.Int64Counter
	active  metric.Int64UpDownCounter
	attrs   []attribute.KeyValue
}

// NewMetricsSupervisor creates the instruments on meter. attrs are added
// to every measurement.
func NewMetricsSupervisor(meter metric.Meter, attrs ...attribute.KeyValue) (*MetricsSupervisor, error) {
	s := &MetricsSupervisor{attrs: attrs}
	var err error
	s.started, err = meter.Int64Counter("fx.fibers.started",
		metric.WithDescription("Total number of fibers started"),
		metric.WithUnit("{fiber}"),
	)
	if err != nil {
		return nil, fmt.Errorf("fx: create started counter: %w", err)
	}
	s.ended, err = meter.Int64Counter("fx.fibers.ended",
		metric.WithDescription("Total number of fibers ended, by outcome"),
		metric.WithUnit("{fiber}"),
	)
	if err != nil {
		return nil, fmt.Errorf("fx: create ended counter: %w", err)
	}
	s.active, err = meter.Int64UpDownCounter("fx.fibers.active",
		metric.WithDescription("Number of fibers currently alive"),
		metric.WithUnit("{fiber}"),
	)
	if err != nil {
		return nil, fmt.Errorf("fx: create active counter: %w", err)
	}
	return s, nil
}

func (s *MetricsSupervisor) OnStart(Fiber[any]) {
	ctx := context.Background()
	opt := metric.WithAttributes(s.attrs...)
	s.started.Add(ctx, 1, opt)
	s.active.Add(ctx, 1, opt)
}

func (s *MetricsSupervisor) OnEnd(_ Fiber[any], exit Exit[any]) {
	ctx := context.Background()
	s.active.Add(ctx, -1, metric.WithAttributes(s.attrs...))
	attrs := append(s.attrs[:len(s.attrs):len(s.attrs)], attribute.String("fx.outcome", exitOutcome(exit)))
	s.ended.Add(ctx, 1, metric.WithAttributes(attrs...))
}
