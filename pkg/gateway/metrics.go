package gateway

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
)

//nolint:funlen // readability
func (g *Gateway) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("ftg.gateway")
	type data struct {
		name  string
		desc  string
		value func(s *SourceStatus) int64
	}
	for _, d := range []*data{
		{
			"ftg.gateway.packets", "Number of received datagrams",
			func(s *SourceStatus) int64 { return s.Packets },
		},
		{
			"ftg.gateway.discarded", "Number of datagrams with unsupported format",
			func(s *SourceStatus) int64 { return s.Discarded },
		},
		{
			"ftg.gateway.decode_errors", "Number of datagrams failing to decode",
			func(s *SourceStatus) int64 { return s.DecodeErrors },
		},
		{
			"ftg.gateway.dropped_polls", "Number of lap records failing validation",
			func(s *SourceStatus) int64 { return s.DroppedPolls },
		},
		{
			"ftg.gateway.laps", "Number of completed laps",
			func(s *SourceStatus) int64 { return s.LapsCompleted },
		},
	} {
		if _, err := meter.Int64ObservableCounter(
			d.name,
			metric.WithDescription(d.desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				for _, s := range g.Status() {
					o.Observe(d.value(&s),
						metric.WithAttributes(attribute.String("source", s.SourceID)))
				}
				return nil
			})); err != nil {
			g.l.Error("failed to register metric",
				log.String("metric", d.name),
				log.ErrorField(err))
		}
	}
}
