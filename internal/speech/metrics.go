package speech

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func (s *Speaker) initMetrics() error {
	if s.meter == nil {
		return nil
	}
	depth, err := s.meter.Int64ObservableGauge("loqa.speech.queue.depth", metric.WithDescription("Commands waiting for the worker"))
	if err != nil {
		return err
	}
	processed, err := s.meter.Int64ObservableCounter("loqa.speech.commands.processed", metric.WithDescription("Commands applied successfully"))
	if err != nil {
		return err
	}
	retries, err := s.meter.Int64ObservableCounter("loqa.speech.commands.retries", metric.WithDescription("Failed command attempts"))
	if err != nil {
		return err
	}
	stops, err := s.meter.Int64ObservableCounter("loqa.speech.stops", metric.WithDescription("Acknowledged stop requests"))
	if err != nil {
		return err
	}
	_, err = s.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(depth, int64(s.queue.Depth()))
		obs.ObserveInt64(processed, s.spokenDone.Load(), metric.WithAttributes(attribute.String("kind", KindText.String())))
		obs.ObserveInt64(processed, s.paramsDone.Load(), metric.WithAttributes(attribute.String("kind", KindParam.String())))
		obs.ObserveInt64(processed, s.voicesDone.Load(), metric.WithAttributes(attribute.String("kind", KindVoice.String())))
		obs.ObserveInt64(retries, s.retries.Load())
		obs.ObserveInt64(stops, s.stops.Load())
		return nil
	}, depth, processed, retries, stops)
	return err
}
