package session

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-listen/session"

type metrics struct {
	transitions metric.Int64Counter
	results     metric.Int64Counter
	stale       metric.Int64Counter
	buffers     metric.Int64Counter
	dropped     metric.Int64Counter
}

func newMetrics(log *slog.Logger) *metrics {
	meter := otel.Meter(instrumentationName)
	return &metrics{
		transitions: counter(meter, log, "listen.session.transitions", "Session state transitions"),
		results:     counter(meter, log, "listen.session.results", "Recognition results forwarded"),
		stale:       counter(meter, log, "listen.session.stale_results", "Results dropped for a superseded handle"),
		buffers:     counter(meter, log, "listen.capture.buffers", "Audio buffers appended to a request"),
		dropped:     counter(meter, log, "listen.capture.dropped_buffers", "Audio buffers dropped on a full request queue"),
	}
}

func counter(meter metric.Meter, log *slog.Logger, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		log.Warn("failed to initialize metric", slog.String("metric", name), slog.String("error", err.Error()))
		return noop.Int64Counter{}
	}
	return c
}

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
