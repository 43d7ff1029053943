package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the turn instruments. A nil *Metrics records nothing.
type Metrics struct {
	TurnDuration   metric.Float64Histogram
	TurnFailures   metric.Int64Counter
	StreamDeltas   metric.Int64Counter
	SpeechSegments metric.Int64Counter
}

// NewMetrics creates the instruments from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TurnDuration, err = meter.Float64Histogram("agentdesk.turn.duration",
		metric.WithDescription("Conversation turn duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TurnFailures, err = meter.Int64Counter("agentdesk.turn.failures",
		metric.WithDescription("Conversation turns that ended with an error"),
	)
	if err != nil {
		return nil, err
	}

	m.StreamDeltas, err = meter.Int64Counter("agentdesk.stream.deltas",
		metric.WithDescription("Text deltas delivered to streaming clients"),
	)
	if err != nil {
		return nil, err
	}

	m.SpeechSegments, err = meter.Int64Counter("agentdesk.speech.segments",
		metric.WithDescription("Sentence segments sent to speech synthesis"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTurn records the duration of a finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, turn string, start time.Time) {
	if m == nil {
		return
	}
	m.TurnDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("turn", turn)))
}

// RecordFailure counts a failed turn by error kind.
func (m *Metrics) RecordFailure(ctx context.Context, turn, kind string) {
	if m == nil {
		return
	}
	m.TurnFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("turn", turn),
		attribute.String("kind", kind),
	))
}

// AddDeltas counts streamed text deltas.
func (m *Metrics) AddDeltas(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.StreamDeltas.Add(ctx, int64(n))
}

// AddSegment counts one synthesized segment.
func (m *Metrics) AddSegment(ctx context.Context) {
	if m == nil {
		return
	}
	m.SpeechSegments.Add(ctx, 1)
}
