package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// sessionMetrics counts the work a hearing produces. Counters aggregate
// across sessions; the hearing id rides as an attribute.
type sessionMetrics struct {
	segments   metric.Int64Counter
	edits      metric.Int64Counter
	audioBytes metric.Int64Counter
}

func newSessionMetrics() sessionMetrics {
	meter := otel.Meter("acta-core/session")
	var m sessionMetrics
	m.segments, _ = meter.Int64Counter("acta_segments_total",
		metric.WithDescription("Finalized recognition events by consolidation outcome"))
	m.edits, _ = meter.Int64Counter("acta_segment_edits_total",
		metric.WithDescription("User edits applied to segments"))
	m.audioBytes, _ = meter.Int64Counter("acta_audio_bytes_total",
		metric.WithDescription("PCM bytes forwarded to the recognizer"))
	return m
}

func (m sessionMetrics) recordSegment(ctx context.Context, hearingID, outcome string) {
	if m.segments == nil {
		return
	}
	m.segments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("hearing", hearingID),
		attribute.String("outcome", outcome),
	))
}

func (m sessionMetrics) recordEdit(ctx context.Context, hearingID string) {
	if m.edits == nil {
		return
	}
	m.edits.Add(ctx, 1, metric.WithAttributes(attribute.String("hearing", hearingID)))
}

func (m sessionMetrics) recordAudio(ctx context.Context, hearingID string, bytes int) {
	if m.audioBytes == nil {
		return
	}
	m.audioBytes.Add(ctx, int64(bytes), metric.WithAttributes(attribute.String("hearing", hearingID)))
}
