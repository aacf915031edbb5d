package gateway

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const mutationSpanName = "board.mutation"

// mutationMetrics records one span and one log line per gateway operation.
type mutationMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	op              string
	boardID         string
	persistDuration time.Duration
	errorStage      string
	renumbered      bool
	discarded       bool
}

func newMutationMetrics(ctx context.Context, tracer trace.Tracer, logger *log.Logger, op, boardID string) (*mutationMetrics, context.Context) {
	ctx, span := tracer.Start(ctx, mutationSpanName, trace.WithAttributes(
		attribute.String("board.op", op),
		attribute.String("board.id", boardID),
	))
	return &mutationMetrics{
		logger:  logger,
		span:    span,
		start:   time.Now(),
		op:      op,
		boardID: boardID,
	}, ctx
}

func (m *mutationMetrics) ObservePersist(d time.Duration) {
	if d <= 0 {
		return
	}
	m.persistDuration = d
}

func (m *mutationMetrics) SetTarget(groupID, taskID string) {
	if groupID != "" {
		m.span.SetAttributes(attribute.String("board.group_id", groupID))
	}
	if taskID != "" {
		m.span.SetAttributes(attribute.String("board.task_id", taskID))
	}
}

func (m *mutationMetrics) SetRenumbered(v bool) { m.renumbered = v }

func (m *mutationMetrics) SetDiscarded(v bool) { m.discarded = v }

func (m *mutationMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and writes the log line. Call it exactly once.
func (m *mutationMetrics) Log(err error) {
	total := durationToMillis(time.Since(m.start))
	status := "ok"
	if err != nil {
		status = "error"
	}
	fields := log.Fields{
		"op":       m.op,
		"board":    m.boardID,
		"status":   status,
		"total_ms": total,
	}
	attrs := []attribute.KeyValue{
		attribute.String("board.status", status),
		attribute.Float64("board.total_ms", total),
	}
	if m.persistDuration > 0 {
		fields["persist_ms"] = durationToMillis(m.persistDuration)
		attrs = append(attrs, attribute.Float64("board.persist_ms", durationToMillis(m.persistDuration)))
	}
	if m.renumbered {
		fields["renumbered"] = true
		attrs = append(attrs, attribute.Bool("board.renumbered", true))
	}
	if m.discarded {
		fields["discarded"] = true
		attrs = append(attrs, attribute.Bool("board.discarded", true))
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
		attrs = append(attrs, attribute.String("board.error_stage", m.errorStage))
	}
	m.span.SetAttributes(attrs...)
	if err != nil {
		fields["error"] = err.Error()
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	if m.logger == nil {
		return
	}
	entry := m.logger.WithFields(fields)
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		entry = entry.WithField("trace_id", sc.TraceID().String())
	}
	if err != nil {
		entry.Warn(mutationSpanName)
		return
	}
	entry.Info(mutationSpanName)
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
