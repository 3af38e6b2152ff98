package core

import (
	"context"
	"time"

	"ticketdesk/internal/types"
)

// DeliveryLogAppender is the insert-only slice of the delivery-log repository.
type DeliveryLogAppender interface {
	Append(ctx context.Context, entry *types.DeliveryLogEntry) error
}

// DeliveryRecorder writes exactly one delivery-log entry per attempt outcome
// and mirrors the outcome into metrics. Recording is part of the worker's
// failure-handling path, so it never returns an error itself: an audit write
// failure is logged, never escalated into a delivery failure.
type DeliveryRecorder struct {
	log     DeliveryLogAppender
	metrics NotificationMetrics
	clock   types.Clock
	logger  types.Logger
}

// NewDeliveryRecorder creates a DeliveryRecorder.
func NewDeliveryRecorder(log DeliveryLogAppender, metrics NotificationMetrics, clock types.Clock, logger types.Logger) *DeliveryRecorder {
	return &DeliveryRecorder{log: log, metrics: metrics, clock: clock, logger: logger}
}

// RecordSuccess logs a successful send.
func (r *DeliveryRecorder) RecordSuccess(ctx context.Context, channel types.ChannelType, entry types.DeliveryLogEntry) {
	entry.Status = types.DeliveryStatusSuccess
	r.record(ctx, channel, entry)
}

// RecordFailure logs a failed send with the failure reason.
func (r *DeliveryRecorder) RecordFailure(ctx context.Context, channel types.ChannelType, entry types.DeliveryLogEntry, reason string) {
	entry.Status = types.DeliveryStatusFailed
	entry.Error = reason
	r.record(ctx, channel, entry)
}

// RecordSkipped logs an eligibility skip (no channel, emails disabled). Skips
// are counted in metrics but carry no error.
func (r *DeliveryRecorder) RecordSkipped(ctx context.Context, channel types.ChannelType, entry types.DeliveryLogEntry, reason string) {
	entry.Status = types.DeliveryStatusSkipped
	entry.Error = reason
	r.record(ctx, channel, entry)
}

// RecordLatency forwards a send duration to metrics.
func (r *DeliveryRecorder) RecordLatency(ctx context.Context, channel types.ChannelType, d time.Duration) {
	r.metrics.RecordLatency(ctx, channel, d)
}

func (r *DeliveryRecorder) record(ctx context.Context, channel types.ChannelType, entry types.DeliveryLogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}
	if err := r.log.Append(ctx, &entry); err != nil {
		r.logger.Error("delivery log append failed",
			"channel", string(channel),
			"status", string(entry.Status),
			"ticket_id", entry.TicketID,
			"error", err,
		)
	}
	r.metrics.RecordDelivery(ctx, channel, metricFor(entry.Status))
}

func metricFor(s types.DeliveryStatus) MetricResult {
	switch s {
	case types.DeliveryStatusSuccess:
		return MetricSuccess
	case types.DeliveryStatusSkipped:
		return MetricSkipped
	default:
		return MetricFailed
	}
}
