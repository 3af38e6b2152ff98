// Package main is the entrypoint for the webhook worker Lambda.
//
// The worker consumes WebhookJob messages from the webhook SQS queue. Each
// job references one subscription; the worker reloads the subscription,
// formats and signs the payload for its configured format, POSTs it through
// the SSRF-safe channel, records the outcome in the delivery log, and either
// ACKs, re-publishes with backoff, or disables the subscription on a terminal
// response.
//
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS retries only those.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketdesk/internal/config"
	"ticketdesk/internal/db"
	"ticketdesk/internal/notifications/core"
	"ticketdesk/internal/notifications/webhook"
	"ticketdesk/internal/types"
)

// SubscriptionStore is the slice of the webhook repository the worker needs.
type SubscriptionStore interface {
	GetByID(ctx context.Context, id string) (*types.Webhook, error)
	Disable(ctx context.Context, id string, reason string) error
}

// Deliverer executes one webhook HTTP delivery.
type Deliverer interface {
	Deliver(ctx context.Context, sub *types.Webhook, job *types.WebhookJob) (*types.DeliveryResult, error)
}

// Republisher re-enqueues a job for a later attempt.
type Republisher interface {
	PublishWebhook(ctx context.Context, job *types.WebhookJob, delay time.Duration) error
}

// Handler holds the dependencies for the webhook worker.
type Handler struct {
	webhooks    SubscriptionStore
	channel     Deliverer
	publisher   Republisher
	recorder    *core.DeliveryRecorder
	metrics     core.NotificationMetrics
	retryPolicy core.RetryPolicy
	enabled     bool
	logger      types.Logger
	clock       types.Clock
}

// Handle processes a batch of SQS messages, reporting per-message failures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	if !h.enabled {
		h.logger.Warn("webhook delivery disabled by feature flag, acknowledging batch",
			"batch_size", len(sqsEvent.Records),
		)
		return response, nil
	}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord runs one job through the full delivery pipeline. A nil return
// ACKs the message; an error reports it for SQS retry.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	start := h.clock.Now()

	var job types.WebhookJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		// Poison message. Retrying a parse failure changes nothing.
		h.logger.Error("failed to unmarshal webhook job",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}

	if job.TraceID != "" {
		ctx = types.WithRequestID(ctx, job.TraceID)
	}

	logger := h.logger.With(
		"job_id", job.JobID,
		"webhook_id", job.WebhookID,
		"organization_id", job.OrganizationID,
		"event_kind", string(job.EventKind),
		"retry_count", job.RetryCount,
		"trace_id", job.TraceID,
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, h.clock.Now().Sub(sentAt))
		}
	}

	sub, err := h.webhooks.GetByID(ctx, job.WebhookID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundWebhook {
			// Subscription deleted after enqueue. Nothing to deliver to.
			logger.Warn("webhook subscription no longer exists, dropping job")
			return nil
		}
		return err
	}

	if !sub.IsActive {
		logger.Info("webhook subscription disabled, dropping job",
			"disabled_reason", sub.DisabledReason,
		)
		h.recorder.RecordSkipped(ctx, types.ChannelWebhook, attemptEntry(sub, &job), "subscription_disabled")
		return nil
	}

	result, deliverErr := h.channel.Deliver(ctx, sub, &job)
	outcome := h.handleResult(ctx, sub, &job, result, deliverErr, logger)

	h.recorder.RecordLatency(ctx, types.ChannelWebhook, h.clock.Now().Sub(start))
	return outcome
}

// handleResult records the attempt outcome and decides the follow-up action.
func (h *Handler) handleResult(
	ctx context.Context,
	sub *types.Webhook,
	job *types.WebhookJob,
	result *types.DeliveryResult,
	deliverErr error,
	logger types.Logger,
) error {
	// A long 429 cannot be expressed as an SQS delay; re-queue at the
	// maximum the queue supports and let the next attempt re-check.
	if errors.Is(deliverErr, webhook.ErrWebhookLongDelay) {
		reason := "rate_limited_long_delay"
		if result != nil && result.FailureReason != "" {
			reason = result.FailureReason
		}
		maxDelay := webhook.SQSMaxDelaySeconds * time.Second
		return h.retryOrExhaust(ctx, sub, job, reason, &maxDelay, logger)
	}

	if deliverErr != nil {
		// Format or request construction failure. Deterministic, no retry.
		h.recorder.RecordFailure(ctx, types.ChannelWebhook, attemptEntry(sub, job), deliverErr.Error())
		logger.Error("webhook delivery failed permanently", "error", deliverErr.Error())
		return nil
	}

	switch {
	case result.Status == types.DeliveryStatusSuccess:
		h.recorder.RecordSuccess(ctx, types.ChannelWebhook, attemptEntry(sub, job))
		logger.Info("webhook delivered")
		return nil

	case result.Terminal:
		// 410 Gone: the endpoint told us to stop. Disable before recording
		// so a crash between the two cannot resurrect deliveries.
		if err := h.webhooks.Disable(ctx, sub.ID, result.FailureReason); err != nil {
			return err
		}
		h.recorder.RecordFailure(ctx, types.ChannelWebhook, attemptEntry(sub, job), result.FailureReason)
		logger.Warn("webhook subscription disabled after terminal response",
			"reason", result.FailureReason,
		)
		return nil

	case result.Retryable:
		return h.retryOrExhaust(ctx, sub, job, result.FailureReason, result.RetryAfter, logger)

	default:
		h.recorder.RecordFailure(ctx, types.ChannelWebhook, attemptEntry(sub, job), result.FailureReason)
		logger.Warn("webhook delivery failed permanently", "reason", result.FailureReason)
		return nil
	}
}

// retryOrExhaust records the failed attempt and re-publishes the job with
// backoff, unless the retry budget is spent.
func (h *Handler) retryOrExhaust(
	ctx context.Context,
	sub *types.Webhook,
	job *types.WebhookJob,
	reason string,
	retryAfter *time.Duration,
	logger types.Logger,
) error {
	h.recorder.RecordFailure(ctx, types.ChannelWebhook, attemptEntry(sub, job), reason)

	if job.RetryCount >= h.retryPolicy.MaxAttempts {
		logger.Error("webhook delivery retries exhausted", "reason", reason)
		return nil
	}

	delay := core.CalculateNextRetry(h.retryPolicy, job.RetryCount)
	if retryAfter != nil {
		delay = *retryAfter
	}
	if delay > webhook.SQSMaxDelaySeconds*time.Second {
		delay = webhook.SQSMaxDelaySeconds * time.Second
	}

	if err := h.publisher.PublishWebhook(ctx, job, delay); err != nil {
		return err
	}

	logger.Info("webhook delivery retry scheduled",
		"retry_count", job.RetryCount,
		"delay_seconds", int(delay.Seconds()),
		"reason", reason,
	)
	return nil
}

// attemptEntry builds the delivery-log record for one attempt against a
// subscription. Status and error text are filled in by the recorder.
func attemptEntry(sub *types.Webhook, job *types.WebhookJob) types.DeliveryLogEntry {
	return types.DeliveryLogEntry{
		ChannelID: sub.ID,
		Subject:   string(job.EventKind),
		Recipient: sub.URL,
	}
}

// parseMillisTimestamp parses the SQS SentTimestamp attribute (epoch millis).
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("webhook-worker: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := types.NewJSONLogger(cfg.Service+"-webhook-worker", cfg.LogLevel)
	logger.Info("webhook worker initializing",
		"environment", cfg.Environment,
		"queue", cfg.AWS.WebhookQueue,
	)

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err.Error())
		os.Exit(1)
	}

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("invalid database URL", "error", err.Error())
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("failed to create database pool", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	channel, err := webhook.NewChannel(&cfg.Webhook, logger)
	if err != nil {
		logger.Error("failed to create webhook channel", "error", err.Error())
		os.Exit(1)
	}

	clock := types.RealClock{}
	metrics := core.NewCloudWatchNotificationMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
	recorder := core.NewDeliveryRecorder(db.NewDeliveryLogRepository(pool), metrics, clock, logger)
	publisher := core.NewJobPublisher(sqsClient, cfg.AWS.WebhookQueue, cfg.AWS.EmailQueue, logger)

	handler := &Handler{
		webhooks:    db.NewWebhookRepository(pool),
		channel:     channel,
		publisher:   publisher,
		recorder:    recorder,
		metrics:     metrics,
		retryPolicy: core.WebhookRetryPolicy,
		enabled:     cfg.Feature.EnableWebhooks,
		logger:      logger,
		clock:       clock,
	}

	logger.Info("webhook worker initialized",
		"user_agent", cfg.Webhook.UserAgent,
		"timeout", cfg.Webhook.DefaultTimeout.String(),
	)

	lambda.Start(handler.Handle)
}
