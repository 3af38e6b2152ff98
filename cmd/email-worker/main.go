// Package main is the entrypoint for the email worker Lambda.
//
// The worker consumes EmailJob messages from the email SQS queue. A job
// carries identities only (ticket, message, optionally a recipient); the
// worker reloads those rows, resolves the recipient when the job leaves it
// open, composes the notification for the job kind, and hands it to the
// email channel service, which resolves the organization's mailbox, renders
// the template, and sends through the provider. Retryable failures are
// re-published with backoff; everything else is ACKed, with the outcome
// already recorded in the delivery log by the channel.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
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
	"ticketdesk/internal/external"
	"ticketdesk/internal/notifications/core"
	"ticketdesk/internal/notifications/email"
	"ticketdesk/internal/types"
)

// excerptLimit bounds how much message body is quoted in a notification.
const excerptLimit = 300

// TicketStore loads tickets referenced by jobs.
type TicketStore interface {
	GetByID(ctx context.Context, id string) (*types.Ticket, error)
}

// MessageStore loads messages referenced by reply and mention jobs.
type MessageStore interface {
	GetByID(ctx context.Context, id string) (*types.Message, error)
}

// Directory resolves recipients and message authors.
type Directory interface {
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetContact(ctx context.Context, id string) (*types.Contact, error)
}

// EmailSender is the email channel service entry point.
type EmailSender interface {
	Send(ctx context.Context, n *email.Notification) *types.DeliveryResult
}

// Republisher re-enqueues a job for a later attempt.
type Republisher interface {
	PublishEmail(ctx context.Context, job *types.EmailJob, delay time.Duration) error
}

// Handler holds the dependencies for the email worker.
type Handler struct {
	tickets     TicketStore
	messages    MessageStore
	directory   Directory
	service     EmailSender
	publisher   Republisher
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
		h.logger.Warn("email delivery disabled by feature flag, acknowledging batch",
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

// processRecord runs one job end to end. A nil return ACKs the message; an
// error reports it for SQS retry.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	start := h.clock.Now()

	var job types.EmailJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		// Poison message. Retrying a parse failure changes nothing.
		h.logger.Error("failed to unmarshal email job",
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
		"kind", string(job.Kind),
		"organization_id", job.OrganizationID,
		"ticket_id", job.TicketID,
		"retry_count", job.RetryCount,
		"trace_id", job.TraceID,
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, h.clock.Now().Sub(sentAt))
		}
	}

	notification, err := h.buildNotification(ctx, &job, logger)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && strings.HasPrefix(string(appErr.Code), "not_found_") {
			// Entity deleted between enqueue and execution. Nothing to send.
			logger.Warn("email job references missing entity, dropping", "error", err.Error())
			return nil
		}
		return err
	}
	if notification == nil {
		return nil
	}

	result := h.service.Send(ctx, notification)
	h.metrics.RecordLatency(ctx, types.ChannelEmail, h.clock.Now().Sub(start))

	if result.Status != types.DeliveryStatusFailed || !result.Retryable {
		return nil
	}

	if job.RetryCount >= h.retryPolicy.MaxAttempts {
		logger.Error("email delivery retries exhausted", "reason", result.FailureReason)
		return nil
	}

	delay := core.CalculateNextRetry(h.retryPolicy, job.RetryCount)
	if err := h.publisher.PublishEmail(ctx, &job, delay); err != nil {
		return err
	}

	logger.Info("email delivery retry scheduled",
		"retry_count", job.RetryCount,
		"delay_seconds", int(delay.Seconds()),
		"reason", result.FailureReason,
	)
	return nil
}

// buildNotification reloads the entities a job references and composes the
// notification for its kind. Returns (nil, nil) for jobs that cannot be
// composed from current state, which the caller treats as a drop.
//
// Mention and assignment jobs name their recipient; message and creation
// jobs may not, in which case the worker resolves the ticket assignee,
// skipping when the assignee authored the message or no one is assigned.
func (h *Handler) buildNotification(ctx context.Context, job *types.EmailJob, logger types.Logger) (*email.Notification, error) {
	ticket, err := h.tickets.GetByID(ctx, job.TicketID)
	if err != nil {
		return nil, err
	}

	var msg *types.Message
	if job.Kind == types.EmailJobMessagePosted || job.Kind == types.EmailJobMention {
		msg, err = h.loadMessage(ctx, job.MessageID, ticket)
		if err != nil {
			return nil, err
		}
	}

	recipientID := job.RecipientID
	if recipientID == "" {
		recipientID = resolveRecipientID(ticket, msg)
		if recipientID == "" {
			logger.Info("no recipient resolvable for email job, dropping")
			return nil, nil
		}
	}

	recipient, err := h.directory.GetUser(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if recipient.DeletedAt != nil {
		logger.Info("email recipient deleted, dropping job", "recipient_id", recipientID)
		return nil, nil
	}

	switch job.Kind {
	case types.EmailJobTicketCreated:
		return &email.Notification{
			Ticket:    ticket,
			Recipient: recipient,
			Subject:   "New ticket: " + ticket.Subject,
			Heading:   "A new ticket was opened",
			Paragraphs: []string{
				fmt.Sprintf("Ticket %s is waiting in your queue.", ticket.Number),
				ticket.Subject,
			},
			ActionLabel: "View ticket",
		}, nil

	case types.EmailJobTicketAssigned:
		return &email.Notification{
			Ticket:    ticket,
			Recipient: recipient,
			Subject:   "Assigned to you: " + ticket.Subject,
			Heading:   "A ticket was assigned to you",
			Paragraphs: []string{
				fmt.Sprintf("Ticket %s is now assigned to you.", ticket.Number),
				ticket.Subject,
			},
			ActionLabel: "Open ticket",
		}, nil

	case types.EmailJobMessagePosted:
		author := h.authorName(ctx, msg)
		return &email.Notification{
			Message:   msg,
			Recipient: recipient,
			Subject:   "New reply: " + ticket.Subject,
			Heading:   fmt.Sprintf("%s replied", author),
			Paragraphs: []string{
				fmt.Sprintf("%s posted a new reply on %s.", author, ticket.Number),
				messageExcerpt(msg.Body),
			},
			ActionLabel:  "View conversation",
			ShouldThread: true,
		}, nil

	case types.EmailJobMention:
		author := h.authorName(ctx, msg)
		return &email.Notification{
			Message:   msg,
			Recipient: recipient,
			Subject:   "You were mentioned: " + ticket.Subject,
			Heading:   fmt.Sprintf("%s mentioned you", author),
			Paragraphs: []string{
				fmt.Sprintf("%s mentioned you in a message on %s.", author, ticket.Number),
				messageExcerpt(msg.Body),
			},
			ActionLabel: "View message",
		}, nil

	default:
		logger.Error("unknown email job kind, dropping", "kind", string(job.Kind))
		return nil, nil
	}
}

// resolveRecipientID picks the notification target when the job does not
// name one: the ticket assignee, unless the assignee wrote the message
// being notified about. An empty return means nobody to notify.
func resolveRecipientID(ticket *types.Ticket, msg *types.Message) string {
	if ticket.AssignedTo == nil {
		return ""
	}
	if msg != nil && !msg.IsFromContact && msg.UserID != nil && *msg.UserID == *ticket.AssignedTo {
		return ""
	}
	return *ticket.AssignedTo
}

// loadMessage fetches a message and hydrates its ticket reference so the
// notification resolves ticket context through the message.
func (h *Handler) loadMessage(ctx context.Context, messageID string, ticket *types.Ticket) (*types.Message, error) {
	msg, err := h.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	msg.Ticket = ticket
	return msg, nil
}

// authorName resolves the display name of whoever wrote the message. Lookup
// failures degrade to a generic label rather than failing the notification.
func (h *Handler) authorName(ctx context.Context, msg *types.Message) string {
	if msg.IsFromContact && msg.ContactID != nil {
		if contact, err := h.directory.GetContact(ctx, *msg.ContactID); err == nil && contact.Name != "" {
			return contact.Name
		}
		return "The customer"
	}
	if msg.UserID != nil {
		if user, err := h.directory.GetUser(ctx, *msg.UserID); err == nil && user.Name != "" {
			return user.Name
		}
	}
	return "A teammate"
}

// messageExcerpt collapses whitespace and truncates the body for quoting.
func messageExcerpt(body string) string {
	excerpt := strings.Join(strings.Fields(body), " ")
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit] + "..."
	}
	return excerpt
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
		os.Stderr.WriteString("email-worker: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := types.NewJSONLogger(cfg.Service+"-email-worker", cfg.LogLevel)
	logger.Info("email worker initializing",
		"environment", cfg.Environment,
		"queue", cfg.AWS.EmailQueue,
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

	renderer, err := email.NewRenderer(cfg.Server.DashboardURL)
	if err != nil {
		logger.Error("failed to build email renderer", "error", err.Error())
		os.Exit(1)
	}

	clock := types.RealClock{}
	metrics := core.NewCloudWatchNotificationMetrics(cwClient, cfg.Observability.MetricNamespace, logger)
	recorder := core.NewDeliveryRecorder(db.NewDeliveryLogRepository(pool), metrics, clock, logger)
	publisher := core.NewJobPublisher(sqsClient, cfg.AWS.WebhookQueue, cfg.AWS.EmailQueue, logger)
	registry, err := external.NewProviderRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to build email provider registry", "error", err.Error())
		os.Exit(1)
	}

	directory := db.NewDirectoryRepository(pool)
	service := email.NewService(
		directory,
		db.NewChannelRepository(pool),
		registry,
		renderer,
		recorder,
		logger,
	)

	handler := &Handler{
		tickets:     db.NewTicketRepository(pool),
		messages:    db.NewMessageRepository(pool),
		directory:   directory,
		service:     service,
		publisher:   publisher,
		metrics:     metrics,
		retryPolicy: core.EmailRetryPolicy,
		enabled:     cfg.Feature.EnableEmail,
		logger:      logger,
		clock:       clock,
	}

	logger.Info("email worker initialized", "from_name", cfg.Email.FromName)

	lambda.Start(handler.Handle)
}
