package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"ticketdesk/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// JobPublisher publishes webhook and email delivery jobs to their SQS queues,
// for initial dispatch and retries alike.
//
// The key contract: publishing increments the job's RetryCount BEFORE
// serializing to JSON, so the downstream consumer always sees the attempt
// number it is executing.
type JobPublisher struct {
	client          SQSSender
	webhookQueueURL string
	emailQueueURL   string
	logger          types.Logger
}

// NewJobPublisher creates a JobPublisher targeting the given queues.
func NewJobPublisher(client SQSSender, webhookQueueURL, emailQueueURL string, logger types.Logger) *JobPublisher {
	return &JobPublisher{
		client:          client,
		webhookQueueURL: webhookQueueURL,
		emailQueueURL:   emailQueueURL,
		logger:          logger,
	}
}

// PublishWebhook increments the job's RetryCount, serializes it and sends it
// to the webhook queue with the given delay.
//
// SQS enforces a DelaySeconds maximum of 900 seconds (15 minutes); longer
// delays are clamped. With the webhook retry policy capping out at 30s the
// clamp is a safety net, not a routine path.
func (p *JobPublisher) PublishWebhook(ctx context.Context, job *types.WebhookJob, delay time.Duration) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	job.RetryCount++

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("job publisher: failed to marshal webhook job: %w", err)
	}
	if err := p.send(ctx, p.webhookQueueURL, body, delay); err != nil {
		return err
	}

	p.logger.Info("webhook job published",
		"job_id", job.JobID,
		"webhook_id", job.WebhookID,
		"event_kind", string(job.EventKind),
		"retry_count", job.RetryCount,
		"trace_id", job.TraceID,
	)
	return nil
}

// PublishEmail increments the job's RetryCount, serializes it and sends it to
// the email queue with the given delay. Same clamping rules as PublishWebhook.
func (p *JobPublisher) PublishEmail(ctx context.Context, job *types.EmailJob, delay time.Duration) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	job.RetryCount++

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("job publisher: failed to marshal email job: %w", err)
	}
	if err := p.send(ctx, p.emailQueueURL, body, delay); err != nil {
		return err
	}

	p.logger.Info("email job published",
		"job_id", job.JobID,
		"kind", string(job.Kind),
		"ticket_id", job.TicketID,
		"retry_count", job.RetryCount,
		"trace_id", job.TraceID,
	)
	return nil
}

// EnqueueEmail publishes an email job for immediate dispatch. Satisfies the
// transition service's enqueuer interface.
func (p *JobPublisher) EnqueueEmail(ctx context.Context, job *types.EmailJob) error {
	return p.PublishEmail(ctx, job, 0)
}

func (p *JobPublisher) send(ctx context.Context, queueURL string, body []byte, delay time.Duration) error {
	delaySec := int32(delay.Seconds())
	if delaySec > 900 {
		delaySec = 900
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
	}
	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("job publisher: failed to send message to %s: %w", queueURL, err)
	}
	return nil
}
