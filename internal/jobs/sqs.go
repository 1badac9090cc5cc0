package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client used by the queue and consumer.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue submits jobs as JSON message bodies.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
}

var _ Queue = (*SQSQueue)(nil)

func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL}
}

func (q *SQSQueue) Enqueue(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send SQS message: %w", err)
	}
	slog.Info("job enqueued", "job_id", job.Id, "kind", job.Kind)
	return nil
}

// SQSConsumer long-polls a queue and hands each message to a Handler.
// Messages are deleted after success and for poison bodies; a failed message
// stays on the queue and is redelivered after its visibility timeout.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	handler  Handler

	WaitTimeSeconds int32
	ErrorBackoff    time.Duration
}

func NewSQSConsumer(client SQSAPI, queueURL string, handler Handler) *SQSConsumer {
	return &SQSConsumer{
		client:          client,
		queueURL:        queueURL,
		handler:         handler,
		WaitTimeSeconds: 20,
		ErrorBackoff:    5 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (c *SQSConsumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("receive message error", "error", err)
			select {
			case <-time.After(c.ErrorBackoff):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Poll receives one batch and processes it.
func (c *SQSConsumer) Poll(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     c.WaitTimeSeconds,
	})
	if err != nil {
		return err
	}
	for _, m := range out.Messages {
		c.handle(ctx, m)
	}
	return nil
}

func (c *SQSConsumer) handle(ctx context.Context, m types.Message) {
	var job Job
	if err := json.Unmarshal([]byte(aws.ToString(m.Body)), &job); err != nil || job.Id == "" {
		slog.Error("invalid message body", "message_id", aws.ToString(m.MessageId), "error", err)
		c.delete(ctx, m)
		return
	}

	jobLog := slog.With("job_id", job.Id, "kind", job.Kind)
	jobLog.Info("processing job")

	if err := c.handler(ctx, &job); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			jobLog.Error("dropping job with no stored record", "error", err)
			c.delete(ctx, m)
			return
		}
		// leave the message for redelivery
		jobLog.Error("job failed", "error", err)
		return
	}

	jobLog.Info("job completed")
	c.delete(ctx, m)
}

func (c *SQSConsumer) delete(ctx context.Context, m types.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		slog.Warn("failed to delete message", "message_id", aws.ToString(m.MessageId), "error", err)
	}
}
