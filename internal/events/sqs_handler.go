package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSHandler publishes outbox envelopes to an SQS queue.
type SQSHandler struct {
	client   sqsSender
	queueURL string
}

// NewSQSHandler creates a delivery handler around the provided SQS client.
func NewSQSHandler(client *sqs.Client, queueURL string) *SQSHandler {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSHandler{client: client, queueURL: queueURL}
}

func (h *SQSHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(h.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"event_id":   {DataType: aws.String("String"), StringValue: aws.String(entry.ID.String())},
		},
	}
	// FIFO queues keep one proposal's events in order and drop redelivered outbox rows.
	if strings.HasSuffix(h.queueURL, ".fifo") {
		input.MessageGroupId = aws.String(entry.Aggregate)
		input.MessageDeduplicationId = aws.String(entry.ID.String())
	}
	_, err := h.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// LogHandler acknowledges events by logging them. Used when no queue is configured.
type LogHandler struct {
	logger *logging.Logger
}

func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	h.logger.Info("proposal event", "event_id", entry.ID, "type", entry.Type, "aggregate", entry.Aggregate)
	return nil
}
