package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"treasury/internal/types"
)

// SQSSender is the subset of the SQS client used to publish alerts.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueueSender publishes alerts to an SQS queue for downstream consumers.
type QueueSender struct {
	client   SQSSender
	queueURL string
}

// NewQueueSender creates a QueueSender.
func NewQueueSender(client SQSSender, queueURL string) *QueueSender {
	return &QueueSender{client: client, queueURL: queueURL}
}

// Send enqueues payload as a JSON message with kind and account attributes.
func (q *QueueSender) Send(ctx context.Context, payload types.AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: encoding payload: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"Kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(payload.Kind)),
			},
			"Account": {
				DataType:    aws.String("String"),
				StringValue: aws.String(payload.Account),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("queue: sending alert %s: %w", payload.ID, err)
	}
	return nil
}
