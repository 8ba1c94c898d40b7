package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// PushQueue hands notifications to the mobile push dispatcher through SQS.
type PushQueue struct {
	client   sqsAPI
	queueURL string
}

func NewPushQueue(client *sqs.Client, queueURL string) *PushQueue {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	return newPushQueue(client, queueURL)
}

func newPushQueue(client sqsAPI, queueURL string) *PushQueue {
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &PushQueue{client: client, queueURL: queueURL}
}

func (q *PushQueue) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal push: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"user_id": {DataType: aws.String("String"), StringValue: aws.String(n.UserID)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: failed to send SQS message: %w", err)
	}
	return nil
}
