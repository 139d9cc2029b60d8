package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/relabs-tech/restgen/core"
	"github.com/relabs-tech/restgen/core/logger"
)

// SQSAPI is the part of the SQS client the notifier needs
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS publishes notifications to an SQS queue
type SQS struct {
	client   SQSAPI
	queueURL string
}

// NewSQS returns a notifier for queueURL using the default AWS credential chain
func NewSQS(ctx context.Context, region, queueURL string) (*SQS, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("queueURL must not be empty")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	logger.Default().Debugln("SQS notifications enabled on", queueURL)
	return NewSQSWithClient(sqs.NewFromConfig(cfg), queueURL), nil
}

// NewSQSWithClient returns a notifier using an existing client
func NewSQSWithClient(client SQSAPI, queueURL string) *SQS {
	return &SQS{client: client, queueURL: queueURL}
}

// Notify implements core.Notifier
func (s *SQS) Notify(ctx context.Context, domain string, operation core.Operation, payload []byte) error {
	data, err := encode(domain, operation, payload)
	if err != nil {
		return err
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(data)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"domain":    {DataType: aws.String("String"), StringValue: aws.String(domain)},
			"operation": {DataType: aws.String("String"), StringValue: aws.String(string(operation))},
		},
	})
	if err != nil {
		return fmt.Errorf("cannot send %s %s to sqs: %w", domain, operation, err)
	}
	return nil
}
