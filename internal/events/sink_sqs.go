package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client the sink uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink sends each event as one SQS message. The body is the payload and
// the context attributes are ce-* message attributes.
type SQSSink struct {
	name     string
	queueURL string
	client   SQSAPI
}

// NewSQSSink wraps an existing client.
func NewSQSSink(name, queueURL string, client SQSAPI) *SQSSink {
	return &SQSSink{name: name, queueURL: queueURL, client: client}
}

// NewSQSClient builds a client from the default AWS credential chain. A
// non-empty endpoint overrides the service URL (e.g. LocalStack).
func NewSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *SQSSink) Name() string { return s.name }

func (s *SQSSink) Publish(ctx context.Context, ev CloudEvent) error {
	body, err := ev.DataJSON()
	if err != nil {
		return err
	}
	attrs := make(map[string]types.MessageAttributeValue, 7)
	for k, v := range ev.Attributes() {
		if v == "" {
			continue
		}
		attrs["ce-"+k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	attrs["content-type"] = types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(ev.DataContentType),
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sqs sink: send: %w", err)
	}
	return nil
}

func (s *SQSSink) Close() error { return nil }
