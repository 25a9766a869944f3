// Package queue receives login events from SQS and deletes them once they
// are stored.
package queue

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"

	"github.com/yuanning6/etl-off-sqs/internal/domain"
	"github.com/yuanning6/etl-off-sqs/internal/errs"
)

// SQS receive limits.
const (
	MaxBatchSize = 10
	MaxWait      = 20 * time.Second
)

// API is the part of the SQS client the consumer calls.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Options struct {
	QueueURL string
	Region   string

	// Endpoint overrides the service endpoint, e.g. LocalStack.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type SQS struct {
	api      API
	queueURL string
}

func New(api API, queueURL string) *SQS { return &SQS{api: api, queueURL: queueURL} }

// Dial builds an SQS client from opts. Static credentials are used when
// both keys are set, otherwise the default AWS chain applies.
func Dial(ctx context.Context, opts Options) (*SQS, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrTransport, "load aws config: %v", err)
	}
	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return New(client, opts.QueueURL), nil
}

var receiveAttrs = []types.MessageSystemAttributeName{
	types.MessageSystemAttributeNameApproximateReceiveCount,
}

// noRetry leaves retrying to queue redelivery.
func noRetry(o *sqs.Options) { o.RetryMaxAttempts = 1 }

// ReceiveBatch issues a single long poll for up to n messages, waiting at
// most wait. An empty queue yields an empty slice and no error.
func (q *SQS) ReceiveBatch(ctx context.Context, n int, wait time.Duration) ([]domain.QueueMessage, error) {
	n = min(max(n, 1), MaxBatchSize)
	wait = min(max(wait, 0), MaxWait)

	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(q.queueURL),
		MaxNumberOfMessages:         int32(n),
		WaitTimeSeconds:             int32(wait / time.Second),
		MessageSystemAttributeNames: receiveAttrs,
	}, noRetry)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrTransport, "receive: %v", err)
	}

	msgs := make([]domain.QueueMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		qm := domain.QueueMessage{
			ID:     aws.ToString(m.MessageId),
			Handle: aws.ToString(m.ReceiptHandle),
			Body:   aws.ToString(m.Body),
		}
		if rc, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if cnt, err := strconv.Atoi(rc); err == nil {
				qm.ReceiveCount = cnt
			}
		}
		if qm.Handle == "" {
			log.Printf("[queue] skipping message without receipt handle: id=%s", qm.ID)
			continue
		}
		msgs = append(msgs, qm)
	}
	return msgs, nil
}

// Ack deletes msg from the queue.
func (q *SQS) Ack(ctx context.Context, msg domain.QueueMessage) error {
	_, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.Handle),
	})
	if err != nil {
		return errors.Wrapf(errs.ErrTransport, "delete %s: %v", msg.ID, err)
	}
	return nil
}
