package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanning6/etl-off-sqs/internal/domain"
	"github.com/yuanning6/etl-off-sqs/internal/errs"
)

type fakeAPI struct {
	recvIn    []*sqs.ReceiveMessageInput
	recvOut   *sqs.ReceiveMessageOutput
	recvErr   error
	retries   []int
	deleted   []string
	deleteErr error
}

func (f *fakeAPI) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.recvIn = append(f.recvIn, in)
	var o sqs.Options
	for _, fn := range optFns {
		fn(&o)
	}
	f.retries = append(f.retries, o.RetryMaxAttempts)
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	if f.recvOut == nil {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	return f.recvOut, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

const url = "http://localhost:4566/000000000000/login-queue"

func TestReceiveBatch(t *testing.T) {
	api := &fakeAPI{recvOut: &sqs.ReceiveMessageOutput{Messages: []types.Message{
		{
			MessageId:     aws.String("m-1"),
			ReceiptHandle: aws.String("h-1"),
			Body:          aws.String(`{"user_id":"u1"}`),
			Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
		},
		{MessageId: aws.String("m-2"), Body: aws.String("{}")},
	}}}
	q := New(api, url)

	msgs, err := q.ReceiveBatch(context.Background(), 10, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []domain.QueueMessage{{ID: "m-1", Handle: "h-1", Body: `{"user_id":"u1"}`, ReceiveCount: 3}}, msgs)

	require.Len(t, api.recvIn, 1)
	assert.Equal(t, url, aws.ToString(api.recvIn[0].QueueUrl))
	assert.Equal(t, int32(10), api.recvIn[0].MaxNumberOfMessages)
	assert.Equal(t, int32(10), api.recvIn[0].WaitTimeSeconds)
	assert.Equal(t, []int{1}, api.retries)
}

func TestReceiveBatchEmpty(t *testing.T) {
	q := New(&fakeAPI{}, url)
	msgs, err := q.ReceiveBatch(context.Background(), 5, time.Second)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReceiveBatchClamps(t *testing.T) {
	api := &fakeAPI{}
	q := New(api, url)

	_, _ = q.ReceiveBatch(context.Background(), 50, time.Minute)
	_, _ = q.ReceiveBatch(context.Background(), 0, -time.Second)
	assert.Equal(t, int32(MaxBatchSize), api.recvIn[0].MaxNumberOfMessages)
	assert.Equal(t, int32(20), api.recvIn[0].WaitTimeSeconds)
	assert.Equal(t, int32(1), api.recvIn[1].MaxNumberOfMessages)
	assert.Equal(t, int32(0), api.recvIn[1].WaitTimeSeconds)
}

func TestReceiveBatchTransportError(t *testing.T) {
	q := New(&fakeAPI{recvErr: fmt.Errorf("dial tcp: connection refused")}, url)
	_, err := q.ReceiveBatch(context.Background(), 10, time.Second)
	assert.True(t, errors.Is(err, errs.ErrTransport), "%v", err)
}

func TestAck(t *testing.T) {
	api := &fakeAPI{}
	q := New(api, url)
	require.NoError(t, q.Ack(context.Background(), domain.QueueMessage{ID: "m-1", Handle: "h-1"}))
	assert.Equal(t, []string{"h-1"}, api.deleted)

	api.deleteErr = fmt.Errorf("throttled")
	err := q.Ack(context.Background(), domain.QueueMessage{ID: "m-2", Handle: "h-2"})
	assert.True(t, errors.Is(err, errs.ErrTransport))
}
