package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/restgen/core"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("1")}, nil
}

func TestSQS(t *testing.T) {
	now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	defer func() { now = time.Now }()

	client := &fakeSQS{}
	n := NewSQSWithClient(client, "https://sqs.eu-central-1.amazonaws.com/1/users")
	require.NoError(t, n.Notify(context.Background(), "users", core.OperationCreate, []byte(`{"id":1}`)))

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, "https://sqs.eu-central-1.amazonaws.com/1/users", *input.QueueUrl)
	assert.JSONEq(t, `{"domain":"users","operation":"create","data":{"id":1},"timestamp":"2024-01-02T03:04:05Z"}`, *input.MessageBody)
	assert.Equal(t, "create", *input.MessageAttributes["operation"].StringValue)

	client.err = errors.New("throttled")
	assert.Error(t, n.Notify(context.Background(), "users", core.OperationDestroy, []byte(`{}`)))
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, string, core.Operation, []byte) error {
	c.calls++
	return c.err
}

func TestFanout(t *testing.T) {
	failing := &countingNotifier{err: errors.New("broker down")}
	ok := &countingNotifier{}
	err := Fanout{failing, ok}.Notify(context.Background(), "users", core.OperationUpdate, []byte(`{}`))
	assert.EqualError(t, err, "broker down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
	assert.NoError(t, Fanout{}.Notify(context.Background(), "users", core.OperationUpdate, nil))
}

func TestKafkaWriterConfiguration(t *testing.T) {
	k := NewKafka([]string{"localhost:9092"}, "restgen")
	assert.Equal(t, "restgen", k.writer.Topic)
	assert.Equal(t, "localhost:9092", k.writer.Addr.String())
	require.NoError(t, k.Close())
}
