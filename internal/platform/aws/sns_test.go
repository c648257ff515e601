package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/resilience"
)

type fakeSNS struct {
	errs   []error
	inputs []*sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func fastClient(api SNSAPI) *SNSClient {
	return NewSNSClient(SNSClientConfig{
		API:         api,
		RetryConfig: &resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
}

func TestSNSClient_PublishSetsAttributes(t *testing.T) {
	api := &fakeSNS{}
	client := fastClient(api)

	err := client.Publish(context.Background(), "arn:topic", []byte(`{"title":"Swap confirmed"}`), map[string]string{"level": "success"})
	require.NoError(t, err)

	require.Len(t, api.inputs, 1)
	in := api.inputs[0]
	assert.Equal(t, "arn:topic", aws.ToString(in.TopicArn))
	assert.Equal(t, `{"title":"Swap confirmed"}`, aws.ToString(in.Message))
	assert.Equal(t, "success", aws.ToString(in.MessageAttributes["level"].StringValue))
	assert.Equal(t, "String", aws.ToString(in.MessageAttributes["level"].DataType))
}

func TestSNSClient_RetriesTransientErrors(t *testing.T) {
	api := &fakeSNS{errs: []error{errors.New("throttled"), nil}}
	client := fastClient(api)

	require.NoError(t, client.Publish(context.Background(), "arn:topic", []byte("{}"), nil))
	assert.Len(t, api.inputs, 2)
}

func TestSNSClient_DoesNotRetryInvalidParameter(t *testing.T) {
	api := &fakeSNS{errs: []error{&types.InvalidParameterException{Message: aws.String("bad")}}}
	client := fastClient(api)

	err := client.Publish(context.Background(), "arn:topic", []byte("{}"), nil)
	require.Error(t, err)
	assert.Len(t, api.inputs, 1)
	assert.Equal(t, resilience.StateClosed, client.CircuitBreakerState())
}
