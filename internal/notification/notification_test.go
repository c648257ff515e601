package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/aws"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/resilience"
)

func TestHub_FanOutAndHistory(t *testing.T) {
	hub := NewHub(HubConfig{HistorySize: 3})
	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelB()
	assert.Equal(t, 2, hub.SubscriberCount())

	for _, title := range []string{"one", "two", "three", "four"} {
		require.NoError(t, hub.Notify(context.Background(), New(LevelInfo, title, "")))
	}

	assert.Equal(t, "one", (<-a).Title)
	assert.Equal(t, "one", (<-b).Title)

	recent := hub.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "two", recent[0].Title)
	assert.Equal(t, "four", recent[2].Title)
	assert.Len(t, hub.Recent(2), 2)

	cancelA()
	cancelA()
	assert.Equal(t, 1, hub.SubscriberCount())
	_, open := <-drain(a)
	assert.False(t, open)
}

// drain empties ch and returns it for a final closed check
func drain(ch <-chan Notification) <-chan Notification {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return ch
			}
		default:
			return ch
		}
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(HubConfig{SubscriberBuffer: 1})
	ch, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = hub.Notify(context.Background(), New(LevelInfo, "n", ""))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

type recordingNotifier struct {
	got []Notification
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMulti_DeliversPastFailures(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	ok := &recordingNotifier{}

	err := Multi{failing, nil, ok}.Notify(context.Background(), New(LevelError, "Swap failed", "reverted"))
	assert.Error(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}

type fakeSNS struct {
	inputs []*sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{MessageId: awssdk.String("m")}, nil
}

func TestPublisher_Notify(t *testing.T) {
	api := &fakeSNS{}
	client := aws.NewSNSClient(aws.SNSClientConfig{
		API:         api,
		RetryConfig: &resilience.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond},
	})

	_, err := NewPublisher(PublisherConfig{SNSClient: client})
	require.Error(t, err)

	pub, err := NewPublisher(PublisherConfig{SNSClient: client, TopicARN: "arn:aws:sns:us-east-1:000000000000:farmrswap-notifications"})
	require.NoError(t, err)

	n := New(LevelSuccess, "Swap confirmed", "Swapped 1 WETH for 2000 USDC")
	n.Operation = "swap"
	require.NoError(t, pub.Notify(context.Background(), n))

	require.Len(t, api.inputs, 1)
	var decoded Notification
	require.NoError(t, json.Unmarshal([]byte(awssdk.ToString(api.inputs[0].Message)), &decoded))
	assert.Equal(t, n.ID, decoded.ID)
	assert.Equal(t, "swap", awssdk.ToString(api.inputs[0].MessageAttributes["operation"].StringValue))
	assert.Equal(t, "closed", pub.CircuitBreakerState())
}

func TestToActivity(t *testing.T) {
	n := New(LevelError, "Approval failed", "Transaction reverted")
	n.Wallet = "0xabc"
	n.TxHash = "0x01"
	n.Time = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rec := ToActivity(n)
	assert.Equal(t, "0xabc", rec.Wallet)
	assert.Equal(t, "error", rec.Level)
	assert.Equal(t, "2024-05-01T12:00:00Z", rec.CreatedAt)
	assert.Equal(t, n.ID, rec.ID)
}
