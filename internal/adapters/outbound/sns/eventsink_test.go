package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// mockSNSClient implements SNSPublisher for testing.
type mockSNSClient struct {
	publishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       []*sns.PublishInput
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls = append(m.calls, params)
	if m.publishFunc != nil {
		return m.publishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{
		MessageId: aws.String("test-message-id"),
	}, nil
}

const (
	testTopicARN     = "arn:aws:sns:eu-west-1:123456789:proposal-finalized"
	testFIFOTopicARN = "arn:aws:sns:eu-west-1:123456789:proposal-finalized.fifo"
)

func testEvent() outbound.ProposalFinalizedEvent {
	return outbound.ProposalFinalizedEvent{
		ProposalID:  "42",
		HubChain:    "hub",
		For:         "123456789012345678901234567890",
		Against:     "2",
		Abstain:     "0",
		CacheKey:    "votes:proposal:42",
		FinalizedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func fastConfig(topic string) Config {
	return Config{
		TopicARN:       topic,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestNewEventSink_RequiresClient(t *testing.T) {
	_, err := NewEventSink(nil, Config{TopicARN: testTopicARN})
	if err == nil {
		t.Fatal("expected error for nil client")
	}
	if err.Error() != "sns client is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewEventSink_RequiresTopicARN(t *testing.T) {
	_, err := NewEventSink(&mockSNSClient{}, Config{TopicARN: ""})
	if err == nil {
		t.Fatal("expected error for missing topic ARN")
	}
	if err.Error() != "topic ARN is required" {
		t.Errorf("expected error %q, got %q", "topic ARN is required", err.Error())
	}
}

func TestNewEventSink_AppliesDefaults(t *testing.T) {
	sink, err := NewEventSink(&mockSNSClient{}, Config{TopicARN: testTopicARN})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", sink.config.MaxRetries)
	}
	if sink.config.InitialBackoff != 100*time.Millisecond {
		t.Errorf("expected InitialBackoff=100ms, got %v", sink.config.InitialBackoff)
	}
	if sink.config.MaxBackoff != 5*time.Second {
		t.Errorf("expected MaxBackoff=5s, got %v", sink.config.MaxBackoff)
	}
	if sink.config.BackoffFactor != 2.0 {
		t.Errorf("expected BackoffFactor=2.0, got %v", sink.config.BackoffFactor)
	}
	if sink.fifo {
		t.Error("standard topic detected as FIFO")
	}
}

func TestPublish_Success(t *testing.T) {
	client := &mockSNSClient{}
	sink, err := NewEventSink(client, fastConfig(testTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(client.calls))
	}
	call := client.calls[0]
	if *call.TopicArn != testTopicARN {
		t.Errorf("unexpected topic ARN: %s", *call.TopicArn)
	}
	if call.MessageGroupId != nil {
		t.Errorf("expected no MessageGroupId on a standard topic, got %v", *call.MessageGroupId)
	}

	var decoded outbound.ProposalFinalizedEvent
	if err := json.Unmarshal([]byte(*call.Message), &decoded); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	if decoded.ProposalID != "42" || decoded.For != "123456789012345678901234567890" {
		t.Errorf("unexpected message: %+v", decoded)
	}

	if v := call.MessageAttributes["eventType"].StringValue; v == nil || *v != "proposal_finalized" {
		t.Errorf("unexpected eventType attribute: %v", v)
	}
	if v := call.MessageAttributes["proposalId"].StringValue; v == nil || *v != "42" {
		t.Errorf("unexpected proposalId attribute: %v", v)
	}
}

func TestPublish_FIFOTopicSetsGroupAndDeduplication(t *testing.T) {
	client := &mockSNSClient{}
	sink, err := NewEventSink(client, fastConfig(testFIFOTopicARN))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sink.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := client.calls[0]
	if call.MessageGroupId == nil || *call.MessageGroupId != "42" {
		t.Errorf("expected MessageGroupId=42, got %v", call.MessageGroupId)
	}
	if call.MessageDeduplicationId == nil || *call.MessageDeduplicationId != "proposal_finalized-42" {
		t.Errorf("unexpected MessageDeduplicationId: %v", call.MessageDeduplicationId)
	}
}

func TestPublish_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	client := &mockSNSClient{
		publishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			attempts++
			if attempts < 3 {
				return nil, &types.ThrottledException{Message: aws.String("slow down")}
			}
			return &sns.PublishOutput{MessageId: aws.String("ok")}, nil
		},
	}
	sink, _ := NewEventSink(client, fastConfig(testTopicARN))

	if err := sink.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestPublish_DoesNotRetryRejectedRequests(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, &types.NotFoundException{Message: aws.String("no such topic")}
		},
	}
	sink, _ := NewEventSink(client, fastConfig(testTopicARN))

	err := sink.Publish(context.Background(), testEvent())
	var notFound *types.NotFoundException
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundException, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 call, got %d", len(client.calls))
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("connection reset")
		},
	}
	sink, _ := NewEventSink(client, fastConfig(testTopicARN))

	if err := sink.Publish(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error")
	}
	if len(client.calls) != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", len(client.calls))
	}
}

func TestPublish_AfterCloseFails(t *testing.T) {
	client := &mockSNSClient{}
	sink, _ := NewEventSink(client, fastConfig(testTopicARN))
	_ = sink.Close()
	_ = sink.Close()

	if err := sink.Publish(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error after close")
	}
	if len(client.calls) != 0 {
		t.Errorf("expected no calls, got %d", len(client.calls))
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: false},
		{name: "throttled", err: &types.ThrottledException{}, want: true},
		{name: "internal", err: &types.InternalErrorException{}, want: true},
		{name: "invalid parameter", err: &types.InvalidParameterException{}, want: false},
		{name: "authorization", err: &types.AuthorizationErrorException{}, want: false},
		{name: "network", err: errors.New("dial tcp: i/o timeout"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
