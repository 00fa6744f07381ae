package eventbridge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"locallens/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func someEvents(n int) []events.DomainEvent {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewPostCreated(fmt.Sprintf("p%d", i), "author-1", "dr5regw", at)
	}
	return out
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("splits into batches of ten", func(t *testing.T) {
		// Arrange
		api := &mockAPI{}
		publisher := NewPublisher(api, "locallens-bus", "locallens.feed", zap.NewNop())
		var sizes []int
		api.On("PutEvents", ctx, mock.Anything).
			Run(func(args mock.Arguments) {
				in := args.Get(1).(*eventbridge.PutEventsInput)
				sizes = append(sizes, len(in.Entries))
			}).
			Return(&eventbridge.PutEventsOutput{}, nil)

		// Act
		err := publisher.Publish(ctx, someEvents(23)...)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []int{10, 10, 3}, sizes)
	})

	t.Run("entries carry bus, source and type", func(t *testing.T) {
		api := &mockAPI{}
		publisher := NewPublisher(api, "locallens-bus", "locallens.feed", zap.NewNop())
		api.On("PutEvents", ctx, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
			e := in.Entries[0]
			return aws.ToString(e.EventBusName) == "locallens-bus" &&
				aws.ToString(e.Source) == "locallens.feed" &&
				aws.ToString(e.DetailType) == events.TypePostCreated
		})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

		require.NoError(t, publisher.Publish(ctx, someEvents(1)...))
		api.AssertExpectations(t)
	})

	t.Run("partial failures are reported", func(t *testing.T) {
		api := &mockAPI{}
		publisher := NewPublisher(api, "bus", "src", zap.NewNop())
		api.On("PutEvents", ctx, mock.Anything).Return(&eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []types.PutEventsResultEntry{
				{EventId: aws.String("e1")},
				{ErrorCode: aws.String("ThrottlingException"), ErrorMessage: aws.String("slow down")},
			},
		}, nil).Once()

		err := publisher.Publish(ctx, someEvents(2)...)

		assert.EqualError(t, err, "1 events failed to publish")
	})

	t.Run("client errors stop publishing", func(t *testing.T) {
		api := &mockAPI{}
		publisher := NewPublisher(api, "bus", "src", zap.NewNop())
		boom := errors.New("network down")
		api.On("PutEvents", ctx, mock.Anything).Return(nil, boom).Once()

		err := publisher.Publish(ctx, someEvents(15)...)

		assert.ErrorIs(t, err, boom)
		api.AssertNumberOfCalls(t, "PutEvents", 1)
	})

	t.Run("no events, no call", func(t *testing.T) {
		api := &mockAPI{}
		publisher := NewPublisher(api, "bus", "src", zap.NewNop())

		require.NoError(t, publisher.Publish(ctx))
		api.AssertNotCalled(t, "PutEvents", mock.Anything, mock.Anything)
	})
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NewNoopPublisher(zap.NewNop()).Publish(context.Background(), someEvents(3)...))
}
