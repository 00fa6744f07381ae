package dynamodb

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"locallens/application/ports"
	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
	pkgerrors "locallens/pkg/errors"
	"locallens/tests/fixtures"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockClient struct {
	mock.Mock
	queries atomic.Int32
}

func (m *mockClient) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	defer m.queries.Add(1)
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockClient) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.TransactWriteItemsOutput)
	return out, args.Error(1)
}

func newTestStore(client *mockClient) *Store {
	return NewStore(client, Options{TableName: "locallens", WatchInterval: time.Hour}, zap.NewNop())
}

func postItems(t *testing.T, posts ...entities.Post) []map[string]types.AttributeValue {
	t.Helper()
	items := make([]map[string]types.AttributeValue, 0, len(posts))
	for _, p := range posts {
		av, err := attributevalue.MarshalMap(newPostItem(p))
		require.NoError(t, err)
		items = append(items, av)
	}
	return items
}

func stringAttr(t *testing.T, av types.AttributeValue) string {
	t.Helper()
	s, ok := av.(*types.AttributeValueMemberS)
	require.True(t, ok, "expected a string attribute")
	return s.Value
}

func TestActiveSortKey_MatchesFeedOrder(t *testing.T) {
	now := fixtures.BaseTime
	posts := []entities.Post{
		fixtures.NewPostBuilder().WithID("late").ExpiringIn(3 * time.Hour).Build(),
		fixtures.NewPostBuilder().WithID("old").ExpiringIn(time.Hour).CreatedAgo(2 * time.Hour).Build(),
		fixtures.NewPostBuilder().WithID("new").ExpiringIn(time.Hour).CreatedAgo(time.Minute).Build(),
	}

	keys := make([]string, len(posts))
	for i, p := range posts {
		keys[i] = activeSortKey(p)
	}
	sort.Strings(keys)

	assert.Contains(t, keys[0], "#new")
	assert.Contains(t, keys[1], "#old")
	assert.Contains(t, keys[2], "#late")
	for _, k := range keys {
		assert.Greater(t, k, expiredBefore(now))
	}

	expiringNow := fixtures.NewPostBuilder().WithID("edge").Build()
	expiringNow.ExpiresAt = now
	assert.Less(t, activeSortKey(expiringNow), expiredBefore(now))
}

func TestStore_QueryActivePosts(t *testing.T) {
	ctx := context.Background()

	t.Run("queries the active index in feed order", func(t *testing.T) {
		// Arrange
		client := &mockClient{}
		store := newTestStore(client)
		posts := []entities.Post{
			fixtures.NewPostBuilder().WithID("p1").ExpiringIn(time.Hour).Build(),
			fixtures.NewPostBuilder().WithID("p2").ExpiringIn(2 * time.Hour).Build(),
		}
		client.On("Query", ctx, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return aws.ToString(in.IndexName) == "GSI1" &&
				aws.ToBool(in.ScanIndexForward) &&
				aws.ToInt32(in.Limit) == 20 &&
				in.ExclusiveStartKey == nil
		})).Return(&dynamodb.QueryOutput{Items: postItems(t, posts...)}, nil).Once()

		// Act
		page, err := store.QueryActivePosts(ctx, ports.PostQuery{Now: fixtures.BaseTime, Limit: 20})

		// Assert
		require.NoError(t, err)
		require.Len(t, page.Posts, 2)
		assert.Equal(t, "p1", page.Posts[0].ID)
		assert.Equal(t, posts[0].Location, page.Posts[0].Location)
		assert.True(t, page.Posts[0].ExpiresAt.Equal(posts[0].ExpiresAt))
		assert.NotEmpty(t, page.NextCursor)
		client.AssertExpectations(t)
	})

	t.Run("cursor resumes after the last item", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)
		last := fixtures.NewPostBuilder().WithID("p9").ExpiringIn(time.Hour).Build()

		client.On("Query", ctx, mock.Anything).
			Return(&dynamodb.QueryOutput{Items: postItems(t, last)}, nil).Once()
		first, err := store.QueryActivePosts(ctx, ports.PostQuery{Now: fixtures.BaseTime, Limit: 1})
		require.NoError(t, err)

		client.On("Query", ctx, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			key := in.ExclusiveStartKey
			return key != nil &&
				key["PK"].(*types.AttributeValueMemberS).Value == "POST#p9" &&
				key["GSI1SK"].(*types.AttributeValueMemberS).Value == activeSortKey(last)
		})).Return(&dynamodb.QueryOutput{}, nil).Once()

		second, err := store.QueryActivePosts(ctx, ports.PostQuery{Now: fixtures.BaseTime, Limit: 1, Cursor: first.NextCursor})

		require.NoError(t, err)
		assert.Empty(t, second.Posts)
		assert.Empty(t, second.NextCursor)
		client.AssertExpectations(t)
	})

	t.Run("rejects a malformed cursor before querying", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)

		_, err := store.QueryActivePosts(ctx, ports.PostQuery{Now: fixtures.BaseTime, Limit: 20, Cursor: "%%%"})

		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidCursor))
		client.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("store errors are returned unchanged", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)
		boom := &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
		client.On("Query", ctx, mock.Anything).Return(nil, boom).Once()

		_, err := store.QueryActivePosts(ctx, ports.PostQuery{Now: fixtures.BaseTime, Limit: 20})

		assert.Same(t, boom, err)
	})
}

func TestStore_GetPost(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	store := newTestStore(client)
	post := fixtures.NewPostBuilder().WithID("p1").WithCounters(3, 1, 2).Build()

	client.On("GetItem", ctx, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return in.Key["PK"].(*types.AttributeValueMemberS).Value == "POST#p1"
	})).Return(&dynamodb.GetItemOutput{Item: postItems(t, post)[0]}, nil)
	client.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	got, err := store.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Upvotes)
	assert.Equal(t, 2, got.CommentsCount)
	assert.Equal(t, post.CellPrefixes, got.CellPrefixes)

	_, err = store.GetPost(ctx, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_CreatePost(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	store := newTestStore(client)
	post := fixtures.NewPostBuilder().WithID("p1").WithAuthor("author-1").Build()

	var captured *dynamodb.TransactWriteItemsInput
	client.On("TransactWriteItems", ctx, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*dynamodb.TransactWriteItemsInput) }).
		Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

	err := store.CreatePost(ctx, post)

	require.NoError(t, err)
	require.NotNil(t, captured)
	require.Len(t, captured.TransactItems, 2)

	put := captured.TransactItems[0].Put
	require.NotNil(t, put)
	assert.Equal(t, "POST#p1", stringAttr(t, put.Item["PK"]))
	assert.Equal(t, gsiActive, stringAttr(t, put.Item["GSI1PK"]))
	assert.Equal(t, "AUTHOR#author-1", stringAttr(t, put.Item["GSI2PK"]))
	assert.NotNil(t, put.ConditionExpression)

	update := captured.TransactItems[1].Update
	require.NotNil(t, update)
	assert.Equal(t, "USER#author-1", stringAttr(t, update.Key["PK"]))
	assert.Contains(t, aws.ToString(update.UpdateExpression), "ADD")
}

func TestStore_DeactivatePost(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the post from the active index", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)
		client.On("UpdateItem", ctx, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
			return stringAttr(t, in.Key["PK"]) == "POST#p1" &&
				aws.ToString(in.ConditionExpression) != ""
		})).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

		require.NoError(t, store.DeactivatePost(ctx, "p1"))
		client.AssertExpectations(t)
	})

	t.Run("missing post is not found", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)
		client.On("UpdateItem", ctx, mock.Anything).
			Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("condition")}).Once()

		err := store.DeactivatePost(ctx, "gone")

		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestStore_CommitVote(t *testing.T) {
	ctx := context.Background()
	existing := &entities.Vote{ID: "v1", VoterID: "voter-1", PostID: "p1", Direction: valueobjects.VoteUp}

	tests := []struct {
		name      string
		batch     ports.VoteBatch
		wantItems int
		check     func(t *testing.T, items []types.TransactWriteItem)
	}{
		{
			name: "new vote writes counters, vote and tally",
			batch: ports.VoteBatch{
				VoterID:    "voter-1",
				PostID:     "p1",
				Next:       existing,
				Transition: valueobjects.Toggle(valueobjects.VoteNone, valueobjects.VoteUp),
			},
			wantItems: 3,
			check: func(t *testing.T, items []types.TransactWriteItem) {
				require.NotNil(t, items[1].Put)
				assert.Equal(t, "VOTE#voter-1", stringAttr(t, items[1].Put.Item["SK"]))
				assert.Equal(t, "USER#voter-1", stringAttr(t, items[2].Update.Key["PK"]))
			},
		},
		{
			name: "switching direction replaces the vote with one put",
			batch: ports.VoteBatch{
				VoterID:    "voter-1",
				PostID:     "p1",
				Existing:   existing,
				Next:       &entities.Vote{ID: "v1", VoterID: "voter-1", PostID: "p1", Direction: valueobjects.VoteDown},
				Transition: valueobjects.Toggle(valueobjects.VoteUp, valueobjects.VoteDown),
			},
			wantItems: 2,
			check: func(t *testing.T, items []types.TransactWriteItem) {
				assert.NotNil(t, items[0].Update)
				require.NotNil(t, items[1].Put)
				assert.Equal(t, "down", stringAttr(t, items[1].Put.Item["Direction"]))
			},
		},
		{
			name: "clearing deletes the vote",
			batch: ports.VoteBatch{
				VoterID:    "voter-1",
				PostID:     "p1",
				Existing:   existing,
				Transition: valueobjects.Toggle(valueobjects.VoteUp, valueobjects.VoteUp),
			},
			wantItems: 3,
			check: func(t *testing.T, items []types.TransactWriteItem) {
				require.NotNil(t, items[1].Delete)
				assert.Equal(t, "VOTE#voter-1", stringAttr(t, items[1].Delete.Key["SK"]))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{}
			store := newTestStore(client)
			var captured *dynamodb.TransactWriteItemsInput
			client.On("TransactWriteItems", ctx, mock.Anything).
				Run(func(args mock.Arguments) { captured = args.Get(1).(*dynamodb.TransactWriteItemsInput) }).
				Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

			require.NoError(t, store.CommitVote(ctx, tt.batch))

			require.Len(t, captured.TransactItems, tt.wantItems)
			tt.check(t, captured.TransactItems)
		})
	}

	t.Run("cancelled transaction on a missing post is not found", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)
		client.On("TransactWriteItems", ctx, mock.Anything).Return(nil, &types.TransactionCanceledException{
			Message:             aws.String("cancelled"),
			CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
		}).Once()

		err := store.CommitVote(ctx, tests[0].batch)

		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestStore_GetUserVote(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	store := newTestStore(client)
	av, err := attributevalue.MarshalMap(newVoteItem(entities.Vote{
		ID: "v1", VoterID: "voter-1", PostID: "p1", Direction: valueobjects.VoteDown, CreatedAt: fixtures.BaseTime,
	}))
	require.NoError(t, err)

	client.On("GetItem", ctx, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		return stringAttr(t, in.Key["SK"]) == "VOTE#voter-1"
	})).Return(&dynamodb.GetItemOutput{Item: av}, nil)
	client.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

	vote, err := store.GetUserVote(ctx, "voter-1", "p1")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.VoteDown, vote.Direction)

	none, err := store.GetUserVote(ctx, "voter-2", "p1")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_Comments(t *testing.T) {
	ctx := context.Background()
	comment := entities.Comment{
		ID: "c1", PostID: "p1", AuthorID: "author-1", AuthorName: "Ann",
		Content: "hi", CreatedAt: fixtures.BaseTime,
	}

	t.Run("create bumps the post counter", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)
		var captured *dynamodb.TransactWriteItemsInput
		client.On("TransactWriteItems", ctx, mock.Anything).
			Run(func(args mock.Arguments) { captured = args.Get(1).(*dynamodb.TransactWriteItemsInput) }).
			Return(&dynamodb.TransactWriteItemsOutput{}, nil).Once()

		require.NoError(t, store.CreateComment(ctx, comment))

		require.Len(t, captured.TransactItems, 2)
		assert.Equal(t, "COMMENT#c1", stringAttr(t, captured.TransactItems[0].Put.Item["PK"]))
		assert.Equal(t, "POSTCOMMENTS#p1", stringAttr(t, captured.TransactItems[0].Put.Item["GSI2PK"]))
		assert.Equal(t, "POST#p1", stringAttr(t, captured.TransactItems[1].Update.Key["PK"]))
	})

	t.Run("delete of a missing comment is not found", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)
		client.On("TransactWriteItems", ctx, mock.Anything).Return(nil, &types.TransactionCanceledException{
			CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}, {Code: aws.String("None")}},
		}).Once()

		err := store.DeleteComment(ctx, comment)

		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("query reads the post's comments newest first", func(t *testing.T) {
		client := &mockClient{}
		store := newTestStore(client)
		av, err := attributevalue.MarshalMap(newCommentItem(comment))
		require.NoError(t, err)
		client.On("Query", ctx, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return aws.ToString(in.IndexName) == "GSI2" && !aws.ToBool(in.ScanIndexForward)
		})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{av}}, nil).Once()

		page, err := store.QueryComments(ctx, "p1", 20, "")

		require.NoError(t, err)
		require.Len(t, page.Comments, 1)
		assert.Equal(t, "hi", page.Comments[0].Content)
		assert.NotEmpty(t, page.NextCursor)
	})
}

func TestStore_WatchActivePosts(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	store := newTestStore(client)

	first := fixtures.NewPostBuilder().WithID("p1").Build()
	voted := first
	voted.Upvotes = 5

	client.On("Query", mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{Items: postItems(t, first)}, nil).Twice()
	client.On("Query", mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{Items: postItems(t, voted)}, nil)

	snapshots := make(chan []entities.Post, 4)
	unsubscribe, err := store.WatchActivePosts(ctx, ports.WatchQuery{
		Limit: 50,
		Now:   func() time.Time { return fixtures.BaseTime },
	}, func(posts []entities.Post) { snapshots <- posts })
	require.NoError(t, err)
	defer unsubscribe()

	// The initial snapshot is always delivered.
	got := <-snapshots
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Upvotes)

	// An unchanged result is not delivered again.
	store.Notify()
	require.Eventually(t, func() bool { return client.queries.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, snapshots)

	store.Notify()
	select {
	case got = <-snapshots:
		assert.Equal(t, 5, got[0].Upvotes)
	case <-time.After(time.Second):
		t.Fatal("changed snapshot was not delivered")
	}

	unsubscribe()
	unsubscribe()
}
