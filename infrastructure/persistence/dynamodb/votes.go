package dynamodb

import (
	"context"
	"fmt"

	"locallens/application/ports"
	"locallens/domain/core/entities"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

func (s *Store) GetUserVote(ctx context.Context, voterID, postID string) (*entities.Vote, error) {
	av, err := s.getItem(ctx, postPK(postID), voteSK(voterID))
	if err != nil {
		return nil, err
	}
	if av == nil {
		return nil, nil
	}
	var item voteItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vote: %w", err)
	}
	vote := item.toEntity()
	return &vote, nil
}

// CommitVote writes the post counters, the vote record and the voter's
// votesCount in one transaction. A direction switch replaces the vote item
// with a single Put, since a transaction may touch each item only once.
func (s *Store) CommitVote(ctx context.Context, batch ports.VoteBatch) error {
	t := batch.Transition
	var items []types.TransactWriteItem

	exists := expression.Name("PK").AttributeExists()
	var counters expression.UpdateBuilder
	hasCounters := false
	if t.UpDelta != 0 {
		counters = counters.Add(expression.Name("Upvotes"), expression.Value(t.UpDelta))
		hasCounters = true
	}
	if t.DownDelta != 0 {
		counters = counters.Add(expression.Name("Downvotes"), expression.Value(t.DownDelta))
		hasCounters = true
	}
	if hasCounters {
		expr, err := expression.NewBuilder().WithUpdate(counters).WithCondition(exists).Build()
		if err != nil {
			return fmt.Errorf("failed to build expression: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(s.tableName),
				Key:                       s.key(postPK(batch.PostID), skMetadata),
				UpdateExpression:          expr.Update(),
				ConditionExpression:       expr.Condition(),
				ExpressionAttributeNames:  expr.Names(),
				ExpressionAttributeValues: expr.Values(),
			},
		})
	}

	switch {
	case batch.Next != nil:
		av, err := attributevalue.MarshalMap(newVoteItem(*batch.Next))
		if err != nil {
			return fmt.Errorf("failed to marshal vote: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.tableName), Item: av},
		})
	case batch.Existing != nil:
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(s.tableName),
				Key:       s.key(postPK(batch.PostID), voteSK(batch.VoterID)),
			},
		})
	}

	if t.TallyDelta != 0 {
		update, err := s.counterUpdate(userPK(batch.VoterID), skProfile, "VotesCount", t.TallyDelta,
			expression.Set(expression.Name("EntityType"), expression.IfNotExists(expression.Name("EntityType"), expression.Value("USER"))).
				Set(expression.Name("UserID"), expression.IfNotExists(expression.Name("UserID"), expression.Value(batch.VoterID))),
			nil)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Update: update})
	}

	if len(items) == 0 {
		return nil
	}
	if err := s.transact(ctx, "CommitVote", items); err != nil {
		return notFoundOr(err, "post")
	}

	s.logger.Debug("Vote committed",
		zap.String("postID", batch.PostID),
		zap.String("voterID", batch.VoterID),
		zap.String("from", t.From.String()),
		zap.String("to", t.To.String()),
	)
	s.Notify()
	return nil
}
