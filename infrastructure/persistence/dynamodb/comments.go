package dynamodb

import (
	"context"
	"fmt"

	"locallens/application/ports"
	"locallens/domain/core/entities"
	pkgerrors "locallens/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// QueryComments returns a post's comments newest first.
func (s *Store) QueryComments(ctx context.Context, postID string, limit int, cursor string) (ports.CommentPage, error) {
	keyCond := expression.Key("GSI2PK").Equal(expression.Value(fmt.Sprintf("POSTCOMMENTS#%s", postID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return ports.CommentPage{}, fmt.Errorf("failed to build expression: %w", err)
	}

	startKey, err := decodeCursor(cursor)
	if err != nil {
		return ports.CommentPage{}, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(s.gsi2),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		ExclusiveStartKey:         startKey,
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return ports.CommentPage{}, err
	}

	var records []commentItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
		return ports.CommentPage{}, fmt.Errorf("failed to unmarshal comments: %w", err)
	}
	page := ports.CommentPage{Comments: make([]entities.Comment, 0, len(records))}
	for _, r := range records {
		page.Comments = append(page.Comments, r.toEntity())
	}
	if n := len(out.Items); n > 0 {
		next, err := encodeCursor(out.Items[n-1], gsi2KeyAttrs)
		if err != nil {
			return ports.CommentPage{}, fmt.Errorf("failed to encode cursor: %w", err)
		}
		page.NextCursor = next
	}
	return page, nil
}

func (s *Store) GetComment(ctx context.Context, id string) (*entities.Comment, error) {
	av, err := s.getItem(ctx, commentPK(id), skMetadata)
	if err != nil {
		return nil, err
	}
	if av == nil {
		return nil, pkgerrors.NewNotFoundError("comment")
	}
	var item commentItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal comment: %w", err)
	}
	comment := item.toEntity()
	return &comment, nil
}

// CreateComment stores the comment and increments the post's commentsCount.
func (s *Store) CreateComment(ctx context.Context, comment entities.Comment) error {
	av, err := attributevalue.MarshalMap(newCommentItem(comment))
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}

	exists := expression.Name("PK").AttributeExists()
	postUpdate, err := s.counterUpdate(postPK(comment.PostID), skMetadata, "CommentsCount", 1, expression.UpdateBuilder{}, &exists)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{
		{Put: &types.Put{TableName: aws.String(s.tableName), Item: av}},
		{Update: postUpdate},
	}
	if err := s.transact(ctx, "CreateComment", items); err != nil {
		return notFoundOr(err, "post")
	}

	s.logger.Info("Comment created",
		zap.String("commentID", comment.ID),
		zap.String("postID", comment.PostID),
	)
	s.Notify()
	return nil
}

// DeleteComment removes the comment and decrements the post's commentsCount.
func (s *Store) DeleteComment(ctx context.Context, comment entities.Comment) error {
	cond, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	positive := expression.Name("CommentsCount").GreaterThan(expression.Value(0))
	postUpdate, err := s.counterUpdate(postPK(comment.PostID), skMetadata, "CommentsCount", -1, expression.UpdateBuilder{}, &positive)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{
		{
			Delete: &types.Delete{
				TableName:                 aws.String(s.tableName),
				Key:                       s.key(commentPK(comment.ID), skMetadata),
				ConditionExpression:       cond.Condition(),
				ExpressionAttributeNames:  cond.Names(),
				ExpressionAttributeValues: cond.Values(),
			},
		},
		{Update: postUpdate},
	}
	if err := s.transact(ctx, "DeleteComment", items); err != nil {
		return notFoundOr(err, "comment")
	}

	s.logger.Info("Comment deleted",
		zap.String("commentID", comment.ID),
		zap.String("postID", comment.PostID),
	)
	s.Notify()
	return nil
}
