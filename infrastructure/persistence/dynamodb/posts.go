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

// QueryActivePosts reads the sparse ACTIVE index. Only live posts carry its
// keys, and its sort key already encodes the feed order.
func (s *Store) QueryActivePosts(ctx context.Context, q ports.PostQuery) (ports.PostPage, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(gsiActive)).
		And(expression.Key("GSI1SK").GreaterThan(expression.Value(expiredBefore(q.Now))))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return ports.PostPage{}, fmt.Errorf("failed to build expression: %w", err)
	}

	startKey, err := decodeCursor(q.Cursor)
	if err != nil {
		return ports.PostPage{}, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(s.gsi1),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
		ExclusiveStartKey:         startKey,
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(int32(q.Limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return ports.PostPage{}, err
	}
	return s.postPage(out.Items, activeKeyAttrs)
}

func (s *Store) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	av, err := s.getItem(ctx, postPK(id), skMetadata)
	if err != nil {
		return nil, err
	}
	if av == nil {
		return nil, pkgerrors.NewNotFoundError("post")
	}
	var item postItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}
	post := item.toEntity()
	return &post, nil
}

// QueryPostsByAuthor reads an author's posts newest first, including
// deactivated and expired ones.
func (s *Store) QueryPostsByAuthor(ctx context.Context, authorID string, limit int, cursor string) (ports.PostPage, error) {
	keyCond := expression.Key("GSI2PK").Equal(expression.Value(fmt.Sprintf("AUTHOR#%s", authorID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return ports.PostPage{}, fmt.Errorf("failed to build expression: %w", err)
	}

	startKey, err := decodeCursor(cursor)
	if err != nil {
		return ports.PostPage{}, err
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
		return ports.PostPage{}, err
	}
	return s.postPage(out.Items, gsi2KeyAttrs)
}

func (s *Store) postPage(items []map[string]types.AttributeValue, keyAttrs []string) (ports.PostPage, error) {
	var records []postItem
	if err := attributevalue.UnmarshalListOfMaps(items, &records); err != nil {
		return ports.PostPage{}, fmt.Errorf("failed to unmarshal posts: %w", err)
	}

	page := ports.PostPage{Posts: make([]entities.Post, 0, len(records))}
	for _, r := range records {
		page.Posts = append(page.Posts, r.toEntity())
	}
	if n := len(items); n > 0 {
		cursor, err := encodeCursor(items[n-1], keyAttrs)
		if err != nil {
			return ports.PostPage{}, fmt.Errorf("failed to encode cursor: %w", err)
		}
		page.NextCursor = cursor
	}
	return page, nil
}

// CreatePost writes the post and bumps the author's notesCount in one transaction.
func (s *Store) CreatePost(ctx context.Context, post entities.Post) error {
	av, err := attributevalue.MarshalMap(newPostItem(post))
	if err != nil {
		return fmt.Errorf("failed to marshal post: %w", err)
	}

	putCond, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	userUpdate, err := s.counterUpdate(userPK(post.AuthorID), skProfile, "NotesCount", 1,
		expression.Set(expression.Name("EntityType"), expression.IfNotExists(expression.Name("EntityType"), expression.Value("USER"))).
			Set(expression.Name("UserID"), expression.IfNotExists(expression.Name("UserID"), expression.Value(post.AuthorID))),
		nil)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:                 aws.String(s.tableName),
				Item:                      av,
				ConditionExpression:       putCond.Condition(),
				ExpressionAttributeNames:  putCond.Names(),
				ExpressionAttributeValues: putCond.Values(),
			},
		},
		{Update: userUpdate},
	}

	if err := s.transact(ctx, "CreatePost", items); err != nil {
		return err
	}

	s.logger.Info("Post created",
		zap.String("postID", post.ID),
		zap.String("authorID", post.AuthorID),
		zap.String("cellID", post.CellID),
	)
	s.Notify()
	return nil
}

// DeactivatePost clears the active flag and drops the post from the ACTIVE index.
func (s *Store) DeactivatePost(ctx context.Context, postID string) error {
	update := expression.Set(expression.Name("IsActive"), expression.Value(false)).
		Remove(expression.Name("GSI1PK")).
		Remove(expression.Name("GSI1SK"))

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(postPK(postID), skMetadata),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return notFoundOr(err, "post")
	}

	s.logger.Info("Post deactivated", zap.String("postID", postID))
	s.Notify()
	return nil
}

// counterUpdate builds an Update that adds delta to counter. extra may carry
// additional SET clauses; cond, when set, guards the update.
func (s *Store) counterUpdate(
	pk, sk, counter string,
	delta int,
	extra expression.UpdateBuilder,
	cond *expression.ConditionBuilder,
) (*types.Update, error) {
	update := extra.Add(expression.Name(counter), expression.Value(delta))

	builder := expression.NewBuilder().WithUpdate(update)
	if cond != nil {
		builder = builder.WithCondition(*cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return &types.Update{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(pk, sk),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}
