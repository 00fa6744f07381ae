package dynamodb

import (
	"context"
	"fmt"

	"locallens/domain/core/entities"
	pkgerrors "locallens/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

func (s *Store) GetUser(ctx context.Context, id string) (*entities.User, error) {
	av, err := s.getItem(ctx, userPK(id), skProfile)
	if err != nil {
		return nil, err
	}
	if av == nil {
		return nil, pkgerrors.NewNotFoundError("user")
	}
	var item userItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	user := item.toEntity()
	return &user, nil
}

// SaveUser upserts the profile fields. The counters belong to the post and
// vote transactions and are left untouched.
func (s *Store) SaveUser(ctx context.Context, user entities.User) error {
	update := expression.Set(expression.Name("EntityType"), expression.Value("USER")).
		Set(expression.Name("UserID"), expression.Value(user.ID)).
		Set(expression.Name("Username"), expression.Value(user.Username)).
		Set(expression.Name("Email"), expression.Value(user.Email)).
		Set(expression.Name("DisplayName"), expression.Value(user.DisplayName)).
		Set(expression.Name("AvatarURL"), expression.Value(user.AvatarURL)).
		Set(expression.Name("CreatedAt"), expression.IfNotExists(expression.Name("CreatedAt"), expression.Value(formatTime(user.CreatedAt)))).
		Set(expression.Name("LastActiveAt"), expression.Value(formatTime(user.LastActiveAt))).
		Set(expression.Name("NotesCount"), expression.IfNotExists(expression.Name("NotesCount"), expression.Value(user.NotesCount))).
		Set(expression.Name("VotesCount"), expression.IfNotExists(expression.Name("VotesCount"), expression.Value(user.VotesCount)))

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(userPK(user.ID), skProfile),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	return err
}
