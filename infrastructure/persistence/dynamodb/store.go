// Package dynamodb implements the remote store ports on a single DynamoDB table.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"locallens/application/ports"
	pkgerrors "locallens/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Options configures the table layout and the watch loop.
type Options struct {
	TableName     string
	GSI1IndexName string
	GSI2IndexName string

	// WatchInterval is how often live subscriptions re-query.
	WatchInterval time.Duration
	// WatchRatePerSecond caps re-queries across all subscriptions.
	WatchRatePerSecond float64
}

// Store implements ports.RemoteStore.
type Store struct {
	client    Client
	tableName string
	gsi1      string
	gsi2      string
	interval  time.Duration
	limiter   *rate.Limiter
	logger    *zap.Logger

	mu        sync.Mutex
	watches   map[int]chan struct{}
	nextWatch int
}

var _ ports.RemoteStore = (*Store)(nil)

// NewStore creates a DynamoDB-backed store.
func NewStore(client Client, opts Options, logger *zap.Logger) *Store {
	if opts.GSI1IndexName == "" {
		opts.GSI1IndexName = "GSI1"
	}
	if opts.GSI2IndexName == "" {
		opts.GSI2IndexName = "GSI2"
	}
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = 5 * time.Second
	}
	limit := rate.Inf
	if opts.WatchRatePerSecond > 0 {
		limit = rate.Limit(opts.WatchRatePerSecond)
	}
	return &Store{
		client:    client,
		tableName: opts.TableName,
		gsi1:      opts.GSI1IndexName,
		gsi2:      opts.GSI2IndexName,
		interval:  opts.WatchInterval,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
		watches:   make(map[int]chan struct{}),
	}
}

// NewClient builds a DynamoDB client from an AWS config. A non-empty
// endpoint points the client at a local DynamoDB.
func NewClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func (s *Store) key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// getItem returns nil, nil when the item does not exist.
func (s *Store) getItem(ctx context.Context, pk, sk string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(pk, sk),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

func (s *Store) transact(ctx context.Context, op string, items []types.TransactWriteItem) error {
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		s.logger.Error("Transaction failed",
			zap.String("operation", op),
			zap.Int("items", len(items)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// conditionFailed reports whether err is a failed condition check, either on
// a single write or inside a transaction.
func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// notFoundOr maps a failed existence condition to a NOT_FOUND error and
// returns any other error unchanged.
func notFoundOr(err error, resource string) error {
	if conditionFailed(err) {
		return pkgerrors.NewNotFoundError(resource).WithCause(err)
	}
	return err
}

func postPK(id string) string    { return fmt.Sprintf("POST#%s", id) }
func commentPK(id string) string { return fmt.Sprintf("COMMENT#%s", id) }
func userPK(id string) string    { return fmt.Sprintf("USER#%s", id) }
func voteSK(voter string) string { return fmt.Sprintf("VOTE#%s", voter) }

const (
	skMetadata = "METADATA"
	skProfile  = "PROFILE"
	gsiActive  = "ACTIVE"
)
