//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"locallens/application/feed"
	"locallens/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideMetrics,
	ProvideTracerProvider,
	ProvideAWSConfig,
	ProvideBackendStore,
	ProvideRemoteStore,
	ProvideEventPublisher,
	ProvideKeyValueStore,
	ProvideSession,
	ProvideConnectivity,
	ProvideContentValidator,
	feed.NewCache,
	ProvideQueryEngine,
	ProvideRealtimeMerger,
	ProvideFeedService,
	ProvideCoordinator,
	ProvideNoteService,
	ProvideCommentService,
	ProvideOfflineQueue,
	ProvideSubmitService,
	ProvidePoller,
	ProvideChangeFeed,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
