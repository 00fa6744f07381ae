package ports

import (
	"context"

	"locallens/domain/events"
)

// KeyValueStore is durable local storage addressed by key.
type KeyValueStore interface {
	// Get returns nil, nil when the key is absent
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// EventPublisher publishes domain events after a successful write.
type EventPublisher interface {
	Publish(ctx context.Context, events ...events.DomainEvent) error
}

// Connectivity reports whether the remote store is reachable.
type Connectivity interface {
	IsOnline() bool
}
