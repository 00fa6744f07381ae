// Package realtime subscribes to the push gateway's change feed and wakes
// the store's live queries when posts change.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "locallens/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessagePostChanged is the only message type that triggers a re-query.
const MessagePostChanged = "post.changed"

// Notifier is woken on every post change. The DynamoDB store implements it.
type Notifier interface {
	Notify()
}

// Message is one change notification from the gateway.
type Message struct {
	Type   string `json:"type"`
	PostID string `json:"postId,omitempty"`
}

// ChangeFeed keeps a websocket open to the gateway and reconnects after errors.
type ChangeFeed struct {
	url       string
	notifier  Notifier
	reconnect time.Duration
	dialer    *websocket.Dialer
	logger    *zap.Logger
}

// NewChangeFeed creates a change feed client for the given ws:// or wss:// URL.
func NewChangeFeed(url string, notifier Notifier, reconnect time.Duration, logger *zap.Logger) *ChangeFeed {
	if reconnect <= 0 {
		reconnect = 3 * time.Second
	}
	return &ChangeFeed{
		url:       url,
		notifier:  notifier,
		reconnect: reconnect,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
	}
}

// Start reads the feed until ctx is cancelled, reconnecting after a delay
// whenever the connection drops.
func (f *ChangeFeed) Start(ctx context.Context) error {
	for {
		if err := f.subscribe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("Change feed connection lost, reconnecting",
				zap.Duration("delay", f.reconnect),
				zap.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnect):
		}
	}
}

func (f *ChangeFeed) subscribe(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return pkgerrors.NewNetworkError("dial change feed", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	f.logger.Info("Connected to change feed", zap.String("url", f.url))
	// Changes may have been missed while disconnected.
	f.notifier.Notify()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("Failed to parse change feed message", zap.Error(err))
			continue
		}
		if msg.Type != MessagePostChanged {
			f.logger.Debug("Ignoring change feed message", zap.String("type", msg.Type))
			continue
		}
		f.notifier.Notify()
	}
}
