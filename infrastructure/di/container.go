package di

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"locallens/application/feed"
	"locallens/application/mutations"
	"locallens/application/offline"
	"locallens/application/polling"
	"locallens/application/ports"
	"locallens/application/services"
	"locallens/application/session"
	domainconfig "locallens/domain/config"
	"locallens/infrastructure/config"
	"locallens/infrastructure/connectivity"
	"locallens/infrastructure/realtime"
	"locallens/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Domain       *domainconfig.DomainConfig
	Logger       *zap.Logger
	Metrics      *observability.Collector
	Store        ports.RemoteStore
	Session      *session.Session
	Cache        *feed.Cache
	Connectivity *connectivity.Monitor
	Feed         *feed.Service
	Merger       *feed.RealtimeMerger
	Comments     *services.CommentService
	Notes        *services.NoteService
	Submit       *services.SubmitService
	Mutations    *mutations.Coordinator
	Queue        *offline.Queue
	Poller       *polling.Poller
	ChangeFeed   *realtime.ChangeFeed
}

// Start connects the background parts of the engine: refetch on
// invalidation, user switches, app lifecycle and connectivity triggers, the poller, the
// change feed and the connectivity probe. The returned function stops them.
func (c *Container) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	var stopped atomic.Bool
	var wg sync.WaitGroup

	stopFeed := c.Feed.Start(ctx)
	stopComments := c.Comments.Start(ctx)

	disposeMetrics := c.Cache.Subscribe(func(ev feed.Event) {
		c.Metrics.RecordCacheEvent(ev.Kind.String())
	})

	disposeSession := c.Session.OnChange(func(ch session.Change) {
		if stopped.Load() {
			return
		}
		switch ch.Kind {
		case session.UserChanged:
			c.Mutations.ResetUser()
		case session.AppStateChanged:
			switch ch.AppState {
			case session.Background:
				c.Poller.OnBackground()
			case session.Foreground:
				c.Poller.OnForeground(ctx)
				c.Queue.OnForeground(ctx)
			}
		}
	})

	disposeConnectivity := c.Connectivity.OnChange(func(_ context.Context, online bool) {
		if online && !stopped.Load() {
			c.Queue.OnReconnect(ctx)
		}
	})

	if c.Session.AppState() == session.Foreground {
		c.Poller.Start(ctx)
	}
	c.Queue.OnForeground(ctx)

	if c.ChangeFeed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.ChangeFeed.Start(ctx); err != nil && ctx.Err() == nil {
				c.Logger.Error("Change feed stopped", zap.Error(err))
			}
		}()
	}

	if c.Config.ProbeURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Connectivity.Run(ctx, c.Config.ProbeURL, c.Config.ProbeInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			c.Metrics.SetLiveFeeds(c.Merger.ActiveFeeds())
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		stopped.Store(true)
		disposeSession()
		disposeConnectivity()
		disposeMetrics()
		c.Poller.Stop()
		cancel()
		stopFeed()
		stopComments()
		c.Merger.Close()
		wg.Wait()
	}
}
