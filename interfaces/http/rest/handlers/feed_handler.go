package handlers

import (
	"context"
	"net/http"
	"time"

	"locallens/application/feed"
	"locallens/domain/core/entities"
	pkgerrors "locallens/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	liveWriteWait  = 10 * time.Second
	livePingPeriod = 30 * time.Second
)

// FeedHandler serves the active feed and its live stream.
type FeedHandler struct {
	base
	feed     *feed.Service
	upgrader websocket.Upgrader
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(svc *feed.Service, allowedOrigins []string, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *FeedHandler {
	h := &FeedHandler{base: newBase(errs, logger), feed: svc}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// FeedResponse is the page chain of the active feed.
type FeedResponse struct {
	Pages []feed.CachePage `json:"pages"`
}

// GetFeed handles GET /feed
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	h.respondPages(w, r, h.feed.Pages)
}

// Refresh handles POST /feed/refresh
func (h *FeedHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.respondPages(w, r, h.feed.Load)
}

// LoadMore handles POST /feed/more
func (h *FeedHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	h.respondPages(w, r, h.feed.LoadMore)
}

func (h *FeedHandler) respondPages(w http.ResponseWriter, r *http.Request, load func(ctx context.Context) ([]feed.CachePage, error)) {
	pages, err := load(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if pages == nil {
		pages = []feed.CachePage{}
	}
	h.respondJSON(w, http.StatusOK, FeedResponse{Pages: pages})
}

// LiveMessage is one frame of the live feed stream.
type LiveMessage struct {
	Type  string          `json:"type"`
	Posts []entities.Post `json:"posts"`
}

// Live handles GET /feed/live. It upgrades to a websocket and pushes the
// live-merged first page whenever it changes.
func (h *FeedHandler) Live(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates := make(chan []entities.Post, 1)
	ctx := r.Context()
	unsubscribe, err := h.feed.Watch(ctx, func(posts []entities.Post) {
		// Keep only the newest snapshot when the client is slow.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- posts:
		default:
		}
	})
	if err != nil {
		h.writeClose(conn, err)
		return
	}
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case posts := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(LiveMessage{Type: "feed", Posts: posts}); err != nil {
				h.logger.Debug("Live feed client gone", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *FeedHandler) writeClose(conn *websocket.Conn, err error) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteWait))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
