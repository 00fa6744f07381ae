package rest

import (
	"net/http"

	"locallens/infrastructure/di"
	"locallens/interfaces/http/rest/handlers"
	"locallens/interfaces/http/rest/middleware"
	pkgerrors "locallens/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the local HTTP API
type Router struct {
	container *di.Container
	logger    *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(container *di.Container) *Router {
	return &Router{container: container, logger: container.Logger}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	c := rt.container
	cfg := c.Config
	errs := pkgerrors.NewErrorHandler(rt.logger, !cfg.IsProduction())

	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger, c.Metrics))

	if cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	if cfg.EnableMetrics {
		router.Handle("/metrics", c.Metrics.Handler())
	}

	sessionHandler := handlers.NewSessionHandler(c.Session, c.Connectivity, errs, rt.logger)
	feedHandler := handlers.NewFeedHandler(c.Feed, cfg.CORSAllowedOrigins, errs, rt.logger)
	noteHandler := handlers.NewNoteHandler(c.Submit, c.Notes, c.Queue, errs, rt.logger)
	interactionHandler := handlers.NewInteractionHandler(c.Mutations, c.Comments, c.Cache, errs, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)
			r.Put("/user", sessionHandler.SetUser)
			r.Delete("/user", sessionHandler.ClearUser)
			r.Put("/location", sessionHandler.SetLocation)
			r.Put("/radius", sessionHandler.SetRadius)
			r.Post("/lifecycle", sessionHandler.Lifecycle)
			r.Post("/connectivity", sessionHandler.Connectivity)
		})

		r.Route("/feed", func(r chi.Router) {
			r.Get("/", feedHandler.GetFeed)
			r.Post("/refresh", feedHandler.Refresh)
			r.Post("/more", feedHandler.LoadMore)
			r.Get("/live", feedHandler.Live)
		})

		r.Route("/notes", func(r chi.Router) {
			r.Post("/", noteHandler.CreateNote)
			r.Get("/offline", noteHandler.ListOffline)
			r.Post("/offline/sync", noteHandler.SyncOffline)
			r.Delete("/offline/synced", noteHandler.PurgeOffline)
			r.Delete("/{postID}", noteHandler.DeactivateNote)
		})

		r.Get("/users/{userID}/notes", noteHandler.ListByAuthor)

		r.Route("/posts/{postID}", func(r chi.Router) {
			r.Post("/vote", interactionHandler.Vote)
			r.Get("/comments", interactionHandler.ListComments)
			r.Post("/comments", interactionHandler.AddComment)
			r.Post("/comments/more", interactionHandler.MoreComments)
			r.Delete("/comments/{commentID}", interactionHandler.DeleteComment)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
