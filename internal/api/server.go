// Package api provides the local control API of the sync daemon.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/listenupapp/listenup-sync/internal/bulk"
	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/ratelimit"
	"github.com/listenupapp/listenup-sync/internal/store"
	"github.com/listenupapp/listenup-sync/internal/validation"
)

// Deps are the components the handlers drive.
type Deps struct {
	Store     store.Store
	Cache     *cache.Cache
	Sync      SyncService
	Mutations MutationService
	Session   SessionService
	Network   NetworkService
	Offline   OfflineService
	Bulk      *bulk.Registry
	Remote    RemoteStatus // optional

	// Events serves the event stream. Nil disables the route.
	Events http.Handler

	// Limiter throttles requests per client IP. Nil disables throttling.
	Limiter *ratelimit.KeyedRateLimiter

	// AllowedOrigins lists CORS origins. Empty allows none.
	AllowedOrigins []string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	Deps
	validator *validation.Validator
	router    *chi.Mux
	logger    *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Deps:      deps,
		validator: validation.New(),
		router:    chi.NewRouter(),
		logger:    logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	if s.Limiter != nil {
		s.router.Use(RateLimitMiddleware(s.Limiter, s.logger))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/", s.handleSignIn)
			r.Delete("/", s.handleSignOut)
		})

		r.Route("/network", func(r chi.Router) {
			r.Get("/", s.handleGetNetwork)
			r.Put("/", s.handleSetNetwork)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/", s.handleGetSyncState)
			r.Post("/", s.handleTriggerSync)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", s.handleListCatalog)
			r.Get("/{itemID}", s.handleGetCatalogItem)
			r.Post("/{itemID}/play", s.handleRecordPlay)
		})

		r.Get("/sections/{name}", s.handleGetSection)
		r.Get("/featured", s.handleListFeatured)

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", s.handleListFavorites)
			r.Get("/{itemID}", s.handleGetFavorite)
			r.Post("/{itemID}/toggle", s.handleToggleFavorite)
		})

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", s.handleListCollections)
			r.Get("/{collectionID}", s.handleGetCollection)
			r.Get("/{collectionID}/items", s.handleListCollectionItems)
			r.Post("/{collectionID}/items", s.handleAddCollectionItem)
			r.Delete("/{collectionID}/items/{itemID}", s.handleRemoveCollectionItem)
		})

		r.Route("/downloads", func(r chi.Router) {
			r.Get("/", s.handleListDownloads)
			r.Post("/cancel", s.handleCancelAllDownloads)
			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", s.bulkHandler(s.favoritesManager, s.handleBulkState))
				r.Post("/", s.bulkHandler(s.favoritesManager, s.handleBulkDownload))
				r.Delete("/", s.bulkHandler(s.favoritesManager, s.handleBulkDelete))
				r.Post("/cancel", s.bulkHandler(s.favoritesManager, s.handleBulkCancel))
			})
			r.Route("/collections/{collectionID}", func(r chi.Router) {
				r.Get("/", s.bulkHandler(s.collectionManager, s.handleBulkState))
				r.Post("/", s.bulkHandler(s.collectionManager, s.handleBulkDownload))
				r.Delete("/", s.bulkHandler(s.collectionManager, s.handleBulkDelete))
				r.Post("/cancel", s.bulkHandler(s.collectionManager, s.handleBulkCancel))
			})
		})

		r.Route("/storage", func(r chi.Router) {
			r.Get("/", s.handleGetStorage)
			r.Delete("/", s.handleClearStorage)
		})

		if s.Events != nil {
			r.Get("/events", s.Events.ServeHTTP)
		}
	})
}
