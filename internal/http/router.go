package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"localdocs/internal/handlers"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine    handlers.IndexEngine
	Retriever handlers.Retriever
	DB        handlers.Pinger
	Events    http.Handler
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	folderHandler := handlers.NewFolderHandler(deps.Engine)
	collectionsHandler := handlers.NewCollectionsHandler(deps.Engine)
	retrieveHandler := handlers.NewRetrieveHandler(deps.Retriever)
	chunkSizeHandler := handlers.NewChunkSizeHandler(deps.Engine)
	healthHandler := handlers.NewHealthHandler(deps.DB)

	r.Route("/api", func(r chi.Router) {
		r.Post("/folders", folderHandler.Add)
		r.Delete("/folders", folderHandler.Remove)
		r.Post("/folders/retry", folderHandler.Retry)
		r.Get("/collections", collectionsHandler.List)
		r.Post("/retrieve", retrieveHandler.Retrieve)
		r.Post("/chunksize", chunkSizeHandler.Change)
		if deps.Events != nil {
			r.Method(http.MethodGet, "/events", deps.Events)
		}
	})

	r.Method(http.MethodGet, "/healthz", healthHandler)

	return r
}
