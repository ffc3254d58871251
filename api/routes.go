package api

import (
	"net/http"

	"nextup/handlers"

	"github.com/gorilla/mux"
)

// corsMiddleware handles CORS for API routes. The browser extension calls
// from an extension origin, so the API answers any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts all API endpoints onto the provided router.
func Register(
	r *mux.Router,
	showsHandler *handlers.ShowsHandler,
	identityHandler *handlers.IdentityHandler,
	searchHandler *handlers.SearchHandler,
	syncHandler *handlers.SyncHandler,
	imageHandler *handlers.ImageHandler,
	tokens handlers.TokenValidator,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	// Identity routes
	api.HandleFunc("/identity", identityHandler.Whoami).Methods(http.MethodGet)
	api.HandleFunc("/identity", identityHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/identity/signup", identityHandler.SignUp).Methods(http.MethodPost)
	api.HandleFunc("/identity/signup", identityHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/identity/signin", identityHandler.SignIn).Methods(http.MethodPost)
	api.HandleFunc("/identity/signin", identityHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/identity/signout", identityHandler.SignOut).Methods(http.MethodPost)
	api.HandleFunc("/identity/signout", identityHandler.Options).Methods(http.MethodOptions)

	// Show list routes
	api.HandleFunc("/shows", showsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/shows", showsHandler.Save).Methods(http.MethodPut)
	api.HandleFunc("/shows", showsHandler.Add).Methods(http.MethodPost)
	api.HandleFunc("/shows", showsHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/shows/export", showsHandler.Export).Methods(http.MethodGet)
	api.HandleFunc("/shows/export", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/shows/import", showsHandler.Import).Methods(http.MethodPost)
	api.HandleFunc("/shows/import", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/shows/refresh", showsHandler.RefreshNow).Methods(http.MethodPost)
	api.HandleFunc("/shows/refresh", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/shows/{showID}", showsHandler.Remove).Methods(http.MethodDelete)
	api.HandleFunc("/shows/{showID}", showsHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/shows/{showID}/priority", showsHandler.TogglePriority).Methods(http.MethodPost)
	api.HandleFunc("/shows/{showID}/priority", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/shows/{showID}/watchlink", showsHandler.SetWatchLink).Methods(http.MethodPut)
	api.HandleFunc("/shows/{showID}/watchlink", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/shows/{showID}/progress", showsHandler.SetProgress).Methods(http.MethodPut)
	api.HandleFunc("/shows/{showID}/progress", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/shows/{showID}/watched", showsHandler.SetWatched).Methods(http.MethodPut)
	api.HandleFunc("/shows/{showID}/watched", handleOptions).Methods(http.MethodOptions)

	// Catalog search and browse (rate limited, they fan out to upstreams)
	searchRouter := api.PathPrefix("").Subrouter()
	searchRouter.Use(RateLimitMiddleware(NewIPRateLimiter(2, 6)))
	searchRouter.HandleFunc("/search", searchHandler.Search).Methods(http.MethodGet)
	searchRouter.HandleFunc("/search", searchHandler.Options).Methods(http.MethodOptions)
	searchRouter.HandleFunc("/search/imdb", searchHandler.LookupIMDB).Methods(http.MethodGet)
	searchRouter.HandleFunc("/search/imdb", searchHandler.Options).Methods(http.MethodOptions)
	searchRouter.HandleFunc("/browse/genre", searchHandler.BrowseByGenre).Methods(http.MethodGet)
	searchRouter.HandleFunc("/browse/genre", searchHandler.Options).Methods(http.MethodOptions)

	// Sync rows served to other instances (bearer auth)
	syncRouter := api.PathPrefix("/sync").Subrouter()
	syncRouter.Use(handlers.BearerAuthMiddleware(tokens))
	syncRouter.HandleFunc("/{userKey}/shows", syncHandler.ListRows).Methods(http.MethodGet)
	syncRouter.HandleFunc("/{userKey}/shows", syncHandler.PutRows).Methods(http.MethodPost)
	syncRouter.HandleFunc("/{userKey}/shows", syncHandler.ReplaceRows).Methods(http.MethodPut)
	syncRouter.HandleFunc("/{userKey}/shows", syncHandler.Options).Methods(http.MethodOptions)
	syncRouter.HandleFunc("/{userKey}/shows/{showID}", syncHandler.DeleteRow).Methods(http.MethodDelete)
	syncRouter.HandleFunc("/{userKey}/shows/{showID}", syncHandler.Options).Methods(http.MethodOptions)

	// Poster proxy (public, no auth needed for <img> tags)
	api.HandleFunc("/images/proxy", imageHandler.Proxy).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/images/proxy", imageHandler.Options).Methods(http.MethodOptions)
}
