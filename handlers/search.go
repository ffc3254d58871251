package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"nextup/services/tvmaze"
	"nextup/services/wikidata"
)

type catalogSearcher interface {
	SearchShows(ctx context.Context, query string) ([]tvmaze.SearchResult, error)
	LookupByIMDB(ctx context.Context, imdbID string) (*tvmaze.Show, error)
}

var _ catalogSearcher = (*tvmaze.Client)(nil)

type genreBrowser interface {
	QueryByGenre(ctx context.Context, genre string, types []string, limit int) ([]wikidata.CrossReference, error)
}

var _ genreBrowser = (*wikidata.Client)(nil)

// SearchHandler fronts the catalog search and genre browse endpoints.
type SearchHandler struct {
	Catalog catalogSearcher
	Browse  genreBrowser
}

func NewSearchHandler(catalog catalogSearcher, browse genreBrowser) *SearchHandler {
	return &SearchHandler{Catalog: catalog, Browse: browse}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "q parameter required", http.StatusBadRequest)
		return
	}

	results, err := h.Catalog.SearchShows(r.Context(), query)
	if err != nil {
		log.Printf("[search] catalog search %q failed: %v", query, err)
		http.Error(w, "catalog search failed", http.StatusBadGateway)
		return
	}
	if results == nil {
		results = []tvmaze.SearchResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

func (h *SearchHandler) LookupIMDB(w http.ResponseWriter, r *http.Request) {
	imdbID := strings.TrimSpace(r.URL.Query().Get("imdb"))
	if imdbID == "" {
		http.Error(w, "imdb parameter required", http.StatusBadRequest)
		return
	}

	show, err := h.Catalog.LookupByIMDB(r.Context(), imdbID)
	if err != nil {
		log.Printf("[search] imdb lookup %q failed: %v", imdbID, err)
		http.Error(w, "catalog lookup failed", http.StatusBadGateway)
		return
	}
	if show == nil {
		http.Error(w, "no match for imdb id", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(show)
}

// BrowseByGenre queries the cross-reference source for shows in a genre.
// Results carry wd- ids until the user resolves them against the catalog.
func (h *SearchHandler) BrowseByGenre(w http.ResponseWriter, r *http.Request) {
	genre := strings.TrimSpace(r.URL.Query().Get("genre"))
	if genre == "" {
		http.Error(w, "genre parameter required", http.StatusBadRequest)
		return
	}

	var types []string
	if t := strings.TrimSpace(r.URL.Query().Get("types")); t != "" {
		types = strings.Split(t, ",")
	}

	limit := 40
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	refs, err := h.Browse.QueryByGenre(r.Context(), genre, types, limit)
	if err != nil {
		log.Printf("[search] genre browse %q failed: %v", genre, err)
		http.Error(w, "genre browse failed", http.StatusBadGateway)
		return
	}
	if refs == nil {
		refs = []wikidata.CrossReference{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(refs)
}

func (h *SearchHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
