package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"nextup/internal/database"
	"nextup/models"

	"github.com/gorilla/mux"
)

type showRowStore interface {
	FetchRows(ctx context.Context, userKey string) ([]models.SyncSummary, error)
	UpsertRows(ctx context.Context, userKey string, rows []models.SyncSummary) error
	DeleteRow(ctx context.Context, userKey, showID string) error
	DeleteRowsNotIn(ctx context.Context, userKey string, keep []string) error
}

var _ showRowStore = (*database.ShowRowRepository)(nil)

// TokenValidator checks a bearer token and returns the user key it was
// issued for.
type TokenValidator interface {
	ValidateToken(token string) (string, bool)
}

// SyncHandler serves the compact show rows other instances sync against.
type SyncHandler struct {
	Rows showRowStore
}

func NewSyncHandler(rows showRowStore) *SyncHandler {
	return &SyncHandler{Rows: rows}
}

// BearerAuthMiddleware rejects requests whose bearer token does not belong
// to the user key in the URL.
func BearerAuthMiddleware(tokens TokenValidator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "bearer token required", http.StatusUnauthorized)
				return
			}

			userKey, ok := tokens.ValidateToken(token)
			if !ok {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			if userKey != mux.Vars(r)["userKey"] {
				http.Error(w, "token does not match user", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *SyncHandler) ListRows(w http.ResponseWriter, r *http.Request) {
	userKey := mux.Vars(r)["userKey"]

	rows, err := h.Rows.FetchRows(r.Context(), userKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.SyncSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

func (h *SyncHandler) PutRows(w http.ResponseWriter, r *http.Request) {
	userKey := mux.Vars(r)["userKey"]

	var rows []models.SyncSummary
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, row := range rows {
		if strings.TrimSpace(row.ID) == "" {
			http.Error(w, "row id is required", http.StatusBadRequest)
			return
		}
	}

	if err := h.Rows.UpsertRows(r.Context(), userKey, rows); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceRows swaps the full row set: upsert the payload, then prune
// everything not in it.
func (h *SyncHandler) ReplaceRows(w http.ResponseWriter, r *http.Request) {
	userKey := mux.Vars(r)["userKey"]

	var rows []models.SyncSummary
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Rows.UpsertRows(r.Context(), userKey, rows); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	keep := make([]string, 0, len(rows))
	for _, row := range rows {
		keep = append(keep, row.ID)
	}
	if err := h.Rows.DeleteRowsNotIn(r.Context(), userKey, keep); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SyncHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	showID := strings.TrimSpace(vars["showID"])
	if showID == "" {
		http.Error(w, "show id is required", http.StatusBadRequest)
		return
	}

	if err := h.Rows.DeleteRow(r.Context(), vars["userKey"], showID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SyncHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
