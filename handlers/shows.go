package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"nextup/models"
	"nextup/services/shows"

	"github.com/gorilla/mux"
)

type showsService interface {
	GetShows(ctx context.Context, id models.Identity) []models.TrackedShow
	SaveShows(ctx context.Context, id models.Identity, list []models.TrackedShow) error
	Add(ctx context.Context, id models.Identity, show models.TrackedShow) (bool, error)
	Remove(ctx context.Context, id models.Identity, showID string) (bool, error)
	TogglePriority(ctx context.Context, id models.Identity, showID string) (bool, error)
	SetWatchLink(ctx context.Context, id models.Identity, showID, link string) error
	SetProgress(ctx context.Context, id models.Identity, showID string, episode int) error
	SetWatched(ctx context.Context, id models.Identity, showID string, watched bool) error
	Export(ctx context.Context, id models.Identity) models.ExportFile
	Import(ctx context.Context, id models.Identity, data []byte, merge bool) (int, error)
}

var _ showsService = (*shows.Service)(nil)

type refreshService interface {
	RefreshStale(ctx context.Context, id models.Identity, list []models.TrackedShow) bool
}

type identityProvider interface {
	Current() models.Identity
}

// maxImportBytes caps import uploads. Export files are small; anything
// larger is not one of ours.
const maxImportBytes = 10 << 20

type ShowsHandler struct {
	Service   showsService
	Identity  identityProvider
	Refresher refreshService
}

func NewShowsHandler(service showsService, identity identityProvider, refresher refreshService) *ShowsHandler {
	return &ShowsHandler{Service: service, Identity: identity, Refresher: refresher}
}

func (h *ShowsHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.Service.GetShows(r.Context(), h.Identity.Current())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *ShowsHandler) Save(w http.ResponseWriter, r *http.Request) {
	var list []models.TrackedShow
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.SaveShows(r.Context(), h.Identity.Current(), list); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShowsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var show models.TrackedShow
	if err := json.NewDecoder(r.Body).Decode(&show); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	added, err := h.Service.Add(r.Context(), h.Identity.Current(), show)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shows.ErrIDRequired) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if added {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(map[string]bool{"added": added})
}

func (h *ShowsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	showID := strings.TrimSpace(mux.Vars(r)["showID"])
	if showID == "" {
		http.Error(w, "show id is required", http.StatusBadRequest)
		return
	}

	removed, err := h.Service.Remove(r.Context(), h.Identity.Current(), showID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "show not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShowsHandler) TogglePriority(w http.ResponseWriter, r *http.Request) {
	showID := strings.TrimSpace(mux.Vars(r)["showID"])
	if showID == "" {
		http.Error(w, "show id is required", http.StatusBadRequest)
		return
	}

	priority, err := h.Service.TogglePriority(r.Context(), h.Identity.Current(), showID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shows.ErrShowNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"priority": priority})
}

func (h *ShowsHandler) SetWatchLink(w http.ResponseWriter, r *http.Request) {
	showID := strings.TrimSpace(mux.Vars(r)["showID"])
	if showID == "" {
		http.Error(w, "show id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Link string `json:"link"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.SetWatchLink(r.Context(), h.Identity.Current(), showID, body.Link); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, shows.ErrInvalidWatchLink):
			status = http.StatusBadRequest
		case errors.Is(err, shows.ErrShowNotFound):
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShowsHandler) SetProgress(w http.ResponseWriter, r *http.Request) {
	showID := strings.TrimSpace(mux.Vars(r)["showID"])
	if showID == "" {
		http.Error(w, "show id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Episode int `json:"episode"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.SetProgress(r.Context(), h.Identity.Current(), showID, body.Episode); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, shows.ErrNegativeProgress):
			status = http.StatusBadRequest
		case errors.Is(err, shows.ErrShowNotFound):
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShowsHandler) SetWatched(w http.ResponseWriter, r *http.Request) {
	showID := strings.TrimSpace(mux.Vars(r)["showID"])
	if showID == "" {
		http.Error(w, "show id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Watched bool `json:"watched"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Service.SetWatched(r.Context(), h.Identity.Current(), showID, body.Watched); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shows.ErrShowNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ShowsHandler) Export(w http.ResponseWriter, r *http.Request) {
	file := h.Service.Export(r.Context(), h.Identity.Current())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="nextup-export.json"`)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(file)
}

func (h *ShowsHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	merge := r.URL.Query().Get("merge") != "false"
	total, err := h.Service.Import(r.Context(), h.Identity.Current(), data, merge)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, shows.ErrInvalidImport) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"total": total})
}

// RefreshNow triggers an immediate staleness pass. A pass already in
// progress reports 202 without starting another.
func (h *ShowsHandler) RefreshNow(w http.ResponseWriter, r *http.Request) {
	id := h.Identity.Current()
	list := h.Service.GetShows(r.Context(), id)

	started := h.Refresher.RefreshStale(r.Context(), id, list)
	w.Header().Set("Content-Type", "application/json")
	if !started {
		w.WriteHeader(http.StatusAccepted)
	}
	json.NewEncoder(w).Encode(map[string]bool{"refreshed": started})
}

func (h *ShowsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
