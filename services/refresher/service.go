package refresher

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"nextup/models"
	"nextup/services/tvmaze"
)

// DefaultFreshnessWindow is how long a full episode fetch stays fresh. Biased
// low so countdowns stay accurate at the cost of more catalog calls.
const DefaultFreshnessWindow = 2 * time.Hour

// DefaultMaxConcurrent bounds the per-run fan-out of catalog fetches.
const DefaultMaxConcurrent = 4

// Source is the catalog the refresher pulls metadata from.
type Source interface {
	ShowByID(ctx context.Context, id string) (*tvmaze.Show, error)
	Episodes(ctx context.Context, id string) ([]tvmaze.Episode, error)
}

// Repository is the slice of the show repository the refresher needs.
type Repository interface {
	GetShows(ctx context.Context, id models.Identity) []models.TrackedShow
	SaveShows(ctx context.Context, id models.Identity, list []models.TrackedShow) error
}

// Options tunes the refresher. Zero values select the defaults.
type Options struct {
	FreshnessWindow time.Duration
	MaxConcurrent   int
}

// Service scans show lists for records needing a metadata refresh (placeholder
// rebuilds, expired episode caches, passed air dates) and updates them
// concurrently, feeding the result back to the repository in one batch write.
type Service struct {
	source        Source
	repo          Repository
	window        time.Duration
	maxConcurrent int

	mu       sync.Mutex
	inFlight bool

	onChanged func()

	// Background loop state.
	loopMu  sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a refresher over the given catalog source and repository.
func NewService(source Source, repo Repository, opts Options) *Service {
	window := opts.FreshnessWindow
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Service{
		source:        source,
		repo:          repo,
		window:        window,
		maxConcurrent: maxConcurrent,
	}
}

// SetOnChanged registers a callback invoked after a run that changed at
// least one show, so dependent views can re-render.
func (s *Service) SetOnChanged(fn func()) {
	s.onChanged = fn
}

// RefreshStale refreshes every stale record in the list and batch-saves the
// result if anything changed. Guarded by a single in-flight flag: calls made
// while a run is active are dropped, not queued. Returns whether the run
// executed.
func (s *Service) RefreshStale(ctx context.Context, id models.Identity, list []models.TrackedShow) bool {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		log.Printf("[refresher] refresh already running, dropping request")
		return false
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	if len(list) == 0 {
		return true
	}

	now := time.Now()
	updated := make([]models.TrackedShow, len(list))
	changed := make([]bool, len(list))

	p := pool.New().WithMaxGoroutines(s.maxConcurrent)
	for i := range list {
		i := i
		p.Go(func() {
			updated[i], changed[i] = s.refreshShow(ctx, list[i], now)
		})
	}
	p.Wait()

	refreshed := make(map[string]models.TrackedShow, len(list))
	for i, c := range changed {
		if c {
			refreshed[updated[i].ID] = updated[i]
		}
	}
	if len(refreshed) == 0 {
		return true
	}

	// Merge into a fresh read rather than saving the pre-fan-out snapshot:
	// mutations the user made during the run (watched, removals, additions)
	// must not be overwritten by stale copies.
	current := s.repo.GetShows(ctx, id)
	merged := false
	for i := range current {
		if fresh, ok := refreshed[current[i].ID]; ok {
			applyRefreshed(&current[i], fresh)
			merged = true
		}
	}
	if !merged {
		return true
	}

	if err := s.repo.SaveShows(ctx, id, current); err != nil {
		log.Printf("[refresher] batch save failed: %v", err)
		return true
	}
	if s.onChanged != nil {
		s.onChanged()
	}
	return true
}

// applyRefreshed copies only the catalog-owned fields onto the current
// record, leaving user state (watched, priority, watch link, progress) as
// the repository has it now.
func applyRefreshed(dst *models.TrackedShow, fresh models.TrackedShow) {
	dst.Name = fresh.Name
	dst.Image = fresh.Image
	dst.Status = fresh.Status
	dst.Summary = fresh.Summary
	dst.Premiered = fresh.Premiered
	dst.Genres = fresh.Genres
	dst.NeedsRefresh = fresh.NeedsRefresh
	dst.NextEpisode = fresh.NextEpisode
	dst.AllEpisodesLastFetchedAt = fresh.AllEpisodesLastFetchedAt
}

// refreshShow applies the per-show decision table. Adapter failures are
// logged and leave the show unchanged; stale data shown beats a blocked UI.
func (s *Service) refreshShow(ctx context.Context, show models.TrackedShow, now time.Time) (models.TrackedShow, bool) {
	if !show.HasRefreshSource() {
		return show, false
	}
	if show.ContentType == models.ContentTypeMovies && !show.NeedsRefresh {
		return show, false
	}

	if show.NeedsRefresh {
		return s.rebuild(ctx, show, now)
	}

	episodePassed := show.NextEpisode != nil && show.NextEpisode.Airstamp.Before(now)
	if !episodePassed && !s.fetchStale(show.AllEpisodesLastFetchedAt, now) {
		return show, false
	}

	return s.refetchEpisodes(ctx, show, now)
}

// rebuild re-fetches everything for a placeholder reconstructed from a
// compact record.
func (s *Service) rebuild(ctx context.Context, show models.TrackedShow, now time.Time) (models.TrackedShow, bool) {
	detail, err := s.source.ShowByID(ctx, show.ID)
	if err != nil {
		log.Printf("[refresher] rebuild of %s failed: %v", show.ID, err)
		return show, false
	}
	if detail == nil {
		return show, false
	}

	show.Name = detail.Name
	show.Image = detail.ImageURL()
	show.Status = detail.Status
	show.Summary = detail.Summary
	show.Premiered = detail.Premiered
	show.Genres = append([]string{}, detail.Genres...)
	show.NeedsRefresh = false

	if show.ContentType != models.ContentTypeMovies {
		if refreshed, ok := s.refetchEpisodes(ctx, show, now); ok {
			return refreshed, true
		}
	}
	return show, true
}

func (s *Service) refetchEpisodes(ctx context.Context, show models.TrackedShow, now time.Time) (models.TrackedShow, bool) {
	episodes, err := s.source.Episodes(ctx, show.ID)
	if err != nil {
		log.Printf("[refresher] episode fetch for %s failed: %v", show.ID, err)
		return show, false
	}

	show.NextEpisode = NextEpisode(episodes, now)
	stamp := now.UTC()
	show.AllEpisodesLastFetchedAt = &stamp
	return show, true
}

// fetchStale reports whether the last full episode fetch is missing or older
// than the freshness window.
func (s *Service) fetchStale(lastFetched *time.Time, now time.Time) bool {
	return lastFetched == nil || now.Sub(*lastFetched) > s.window
}
