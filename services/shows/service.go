package shows

import (
	"context"
	"errors"
	"log"
	"sync"

	"nextup/internal/storage"
	"nextup/models"
	"nextup/services/identity"
)

var (
	ErrIDRequired       = errors.New("show id is required")
	ErrShowNotFound     = errors.New("show not found")
	ErrInvalidWatchLink = errors.New("watch link must be an http(s) URL")
	ErrNegativeProgress = errors.New("watched episode cannot be negative")
)

// legacySyncKey is the shared single-user compact list written by old
// installs before keys were derived per identity. Checked once, as a
// migration fallback, when both the remote and local tiers are empty.
const legacySyncKey = "shows_sync"

// RemoteStore is the authoritative per-user row store. Implemented by the
// sqlite repository when this instance is its own sync server, or by the
// syncapi client when pointed at another instance.
type RemoteStore interface {
	FetchRows(ctx context.Context, userKey string) ([]models.SyncSummary, error)
	UpsertRows(ctx context.Context, userKey string, rows []models.SyncSummary) error
	DeleteRow(ctx context.Context, userKey, showID string) error
}

// Service is the show repository. It owns the tracked-show list and merges
// three tiers into one consistent view: the full-fidelity local tier, the
// size-constrained synced mirror, and the remote authoritative store.
//
// Every operation resolves the identity to a storage key and serializes
// read-modify-write cycles through a per-key lock, so two rapid mutations
// against the same list cannot lose writes.
type Service struct {
	identity *identity.Service
	local    *storage.Store
	synced   *storage.SyncStore
	remote   RemoteStore

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewService creates the repository. remote may be nil, in which case lists
// never leave the device.
func NewService(identitySvc *identity.Service, local *storage.Store, synced *storage.SyncStore, remote RemoteStore) *Service {
	return &Service{
		identity: identitySvc,
		local:    local,
		synced:   synced,
		remote:   remote,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.keyLocks[key] = lock
	}
	return lock
}

// resolveIdentity substitutes the last known identity for a zero value.
func (s *Service) resolveIdentity(id models.Identity) models.Identity {
	if id == (models.Identity{}) {
		return s.identity.Current()
	}
	return id
}

// GetShows returns the user's reconciled show list. It never fails: remote
// errors degrade to the local tier, a missing local tier to an empty list.
func (s *Service) GetShows(ctx context.Context, id models.Identity) []models.TrackedShow {
	id = s.resolveIdentity(id)
	key := s.identity.ResolveKey(id)
	if key == "" {
		return nil
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return s.getLocked(ctx, id, key)
}

func (s *Service) getLocked(ctx context.Context, id models.Identity, key string) []models.TrackedShow {
	local := s.loadLocal(key)

	if !id.RemoteSynced() || s.remote == nil {
		return local
	}

	rows, err := s.remote.FetchRows(ctx, key)
	if err != nil {
		// Fail-soft: stale local data beats no data.
		log.Printf("[shows] remote fetch for %s failed: %v", key, err)
		return local
	}

	if len(rows) == 0 {
		if len(local) > 0 {
			// Remote has never seen this user: seed it one-way.
			if err := s.remote.UpsertRows(ctx, key, models.SummarizeAll(local)); err != nil {
				log.Printf("[shows] remote seed for %s failed: %v", key, err)
			}
			return local
		}
		return s.legacyFallbackLocked(ctx, id, key)
	}

	// Remote is the membership oracle: synthesize placeholders for rows the
	// local tier has never seen and persist the merged view everywhere.
	known := make(map[string]struct{}, len(local))
	for _, show := range local {
		known[show.ID] = struct{}{}
	}

	merged := local
	added := false
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		if _, ok := known[row.ID]; ok {
			continue
		}
		merged = append(merged, row.ToPlaceholder())
		known[row.ID] = struct{}{}
		added = true
	}

	if added {
		if err := s.saveLocked(ctx, id, key, merged); err != nil {
			log.Printf("[shows] persisting merged list for %s failed: %v", key, err)
		}
	}
	return merged
}

// legacyFallbackLocked imports the pre-identity compact list, once, when a
// signed-in user has nothing anywhere else.
func (s *Service) legacyFallbackLocked(ctx context.Context, id models.Identity, key string) []models.TrackedShow {
	if s.synced == nil {
		return nil
	}

	var summaries []models.SyncSummary
	found, err := s.synced.Get(legacySyncKey, &summaries)
	if err != nil {
		log.Printf("[shows] legacy sync read failed: %v", err)
		return nil
	}
	if !found || len(summaries) == 0 {
		return nil
	}

	shows := make([]models.TrackedShow, 0, len(summaries))
	for _, sum := range summaries {
		if sum.ID == "" {
			continue
		}
		shows = append(shows, sum.ToPlaceholder())
	}
	if len(shows) == 0 {
		return nil
	}

	log.Printf("[shows] migrating %d shows from legacy sync data into %s", len(shows), key)
	if err := s.saveLocked(ctx, id, key, shows); err != nil {
		log.Printf("[shows] persisting legacy migration for %s failed: %v", key, err)
	}
	if err := s.synced.Delete(legacySyncKey); err != nil {
		log.Printf("[shows] clearing legacy sync data failed: %v", err)
	}
	return shows
}

// SaveShows persists the full list. The local tier is the durability source
// of truth; the synced mirror and remote upserts are best-effort.
func (s *Service) SaveShows(ctx context.Context, id models.Identity, list []models.TrackedShow) error {
	id = s.resolveIdentity(id)
	key := s.identity.ResolveKey(id)
	if key == "" {
		return nil
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return s.saveLocked(ctx, id, key, list)
}

func (s *Service) saveLocked(ctx context.Context, id models.Identity, key string, list []models.TrackedShow) error {
	if list == nil {
		list = []models.TrackedShow{}
	}

	if err := s.local.Put(key, list); err != nil {
		return err
	}

	compact := models.SummarizeAll(list)

	if s.synced != nil {
		if err := s.synced.Put(key, compact); err != nil {
			if errors.Is(err, storage.ErrQuotaExceeded) {
				log.Printf("[shows] sync mirror for %s over quota, local stays authoritative", key)
			} else {
				log.Printf("[shows] sync mirror write for %s failed: %v", key, err)
			}
		}
	}

	if id.RemoteSynced() && s.remote != nil {
		if err := s.remote.UpsertRows(ctx, key, compact); err != nil {
			log.Printf("[shows] remote upsert for %s failed: %v", key, err)
		}
	}

	return nil
}

func (s *Service) loadLocal(key string) []models.TrackedShow {
	var list []models.TrackedShow
	if _, err := s.local.Get(key, &list); err != nil {
		log.Printf("[shows] local read for %s failed: %v", key, err)
		return nil
	}
	return list
}

// mutate runs a read-modify-write cycle under the key lock. fn returns the
// updated list and whether anything changed.
func (s *Service) mutate(ctx context.Context, id models.Identity, fn func([]models.TrackedShow) ([]models.TrackedShow, bool, error)) error {
	id = s.resolveIdentity(id)
	key := s.identity.ResolveKey(id)
	if key == "" {
		return nil
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	list := s.getLocked(ctx, id, key)
	updated, changed, err := fn(list)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.saveLocked(ctx, id, key, updated)
}
