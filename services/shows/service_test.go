package shows_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"nextup/internal/storage"
	"nextup/models"
	"nextup/services/identity"
	"nextup/services/shows"
)

// fakeRemote is an in-memory RemoteStore with fault injection.
type fakeRemote struct {
	mu       sync.Mutex
	rows     map[string]map[string]models.SyncSummary
	fetchErr error
	upserts  int
	deletes  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: make(map[string]map[string]models.SyncSummary)}
}

func (f *fakeRemote) FetchRows(_ context.Context, userKey string) ([]models.SyncSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []models.SyncSummary
	for _, row := range f.rows[userKey] {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeRemote) UpsertRows(_ context.Context, userKey string, summaries []models.SyncSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	perUser := f.rows[userKey]
	if perUser == nil {
		perUser = make(map[string]models.SyncSummary)
		f.rows[userKey] = perUser
	}
	for _, s := range summaries {
		perUser[s.ID] = s
	}
	return nil
}

func (f *fakeRemote) DeleteRow(_ context.Context, userKey, showID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.rows[userKey], showID)
	return nil
}

type fixture struct {
	svc    *shows.Service
	ids    *identity.Service
	local  *storage.Store
	synced *storage.SyncStore
	remote *fakeRemote
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	local, err := storage.NewStore(fs, "local")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	synced, err := storage.NewSyncStore(fs, "synced", 0)
	if err != nil {
		t.Fatalf("sync store: %v", err)
	}
	idStore, err := storage.NewStore(fs, "identity")
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}
	ids, err := identity.NewService(idStore)
	if err != nil {
		t.Fatalf("identity service: %v", err)
	}
	remote := newFakeRemote()
	return &fixture{
		svc:    shows.NewService(ids, local, synced, remote),
		ids:    ids,
		local:  local,
		synced: synced,
		remote: remote,
	}
}

func guest(userID string) models.Identity {
	return models.Identity{Source: models.SourceGuest, UserID: userID}
}

func account(email string) models.Identity {
	return models.Identity{Source: models.SourcePassword, Email: email}
}

func show(id, name string) models.TrackedShow {
	return models.TrackedShow{ID: id, Name: name, Genres: []string{}, Status: "Running", ContentType: models.ContentTypeTV}
}

func idsOf(list []models.TrackedShow) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestSaveThenGetRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := guest("device-1")

	in := []models.TrackedShow{show("82", "Game of Thrones"), show("431", "Friends")}
	if err := f.svc.SaveShows(ctx, id, in); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	out := f.svc.GetShows(ctx, id)
	if len(out) != 2 {
		t.Fatalf("expected 2 shows, got %d", len(out))
	}
	got := map[string]bool{}
	for _, s := range out {
		got[s.ID] = true
	}
	if !got["82"] || !got["431"] {
		t.Fatalf("round trip lost shows: %v", idsOf(out))
	}

	// Guests never touch the remote tier.
	if f.remote.upserts != 0 {
		t.Fatalf("guest save must not reach remote, saw %d upserts", f.remote.upserts)
	}
}

func TestGetShowsEmptyStateIsNotAnError(t *testing.T) {
	f := newFixture(t)
	out := f.svc.GetShows(context.Background(), guest("fresh-device"))
	if len(out) != 0 {
		t.Fatalf("expected empty list, got %v", idsOf(out))
	}
}

func TestRemoteRebuildSynthesizesPlaceholders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := account("jane@example.com")
	key := id.StorageKey()

	// Local knows X; remote additionally knows Y.
	if err := f.local.Put(key, []models.TrackedShow{show("X", "Known Show")}); err != nil {
		t.Fatalf("seed local: %v", err)
	}
	f.remote.rows[key] = map[string]models.SyncSummary{
		"X": {ID: "X", Name: "Known Show", TypeCode: "t"},
		"Y": {ID: "Y", Name: "Other Show", TypeCode: "a", Priority: true},
	}

	out := f.svc.GetShows(ctx, id)
	if len(out) != 2 {
		t.Fatalf("expected merged list of 2, got %v", idsOf(out))
	}

	var y *models.TrackedShow
	for i := range out {
		if out[i].ID == "Y" {
			y = &out[i]
		}
	}
	if y == nil {
		t.Fatal("expected placeholder for remote-only show Y")
	}
	if !y.NeedsRefresh {
		t.Error("placeholder must be flagged needsRefresh")
	}
	if y.Status != "Unknown" || len(y.Genres) != 0 || y.Image != "" {
		t.Errorf("placeholder must carry no metadata, got %+v", y)
	}
	if y.ContentType != models.ContentTypeAnime {
		t.Errorf("type code must round-trip, got %q", y.ContentType)
	}
	if !y.Priority {
		t.Error("priority flag must round-trip")
	}

	// The merged list must be persisted locally.
	var persisted []models.TrackedShow
	if _, err := f.local.Get(key, &persisted); err != nil {
		t.Fatalf("read local: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected merged list persisted locally, got %v", idsOf(persisted))
	}
}

func TestRemoteErrorFallsBackToLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := account("jane@example.com")
	key := id.StorageKey()

	if err := f.local.Put(key, []models.TrackedShow{show("82", "Game of Thrones")}); err != nil {
		t.Fatalf("seed local: %v", err)
	}
	f.remote.fetchErr = errors.New("connection refused")

	out := f.svc.GetShows(ctx, id)
	if len(out) != 1 || out[0].ID != "82" {
		t.Fatalf("expected local tier unchanged on remote error, got %v", idsOf(out))
	}
}

func TestEmptyRemoteSeededFromLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := account("jane@example.com")
	key := id.StorageKey()

	if err := f.local.Put(key, []models.TrackedShow{show("82", "Game of Thrones")}); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	out := f.svc.GetShows(ctx, id)
	if len(out) != 1 {
		t.Fatalf("expected local list returned, got %v", idsOf(out))
	}
	if _, ok := f.remote.rows[key]["82"]; !ok {
		t.Fatal("expected local list seeded into empty remote")
	}
}

func TestLegacySyncFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := account("jane@example.com")
	key := id.StorageKey()

	// Nothing local, nothing remote, but an old shared compact list exists.
	if err := f.synced.Put("shows_sync", []models.SyncSummary{
		{ID: "7", Name: "Old Favorite", TypeCode: "t"},
	}); err != nil {
		t.Fatalf("seed legacy sync: %v", err)
	}

	out := f.svc.GetShows(ctx, id)
	if len(out) != 1 || out[0].ID != "7" {
		t.Fatalf("expected legacy list migrated, got %v", idsOf(out))
	}
	if !out[0].NeedsRefresh {
		t.Error("legacy placeholders must be flagged needsRefresh")
	}

	var persisted []models.TrackedShow
	if _, err := f.local.Get(key, &persisted); err != nil {
		t.Fatalf("read local: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatal("expected legacy migration persisted locally")
	}

	// One-time: the legacy blob is consumed.
	var leftover []models.SyncSummary
	found, err := f.synced.Get("shows_sync", &leftover)
	if err != nil {
		t.Fatalf("read legacy sync: %v", err)
	}
	if found {
		t.Fatal("legacy sync data should be cleared after migration")
	}
}

func TestSaveShowsMirrorsCompactToRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := account("jane@example.com")
	key := id.StorageKey()

	long := show("82", "A Show With A Very Long Name Indeed")
	long.Summary = "full payload that must never reach the remote tier"
	if err := f.svc.SaveShows(ctx, id, []models.TrackedShow{long}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	row, ok := f.remote.rows[key]["82"]
	if !ok {
		t.Fatal("expected remote row for synced account")
	}
	if len([]rune(row.Name)) > models.SummaryNameLimit {
		t.Fatalf("remote row name not truncated: %q", row.Name)
	}
}

func TestMergeOnSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prev := guest("device-1")
	next := account("jane@example.com")

	if err := f.svc.SaveShows(ctx, prev, []models.TrackedShow{show("A", "Alpha"), show("B", "Beta")}); err != nil {
		t.Fatalf("save guest list: %v", err)
	}
	if err := f.svc.SaveShows(ctx, next, []models.TrackedShow{show("B", "Beta"), show("C", "Gamma")}); err != nil {
		t.Fatalf("save account list: %v", err)
	}

	carried, err := f.svc.MergeOnSignIn(ctx, prev, next)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if carried != 1 {
		t.Fatalf("expected 1 show carried over, got %d", carried)
	}

	got := idsOf(f.svc.GetShows(ctx, next))
	want := []string{"B", "C", "A"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order existing+new %v, got %v", want, got)
		}
	}

	// The guest's own list is untouched.
	if prevList := f.svc.GetShows(ctx, prev); len(prevList) != 2 {
		t.Fatalf("merge must not delete from the previous identity, got %v", idsOf(prevList))
	}
}

func TestMergeOnSignInSameKeyIsNoop(t *testing.T) {
	f := newFixture(t)
	id := account("jane@example.com")
	carried, err := f.svc.MergeOnSignIn(context.Background(), id, id)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if carried != 0 {
		t.Fatalf("expected no-op for identical keys, got %d", carried)
	}
}

func TestMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := guest("device-1")

	added, err := f.svc.Add(ctx, id, show("82", "Game of Thrones"))
	if err != nil || !added {
		t.Fatalf("add failed: added=%v err=%v", added, err)
	}
	added, err = f.svc.Add(ctx, id, show("82", "Game of Thrones"))
	if err != nil {
		t.Fatalf("duplicate add errored: %v", err)
	}
	if added {
		t.Fatal("duplicate add must report false")
	}

	priority, err := f.svc.TogglePriority(ctx, id, "82")
	if err != nil || !priority {
		t.Fatalf("toggle failed: priority=%v err=%v", priority, err)
	}
	if _, err := f.svc.TogglePriority(ctx, id, "missing"); !errors.Is(err, shows.ErrShowNotFound) {
		t.Fatalf("expected ErrShowNotFound, got %v", err)
	}

	if err := f.svc.SetWatchLink(ctx, id, "82", "https://example.com/watch"); err != nil {
		t.Fatalf("set watch link failed: %v", err)
	}
	if err := f.svc.SetWatchLink(ctx, id, "82", "javascript:alert(1)"); !errors.Is(err, shows.ErrInvalidWatchLink) {
		t.Fatalf("expected ErrInvalidWatchLink, got %v", err)
	}

	if err := f.svc.SetProgress(ctx, id, "82", -1); !errors.Is(err, shows.ErrNegativeProgress) {
		t.Fatalf("expected ErrNegativeProgress, got %v", err)
	}
	if err := f.svc.SetProgress(ctx, id, "82", 5); err != nil {
		t.Fatalf("set progress failed: %v", err)
	}
	if err := f.svc.SetWatched(ctx, id, "82", true); err != nil {
		t.Fatalf("set watched failed: %v", err)
	}

	list := f.svc.GetShows(ctx, id)
	if len(list) != 1 {
		t.Fatalf("expected 1 show, got %d", len(list))
	}
	s := list[0]
	if !s.Priority || s.WatchLink != "https://example.com/watch" || s.WatchedEpisode != 5 || !s.Watched {
		t.Fatalf("mutations not persisted: %+v", s)
	}
	if s.WatchedAt == nil || s.LastWatchedAt == nil {
		t.Fatal("expected watch timestamps to be set")
	}

	removed, err := f.svc.Remove(ctx, id, "82")
	if err != nil || !removed {
		t.Fatalf("remove failed: removed=%v err=%v", removed, err)
	}
	removed, err = f.svc.Remove(ctx, id, "82")
	if err != nil {
		t.Fatalf("second remove errored: %v", err)
	}
	if removed {
		t.Fatal("second remove must report false")
	}
}

func TestRemoveDeletesRemoteRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := account("jane@example.com")

	if err := f.svc.SaveShows(ctx, id, []models.TrackedShow{show("82", "Game of Thrones")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	removed, err := f.svc.Remove(ctx, id, "82")
	if err != nil || !removed {
		t.Fatalf("remove failed: removed=%v err=%v", removed, err)
	}
	if f.remote.deletes != 1 {
		t.Fatalf("expected 1 remote delete, got %d", f.remote.deletes)
	}
	if _, ok := f.remote.rows[id.StorageKey()]["82"]; ok {
		t.Fatal("remote row should be gone")
	}
}
