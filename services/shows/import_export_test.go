package shows_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"nextup/models"
	"nextup/services/shows"
)

func TestExportEnvelope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := models.Identity{Source: models.SourceGuest, UserID: "device-1", Name: "Jane"}

	if err := f.svc.SaveShows(ctx, id, []models.TrackedShow{show("82", "Game of Thrones")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	file := f.svc.Export(ctx, id)
	if file.Version != models.ExportVersion {
		t.Fatalf("unexpected version %d", file.Version)
	}
	if file.ShowCount != 1 || len(file.Shows) != 1 {
		t.Fatalf("expected 1 show, got count=%d len=%d", file.ShowCount, len(file.Shows))
	}
	if file.ExportedBy != "Jane" {
		t.Fatalf("expected exporter name, got %q", file.ExportedBy)
	}
	if file.ExportedAt.IsZero() {
		t.Fatal("expected export timestamp")
	}
}

func TestExportCarriesFlatExternalIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := guest("device-1")

	tracked := show("82", "Game of Thrones")
	tracked.ExternalIDs = map[string]string{
		"imdbId":   "tt0944947",
		"malId":    "123",
		"tvmazeId": "82",
	}
	if err := f.svc.SaveShows(ctx, id, []models.TrackedShow{tracked}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := json.Marshal(f.svc.Export(ctx, id))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw struct {
		Shows []map[string]any `json:"shows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(raw.Shows) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(raw.Shows))
	}
	entry := raw.Shows[0]
	for key, want := range map[string]string{"imdbId": "tt0944947", "malId": "123", "tvmazeId": "82"} {
		if got, _ := entry[key].(string); got != want {
			t.Errorf("flat %s = %q, want %q", key, got, want)
		}
	}

	// The same file imports back with the ids intact.
	total, err := f.svc.Import(ctx, guest("device-2"), data, false)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 show, got %d", total)
	}
	got := f.svc.GetShows(ctx, guest("device-2"))[0]
	if got.ExternalIDs["imdbId"] != "tt0944947" || got.ExternalIDs["malId"] != "123" {
		t.Fatalf("external ids lost on round trip: %+v", got.ExternalIDs)
	}
}

func TestImportMergeAndReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := guest("device-1")

	if err := f.svc.SaveShows(ctx, id, []models.TrackedShow{show("A", "Alpha"), show("B", "Beta")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	file, err := json.Marshal(models.ExportFile{
		Version:   models.ExportVersion,
		ShowCount: 2,
		Shows: []models.ExportEntry{
			models.NewExportEntry(show("B", "Beta")),
			models.NewExportEntry(show("C", "Gamma")),
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	total, err := f.svc.Import(ctx, id, file, true)
	if err != nil {
		t.Fatalf("merge import failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 shows after merge, got %d", total)
	}
	got := idsOf(f.svc.GetShows(ctx, id))
	want := []string{"A", "B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	total, err = f.svc.Import(ctx, id, file, false)
	if err != nil {
		t.Fatalf("replace import failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 shows after replace, got %d", total)
	}
	got = idsOf(f.svc.GetShows(ctx, id))
	want = []string{"B", "C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestImportLegacyBareArrayAndNumericIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := guest("device-1")

	raw := []byte(`[
		{"id": 82, "name": "Game of Thrones", "imdbId": "tt0944947"},
		{"id": "wd-Q1079", "name": "Breaking Bad", "contentType": "tv"}
	]`)

	total, err := f.svc.Import(ctx, id, raw, false)
	if err != nil {
		t.Fatalf("legacy import failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 shows, got %d", total)
	}

	list := f.svc.GetShows(ctx, id)
	byID := map[string]models.TrackedShow{}
	for _, s := range list {
		byID[s.ID] = s
	}

	got, ok := byID["82"]
	if !ok {
		t.Fatalf("expected numeric id coerced to string, got %v", idsOf(list))
	}
	if got.ExternalIDs["imdbId"] != "tt0944947" {
		t.Fatalf("expected flat imdbId folded into external ids, got %+v", got.ExternalIDs)
	}
	if !got.NeedsRefresh {
		t.Error("entry without episode cache must be flagged needsRefresh")
	}
	if got.Genres == nil || got.Status == "" || got.ContentType == "" {
		t.Errorf("defaults not filled: %+v", got)
	}

	// Cross-referenced items have no refresh source and stay unflagged.
	if byID["wd-Q1079"].NeedsRefresh {
		t.Error("wd- items must not be flagged for refresh")
	}
}

func TestImportRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := guest("device-1")

	if err := f.svc.SaveShows(ctx, id, []models.TrackedShow{show("A", "Alpha")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	cases := [][]byte{
		nil,
		[]byte("not json at all"),
		[]byte(`{"shows": [{"name": "missing id"}]}`),
		[]byte(`[{"id": null, "name": "null id"}]`),
	}
	for i, data := range cases {
		if _, err := f.svc.Import(ctx, id, data, false); !errors.Is(err, shows.ErrInvalidImport) {
			t.Errorf("case %d: expected ErrInvalidImport, got %v", i, err)
		}
	}

	// Rejected imports apply no partial mutation.
	if got := idsOf(f.svc.GetShows(ctx, id)); len(got) != 1 || got[0] != "A" {
		t.Fatalf("rejected import mutated the list: %v", got)
	}
}
