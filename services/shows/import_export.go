package shows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"nextup/models"
)

// ErrInvalidImport is returned for files that are not a nextup export (or a
// legacy bare show array). No partial import is ever applied.
var ErrInvalidImport = errors.New("not a valid show export file")

// importShow shadows the id field so numeric ids from old exports can be
// coerced to strings.
type importShow struct {
	models.ExportEntry
	RawID json.RawMessage `json:"id"`
}

// Export produces the interchange file for the user's full list.
func (s *Service) Export(ctx context.Context, id models.Identity) models.ExportFile {
	id = s.resolveIdentity(id)
	list := s.GetShows(ctx, id)

	entries := make([]models.ExportEntry, 0, len(list))
	for _, show := range list {
		entries = append(entries, models.NewExportEntry(show))
	}

	exportedBy := id.Name
	if exportedBy == "" {
		exportedBy = id.Email
	}
	if exportedBy == "" {
		exportedBy = "nextup"
	}

	return models.ExportFile{
		Version:    models.ExportVersion,
		ExportedAt: time.Now().UTC(),
		ExportedBy: exportedBy,
		ShowCount:  len(entries),
		Shows:      entries,
	}
}

// Import loads shows from an export file (or a legacy bare array). With
// merge, entries are appended to the existing list, skipping ids already
// tracked; without, the file replaces the list. Returns the resulting list
// size.
func (s *Service) Import(ctx context.Context, id models.Identity, data []byte, merge bool) (int, error) {
	if len(data) == 0 || !mimetype.Detect(data).Is("application/json") {
		return 0, ErrInvalidImport
	}

	incoming, err := parseImport(data)
	if err != nil {
		return 0, err
	}

	total := 0
	err = s.mutate(ctx, id, func(list []models.TrackedShow) ([]models.TrackedShow, bool, error) {
		if !merge {
			total = len(incoming)
			return incoming, true, nil
		}

		known := make(map[string]struct{}, len(list))
		for _, show := range list {
			known[show.ID] = struct{}{}
		}
		for _, show := range incoming {
			if _, ok := known[show.ID]; ok {
				continue
			}
			list = append(list, show)
			known[show.ID] = struct{}{}
		}
		total = len(list)
		return list, true, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func parseImport(data []byte) ([]models.TrackedShow, error) {
	var entries []importShow

	// Envelope first, bare array as the legacy shape.
	var envelope struct {
		Shows []importShow `json:"shows"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Shows != nil {
		entries = envelope.Shows
	} else if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	shows := make([]models.TrackedShow, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		showID, err := coerceID(entry.RawID)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidImport, i, err)
		}
		if _, dup := seen[showID]; dup {
			continue
		}
		seen[showID] = struct{}{}

		show := entry.TrackedShow
		show.ID = showID
		applyImportDefaults(&show, entry)
		shows = append(shows, show)
	}
	return shows, nil
}

func coerceID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("missing id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", errors.New("empty id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", errors.New("id is neither string nor number")
}

func applyImportDefaults(show *models.TrackedShow, entry importShow) {
	if show.Genres == nil {
		show.Genres = []string{}
	}
	if show.Status == "" {
		show.Status = "Unknown"
	}
	switch show.ContentType {
	case models.ContentTypeTV, models.ContentTypeAnime, models.ContentTypeMovies:
	default:
		show.ContentType = models.ContentTypeTV
	}
	if show.WatchedEpisode < 0 {
		show.WatchedEpisode = 0
	}

	// Flat passthrough ids fold into the map form.
	ids := show.ExternalIDs
	addExternal := func(key, value string) {
		if value == "" {
			return
		}
		if ids == nil {
			ids = make(map[string]string, 3)
		}
		if _, ok := ids[key]; !ok {
			ids[key] = value
		}
	}
	addExternal("malId", entry.MalID)
	addExternal("imdbId", entry.IMDBID)
	addExternal("tvmazeId", entry.TVMazeID)
	show.ExternalIDs = ids

	// Entries arriving without a fresh episode cache go through a full
	// refresh on the next pass.
	if show.HasRefreshSource() && show.ContentType != models.ContentTypeMovies && show.AllEpisodesLastFetchedAt == nil {
		show.NeedsRefresh = true
	}
}
