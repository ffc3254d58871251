package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Content type codes used both in full records and in the compact sync tuple.
const (
	ContentTypeTV     = "tv"
	ContentTypeAnime  = "anime"
	ContentTypeMovies = "movies"
)

// SummaryNameLimit caps the name carried in a compact sync record. The synced
// tier has a hard quota measured in kilobytes, so names are truncated on write.
const SummaryNameLimit = 20

// NextEpisode describes the next known upcoming episode of a show.
type NextEpisode struct {
	Season   int       `json:"season"`
	Number   int       `json:"number"`
	Airstamp time.Time `json:"airstamp"`
}

// TrackedShow is a single watchlist entry as stored in the local tier.
type TrackedShow struct {
	ID                       string            `json:"id"`
	Name                     string            `json:"name"`
	Image                    string            `json:"image,omitempty"`
	Genres                   []string          `json:"genres"`
	Status                   string            `json:"status"`
	Summary                  string            `json:"summary,omitempty"`
	ContentType              string            `json:"contentType"` // tv | anime | movies
	Premiered                string            `json:"premiered,omitempty"`
	NextEpisode              *NextEpisode      `json:"nextEpisode,omitempty"`
	AllEpisodesLastFetchedAt *time.Time        `json:"allEpisodesLastFetchedAt,omitempty"`
	Watched                  bool              `json:"watched"`
	WatchedAt                *time.Time        `json:"watchedAt,omitempty"`
	WatchedEpisode           int               `json:"watchedEpisode"`
	Priority                 bool              `json:"priority"`
	WatchLink                string            `json:"watchLink,omitempty"`
	LastWatchedAt            *time.Time        `json:"lastWatchedAt,omitempty"`
	NeedsRefresh             bool              `json:"needsRefresh,omitempty"`
	ExternalIDs              map[string]string `json:"externalIds,omitempty"` // malId | imdbId | tvmazeId
}

// HasRefreshSource reports whether the show can be refreshed against a catalog.
// Cross-referenced items (wd-*) and deprecated anime-source items (jikan-*)
// have no refresh endpoint.
func (s TrackedShow) HasRefreshSource() bool {
	return !strings.HasPrefix(s.ID, "wd-") && !strings.HasPrefix(s.ID, "jikan-")
}

// TypeCode returns the single-letter content type used in compact records.
func (s TrackedShow) TypeCode() string {
	switch s.ContentType {
	case ContentTypeAnime:
		return "a"
	case ContentTypeMovies:
		return "m"
	default:
		return "t"
	}
}

// SyncSummary is the lossy, size-reduced representation of a show used in the
// capacity-constrained sync tier and in the remote row store. It intentionally
// drops image, genres, summary and episode data.
type SyncSummary struct {
	ID       string
	Name     string
	TypeCode string // t | a | m
	Watched  bool
	Priority bool
}

// Summarize converts a full show into its compact form, truncating the name.
func Summarize(s TrackedShow) SyncSummary {
	name := s.Name
	if runes := []rune(name); len(runes) > SummaryNameLimit {
		name = string(runes[:SummaryNameLimit])
	}
	return SyncSummary{
		ID:       s.ID,
		Name:     name,
		TypeCode: s.TypeCode(),
		Watched:  s.Watched,
		Priority: s.Priority,
	}
}

// SummarizeAll converts a full list into its compact form.
func SummarizeAll(shows []TrackedShow) []SyncSummary {
	out := make([]SyncSummary, 0, len(shows))
	for _, s := range shows {
		out = append(out, Summarize(s))
	}
	return out
}

// ToPlaceholder expands a compact record into a placeholder show pending a
// full metadata refresh.
func (c SyncSummary) ToPlaceholder() TrackedShow {
	return TrackedShow{
		ID:           c.ID,
		Name:         c.Name,
		Genres:       []string{},
		Status:       "Unknown",
		ContentType:  contentTypeFromCode(c.TypeCode),
		Watched:      c.Watched,
		Priority:     c.Priority,
		NeedsRefresh: true,
	}
}

func contentTypeFromCode(code string) string {
	switch code {
	case "a":
		return ContentTypeAnime
	case "m":
		return ContentTypeMovies
	default:
		return ContentTypeTV
	}
}

// MarshalJSON writes the canonical on-disk tuple form:
// [id, name, typeCode, watched, priority].
func (c SyncSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.ID, c.Name, c.TypeCode, c.Watched, c.Priority})
}

// legacySummary is the pre-tuple object shape. Accepted on read only, as a
// one-time import format; never written.
type legacySummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Watched  bool   `json:"watched"`
	Priority bool   `json:"priority"`
}

// UnmarshalJSON accepts the canonical tuple form or the legacy object form.
func (c *SyncSummary) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		if len(parts) < 3 {
			return fmt.Errorf("compact record needs at least 3 fields, got %d", len(parts))
		}
		if err := json.Unmarshal(parts[0], &c.ID); err != nil {
			// Very old records carried numeric ids.
			var n json.Number
			if err2 := json.Unmarshal(parts[0], &n); err2 != nil {
				return err
			}
			c.ID = n.String()
		}
		if err := json.Unmarshal(parts[1], &c.Name); err != nil {
			return err
		}
		if err := json.Unmarshal(parts[2], &c.TypeCode); err != nil {
			return err
		}
		if len(parts) > 3 {
			_ = json.Unmarshal(parts[3], &c.Watched)
		}
		if len(parts) > 4 {
			_ = json.Unmarshal(parts[4], &c.Priority)
		}
		return nil
	}

	var legacy legacySummary
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}
	if legacy.ID == "" {
		return fmt.Errorf("compact record missing id")
	}
	c.ID = legacy.ID
	c.Name = legacy.Name
	c.TypeCode = legacy.Type
	if c.TypeCode == "" {
		c.TypeCode = "t"
	}
	c.Watched = legacy.Watched
	c.Priority = legacy.Priority
	return nil
}

// ExportEntry is a TrackedShow plus the flat external-id passthrough fields
// the interchange format carries on every entry.
type ExportEntry struct {
	TrackedShow
	MalID    string `json:"malId,omitempty"`
	IMDBID   string `json:"imdbId,omitempty"`
	TVMazeID string `json:"tvmazeId,omitempty"`
}

// NewExportEntry lifts the known external ids out of the map into the flat
// interchange fields.
func NewExportEntry(s TrackedShow) ExportEntry {
	return ExportEntry{
		TrackedShow: s,
		MalID:       s.ExternalIDs["malId"],
		IMDBID:      s.ExternalIDs["imdbId"],
		TVMazeID:    s.ExternalIDs["tvmazeId"],
	}
}

// ExportFile is the interchange format produced by export and accepted by
// import. Import additionally accepts a bare show array (legacy exports).
type ExportFile struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exportedAt"`
	ExportedBy string        `json:"exportedBy"`
	ShowCount  int           `json:"showCount"`
	Shows      []ExportEntry `json:"shows"`
}

// ExportVersion is the current export file schema version.
const ExportVersion = 2
