package shows

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"nextup/models"
)

// Add appends a show to the list. Returns false when a show with the same id
// is already tracked.
func (s *Service) Add(ctx context.Context, id models.Identity, show models.TrackedShow) (bool, error) {
	show.ID = strings.TrimSpace(show.ID)
	if show.ID == "" {
		return false, ErrIDRequired
	}
	if show.ContentType == "" {
		show.ContentType = models.ContentTypeTV
	}
	if show.Genres == nil {
		show.Genres = []string{}
	}
	if show.Status == "" {
		show.Status = "Unknown"
	}
	if show.WatchedEpisode < 0 {
		show.WatchedEpisode = 0
	}

	added := false
	err := s.mutate(ctx, id, func(list []models.TrackedShow) ([]models.TrackedShow, bool, error) {
		for _, existing := range list {
			if existing.ID == show.ID {
				return list, false, nil
			}
		}
		added = true
		return append(list, show), true, nil
	})
	return added, err
}

// Remove drops a show from the list and, for synced accounts, from the
// remote store. Returns false when the id was not tracked.
func (s *Service) Remove(ctx context.Context, id models.Identity, showID string) (bool, error) {
	showID = strings.TrimSpace(showID)
	if showID == "" {
		return false, ErrIDRequired
	}

	removed := false
	err := s.mutate(ctx, id, func(list []models.TrackedShow) ([]models.TrackedShow, bool, error) {
		out := list[:0]
		for _, show := range list {
			if show.ID == showID {
				removed = true
				continue
			}
			out = append(out, show)
		}
		return out, removed, nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		resolved := s.resolveIdentity(id)
		if resolved.RemoteSynced() && s.remote != nil {
			key := s.identity.ResolveKey(resolved)
			if err := s.remote.DeleteRow(ctx, key, showID); err != nil {
				log.Printf("[shows] remote delete of %s for %s failed: %v", showID, key, err)
			}
		}
	}
	return removed, nil
}

// TogglePriority flips the pin flag and returns its new value.
func (s *Service) TogglePriority(ctx context.Context, id models.Identity, showID string) (bool, error) {
	var priority bool
	err := s.mutate(ctx, id, func(list []models.TrackedShow) ([]models.TrackedShow, bool, error) {
		for i := range list {
			if list[i].ID == showID {
				list[i].Priority = !list[i].Priority
				priority = list[i].Priority
				return list, true, nil
			}
		}
		return list, false, ErrShowNotFound
	})
	return priority, err
}

// SetWatchLink attaches a streaming URL to a show. An empty link clears it.
func (s *Service) SetWatchLink(ctx context.Context, id models.Identity, showID, link string) error {
	link = strings.TrimSpace(link)
	if link != "" {
		parsed, err := url.Parse(link)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return ErrInvalidWatchLink
		}
	}

	return s.mutate(ctx, id, func(list []models.TrackedShow) ([]models.TrackedShow, bool, error) {
		for i := range list {
			if list[i].ID == showID {
				list[i].WatchLink = link
				return list, true, nil
			}
		}
		return list, false, ErrShowNotFound
	})
}

// SetProgress records the last episode the user watched.
func (s *Service) SetProgress(ctx context.Context, id models.Identity, showID string, episode int) error {
	if episode < 0 {
		return ErrNegativeProgress
	}

	now := time.Now().UTC()
	return s.mutate(ctx, id, func(list []models.TrackedShow) ([]models.TrackedShow, bool, error) {
		for i := range list {
			if list[i].ID == showID {
				list[i].WatchedEpisode = episode
				list[i].LastWatchedAt = &now
				return list, true, nil
			}
		}
		return list, false, ErrShowNotFound
	})
}

// SetWatched marks a show watched or unwatched.
func (s *Service) SetWatched(ctx context.Context, id models.Identity, showID string, watched bool) error {
	now := time.Now().UTC()
	return s.mutate(ctx, id, func(list []models.TrackedShow) ([]models.TrackedShow, bool, error) {
		for i := range list {
			if list[i].ID == showID {
				list[i].Watched = watched
				if watched {
					list[i].WatchedAt = &now
					list[i].LastWatchedAt = &now
				} else {
					list[i].WatchedAt = nil
				}
				return list, true, nil
			}
		}
		return list, false, ErrShowNotFound
	})
}
