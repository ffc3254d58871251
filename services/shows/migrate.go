package shows

import (
	"context"
	"log"

	"nextup/models"
)

// MergeOnSignIn folds a previous anonymous identity's list into the newly
// signed-in account's list. One-directional and duplicate-free: existing
// entries of the new account always win, the previous identity's data is
// never deleted. Returns the number of shows carried over.
func (s *Service) MergeOnSignIn(ctx context.Context, prev, next models.Identity) (int, error) {
	prevKey := s.identity.ResolveKey(prev)
	nextKey := s.identity.ResolveKey(next)
	if prevKey == "" || prevKey == nextKey {
		return 0, nil
	}

	// Read the old list outside the new key's lock; the old identity is
	// defunct after sign-in, so nothing races on it.
	prevList := s.loadLocal(prevKey)
	if len(prevList) == 0 {
		return 0, nil
	}

	carried := 0
	err := s.mutate(ctx, next, func(list []models.TrackedShow) ([]models.TrackedShow, bool, error) {
		known := make(map[string]struct{}, len(list))
		for _, show := range list {
			known[show.ID] = struct{}{}
		}
		for _, show := range prevList {
			if _, ok := known[show.ID]; ok {
				continue
			}
			list = append(list, show)
			known[show.ID] = struct{}{}
			carried++
		}
		return list, carried > 0, nil
	})
	if err != nil {
		return 0, err
	}

	if carried > 0 {
		log.Printf("[shows] carried %d shows from %s into %s on sign-in", carried, prevKey, nextKey)
	}
	return carried, nil
}
