package refresher

import (
	"time"

	"nextup/models"
	"nextup/services/tvmaze"
)

// NextEpisode selects the episode with the earliest airstamp strictly after
// now. Episodes with missing or unparsable airstamps are ignored. Returns
// nil when no episode qualifies. Single linear scan; idempotent for the same
// input and now.
func NextEpisode(episodes []tvmaze.Episode, now time.Time) *models.NextEpisode {
	var best *models.NextEpisode
	var bestAt time.Time
	for _, ep := range episodes {
		at, ok := ep.AirTime()
		if !ok {
			continue
		}
		if !at.After(now) {
			continue
		}
		if best == nil || at.Before(bestAt) {
			best = &models.NextEpisode{Season: ep.Season, Number: ep.Number, Airstamp: at}
			bestAt = at
		}
	}
	return best
}
