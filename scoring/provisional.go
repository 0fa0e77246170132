package scoring

import (
	"time"

	"github.com/mww/challenge_board/model"
)

// UnverifiedRating is the competitor's verified rating plus the rating deltas of
// all their unresolved matches. Resolved and invalid matches in the slice are
// ignored since their effect is either already in the rating or void.
func UnverifiedRating(c *model.Competitor, unresolved []*model.Match) int {
	rating := c.Rating
	for _, m := range unresolved {
		if !m.IsUnresolved() {
			continue
		}
		if m.Winner.ID == c.ID {
			rating += m.WinnerRatingDelta
		}
		if m.Loser.ID == c.ID {
			rating += m.LoserRatingDelta
		}
	}
	return rating
}

// UnverifiedDeviance is the same fold as UnverifiedRating for the deviance.
func UnverifiedDeviance(c *model.Competitor, unresolved []*model.Match) int {
	deviance := c.Deviance
	for _, m := range unresolved {
		if !m.IsUnresolved() {
			continue
		}
		if m.Winner.ID == c.ID {
			deviance += m.WinnerDevianceDelta
		}
		if m.Loser.ID == c.ID {
			deviance += m.LoserDevianceDelta
		}
	}
	return deviance
}

// InactivePeriods returns the number of whole rating periods between the
// competitor's latest activity and at. The latest activity is the newest
// unresolved match involving the competitor created no later than at, or the
// last resolved match when there is none.
//
// A competitor that has never played reports cfg.NoHistoryPeriods. The
// historical behaviour is 1 even though 0 is arguably correct, so it is left
// configurable until the product owner decides.
func InactivePeriods(c *model.Competitor, at time.Time, unresolved []*model.Match, cfg GlickoConfig) int {
	latest := c.LastPlayed
	for _, m := range unresolved {
		if !m.IsUnresolved() || m.DoesNotInvolve(c) || m.Created.After(at) {
			continue
		}
		if latest == nil || m.Created.After(*latest) {
			created := m.Created
			latest = &created
		}
	}

	if latest == nil {
		return cfg.NoHistoryPeriods
	}
	if cfg.RatingPeriod <= 0 || !at.After(*latest) {
		return 0
	}
	return int(at.Sub(*latest) / cfg.RatingPeriod)
}
