package scoring

import (
	"math"

	"github.com/mww/challenge_board/model"
)

// Rating disparity. The higher it is, the easier it is to gain (or lose) points.
const disparity = 400

type EloConfig struct {
	KLow    int // rating >= 1.5x the starting rating
	KMedium int // rating >= 1.3125x the starting rating
	KHigh   int
}

type elo struct {
	cfg EloConfig
}

func (e *elo) Calculate(startingRating int, m *model.Match, unresolved []*model.Match) *model.Match {
	winnerRating := UnverifiedRating(m.Winner, unresolved)
	loserRating := UnverifiedRating(m.Loser, unresolved)

	winnerDelta, loserDelta := e.deltas(float64(startingRating), float64(winnerRating), float64(loserRating), m.Tied)

	m.WinnerRatingDelta = winnerDelta
	m.LoserRatingDelta = loserDelta
	m.WinnerEstimatedRating = winnerRating + winnerDelta
	m.LoserEstimatedRating = loserRating + loserDelta

	return m
}

// deltas uses a K factor per side, so a tie between players in different
// tiers does not add up to zero.
func (e *elo) deltas(start, winnerRating, loserRating float64, tied bool) (int, int) {
	winnerK := float64(e.kFactor(start, winnerRating))
	loserK := float64(e.kFactor(start, loserRating))

	sW, sL := results(tied)
	eW := expected(winnerRating, loserRating)
	eL := expected(loserRating, winnerRating)

	return int(math.RoundToEven(winnerK * (sW - eW))), int(math.RoundToEven(loserK * (sL - eL)))
}

func (e *elo) kFactor(start, rating float64) int {
	if rating >= start*1.5 {
		return e.cfg.KLow
	}
	if rating >= start*1.3125 {
		return e.cfg.KMedium
	}
	return e.cfg.KHigh
}

func expected(rating, other float64) float64 {
	return 1 / (1 + math.Pow(10, (other-rating)/disparity))
}
