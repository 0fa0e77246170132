// Package scoring turns the provisional standing of two competitors into the
// rating changes stored on a match. Every calculation is a pure function of the
// board's starting rating, the match and the snapshot of unresolved matches it
// is priced against.
package scoring

import (
	"fmt"
	"time"

	"github.com/mww/challenge_board/model"
)

// System calculates the rating (and deviance) deltas for a match. The deltas
// and estimates on m are overwritten and m is returned. unresolved must not
// contain m itself.
type System interface {
	Calculate(startingRating int, m *model.Match, unresolved []*model.Match) *model.Match
}

type Config struct {
	Elo    EloConfig
	Glicko GlickoConfig
}

func DefaultConfig() Config {
	return Config{
		Elo: EloConfig{
			KLow:    10,
			KMedium: 20,
			KHigh:   30,
		},
		Glicko: GlickoConfig{
			RatingPeriod:     7 * 24 * time.Hour,
			DevianceDecay:    35,
			MaxDeviance:      350,
			NoHistoryPeriods: 1,
		},
	}
}

// New returns the scoring system configured for a board.
func New(kind model.ScoringSystem, cfg Config) (System, error) {
	switch kind {
	case model.ScoringElo:
		return &elo{cfg: cfg.Elo}, nil
	case model.ScoringGlicko:
		return &glicko{cfg: cfg.Glicko}, nil
	default:
		return nil, fmt.Errorf("%s is not a supported scoring system", kind)
	}
}

// results returns the actual score for the winner and loser sides.
func results(tied bool) (float64, float64) {
	if tied {
		return 0.5, 0.5
	}
	return 1, 0
}
