package scoring

import (
	"math"
	"time"

	"github.com/mww/challenge_board/model"
)

const (
	q   = math.Ln10 / disparity
	pi2 = math.Pi * math.Pi
)

type GlickoConfig struct {
	RatingPeriod  time.Duration
	DevianceDecay float64 // c, how fast the deviance grows back while inactive
	MaxDeviance   int

	// Number of rating periods reported for a competitor without any match
	// history. See InactivePeriods.
	NoHistoryPeriods int
}

type glicko struct {
	cfg GlickoConfig
}

func (gl *glicko) Calculate(startingRating int, m *model.Match, unresolved []*model.Match) *model.Match {
	winnerRating := UnverifiedRating(m.Winner, unresolved)
	loserRating := UnverifiedRating(m.Loser, unresolved)
	winnerDeviance := UnverifiedDeviance(m.Winner, unresolved)
	loserDeviance := UnverifiedDeviance(m.Loser, unresolved)

	wDev := gl.decay(winnerDeviance, InactivePeriods(m.Winner, m.Created, unresolved, gl.cfg))
	lDev := gl.decay(loserDeviance, InactivePeriods(m.Loser, m.Created, unresolved, gl.cfg))

	sW, sL := results(m.Tied)
	wDelta, wNewDev := gl.update(float64(winnerRating), wDev, float64(loserRating), lDev, sW)
	lDelta, lNewDev := gl.update(float64(loserRating), lDev, float64(winnerRating), wDev, sL)

	m.WinnerRatingDelta = int(math.RoundToEven(wDelta))
	m.LoserRatingDelta = int(math.RoundToEven(lDelta))
	m.WinnerDevianceDelta = int(math.RoundToEven(wNewDev)) - winnerDeviance
	m.LoserDevianceDelta = int(math.RoundToEven(lNewDev)) - loserDeviance

	m.WinnerEstimatedRating = winnerRating + m.WinnerRatingDelta
	m.LoserEstimatedRating = loserRating + m.LoserRatingDelta
	m.WinnerEstimatedDeviance = winnerDeviance + m.WinnerDevianceDelta
	m.LoserEstimatedDeviance = loserDeviance + m.LoserDevianceDelta

	return m
}

// decay grows the deviance for the rating periods without a match, never past
// the configured maximum.
func (gl *glicko) decay(deviance, periods int) float64 {
	d := float64(deviance)
	if periods > 0 {
		c := gl.cfg.DevianceDecay
		d = math.Sqrt(d*d + c*c*float64(periods))
	}
	d = math.Min(d, float64(gl.cfg.MaxDeviance))
	// keeps 1/d² finite for corrupt data
	return math.Max(d, 1)
}

// update returns the rating delta and the new deviance for one side of the
// match. s is 1 for a win, 0.5 for a tie and 0 for a loss.
func (gl *glicko) update(rating, deviance, oppRating, oppDeviance, s float64) (float64, float64) {
	gOpp := g(oppDeviance)
	e := expectedScore(rating, oppRating, gOpp)
	d2 := 1 / (q * q * gOpp * gOpp * e * (1 - e))

	denom := 1/(deviance*deviance) + 1/d2
	delta := q * gOpp * (s - e) / denom
	newDeviance := math.Min(math.Sqrt(1/denom), float64(gl.cfg.MaxDeviance))

	return delta, newDeviance
}

// g reduces the impact of an opponent whose rating is uncertain.
func g(deviance float64) float64 {
	return 1 / math.Sqrt(1+3*q*q*deviance*deviance/pi2)
}

func expectedScore(rating, oppRating, gOpp float64) float64 {
	return 1 / (1 + math.Pow(10, -gOpp*(rating-oppRating)/disparity))
}
