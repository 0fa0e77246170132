package scoring

import (
	"testing"
	"time"

	"github.com/mww/challenge_board/model"
	"github.com/stretchr/testify/assert"
)

type cascadeFixture struct {
	sys     System
	early   *model.Match // d beats e, before the rejected match
	reject  *model.Match // a beats b
	later   *model.Match // c beats a, priced with a's pending win
	other   *model.Match // d beats e again, does not involve a or b
	matches []*model.Match
}

func newCascadeFixture() *cascadeFixture {
	sys := &elo{cfg: EloConfig{KLow: 10, KMedium: 20, KHigh: 30}}
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	a := &model.Competitor{ID: 1, Rating: 1500}
	b := &model.Competitor{ID: 2, Rating: 1500}
	c := &model.Competitor{ID: 3, Rating: 1500}
	d := &model.Competitor{ID: 4, Rating: 1500}
	e := &model.Competitor{ID: 5, Rating: 1500}

	f := &cascadeFixture{sys: sys}
	f.early = &model.Match{ID: 1, Winner: d, Loser: e, Created: t0.Add(-time.Hour)}
	f.reject = &model.Match{ID: 2, Winner: a, Loser: b, Created: t0}
	f.later = &model.Match{ID: 3, Winner: c, Loser: a, Created: t0.Add(time.Hour)}
	f.other = &model.Match{ID: 4, Winner: d, Loser: e, Created: t0.Add(2 * time.Hour)}

	// Price each match as it would have been at creation time.
	var priced []*model.Match
	for _, m := range []*model.Match{f.early, f.reject, f.later, f.other} {
		sys.Calculate(1500, m, priced)
		priced = append(priced, m)
	}
	f.matches = priced

	return f
}

func TestRecalculate_excludesRejectedMatch(t *testing.T) {
	f := newCascadeFixture()
	assert.Equal(t, 16, f.later.WinnerRatingDelta)
	assert.Equal(t, -16, f.later.LoserRatingDelta)

	f.reject.Invalidate(f.reject.Loser)
	touched := Recalculate(f.sys, 1500, f.reject, f.matches)

	assert.Equal(t, []*model.Match{f.later, f.other}, touched)
	// a is back to 1500 so c's win is an even match again
	assert.Equal(t, 15, f.later.WinnerRatingDelta)
	assert.Equal(t, -15, f.later.LoserRatingDelta)
	assert.Equal(t, 1485, f.later.LoserEstimatedRating)
}

func TestRecalculate_idempotent(t *testing.T) {
	f := newCascadeFixture()
	f.reject.Invalidate(f.reject.Loser)

	Recalculate(f.sys, 1500, f.reject, f.matches)
	first := snapshotDeltas(f.matches)

	Recalculate(f.sys, 1500, f.reject, f.matches)
	second := snapshotDeltas(f.matches)

	assert.Equal(t, first, second)
}

func TestRecalculate_earlierMatchesUntouched(t *testing.T) {
	f := newCascadeFixture()
	// Poison the early match, a recalculation would overwrite these.
	f.early.WinnerRatingDelta = 99
	f.early.LoserRatingDelta = -99
	f.early.WinnerEstimatedRating = 1

	f.reject.Invalidate(f.reject.Winner)
	touched := Recalculate(f.sys, 1500, f.reject, f.matches)

	assert.NotContains(t, touched, f.early)
	assert.Equal(t, 99, f.early.WinnerRatingDelta)
	assert.Equal(t, -99, f.early.LoserRatingDelta)
	assert.Equal(t, 1, f.early.WinnerEstimatedRating)
}

func TestRecalculate_inputOrderDoesNotMatter(t *testing.T) {
	f1 := newCascadeFixture()
	f1.reject.Invalidate(f1.reject.Loser)
	Recalculate(f1.sys, 1500, f1.reject, f1.matches)

	f2 := newCascadeFixture()
	f2.reject.Invalidate(f2.reject.Loser)
	reversed := []*model.Match{f2.matches[3], f2.matches[2], f2.matches[1], f2.matches[0]}
	Recalculate(f2.sys, 1500, f2.reject, reversed)

	assert.Equal(t, snapshotDeltas(f1.matches), snapshotDeltas(f2.matches))
}

func TestRecalculate_sameTimestampUsesID(t *testing.T) {
	sys := &elo{cfg: EloConfig{KLow: 10, KMedium: 20, KHigh: 30}}
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := &model.Competitor{ID: 1, Rating: 1500}
	b := &model.Competitor{ID: 2, Rating: 1500}
	c := &model.Competitor{ID: 3, Rating: 1500}

	rejected := &model.Match{ID: 1, Winner: b, Loser: c, Created: t0, Invalid: true}
	m2 := &model.Match{ID: 2, Winner: a, Loser: b, Created: t0}
	m3 := &model.Match{ID: 3, Winner: a, Loser: b, Created: t0}

	touched := Recalculate(sys, 1500, rejected, []*model.Match{m3, rejected, m2})

	assert.Equal(t, []*model.Match{m2, m3}, touched)
	assert.Equal(t, 15, m2.WinnerRatingDelta)
	// m3 is priced after m2, with a at 1515 and b at 1485
	assert.Equal(t, 14, m3.WinnerRatingDelta)
	assert.Equal(t, -14, m3.LoserRatingDelta)
}

func snapshotDeltas(matches []*model.Match) map[int32][4]int {
	res := make(map[int32][4]int, len(matches))
	for _, m := range matches {
		res[m.ID] = [4]int{m.WinnerRatingDelta, m.LoserRatingDelta, m.WinnerEstimatedRating, m.LoserEstimatedRating}
	}
	return res
}
