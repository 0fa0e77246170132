package controller

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mww/challenge_board/db"
	"github.com/mww/challenge_board/model"
)

// CalculateCompetitorStats sums up the record of the competitor against each
// opponent. Rejected matches and matches the competitor didn't play are
// skipped. The result is ordered by the net rating change, highest first, and
// then by opponent name.
func CalculateCompetitorStats(c *model.Competitor, matches []*model.Match) *model.CompetitorStats {
	byOpponent := make(map[int32]*model.PvpStats)

	for _, m := range matches {
		r := m.ResultForCompetitor(c)
		if r.Invalid || r.Outcome == model.OutcomeNotInvolved {
			continue
		}

		s, found := byOpponent[r.Opponent.ID]
		if !found {
			s = &model.PvpStats{Opponent: r.Opponent}
			byOpponent[r.Opponent.ID] = s
		}

		switch r.Outcome {
		case model.OutcomeWin:
			s.Wins++
		case model.OutcomeLose:
			s.Loses++
		case model.OutcomeTie:
			s.Ties++
		}
		s.RatingNet += r.RatingChange
	}

	stats := &model.CompetitorStats{
		Competitor: c,
		Pvp:        make([]model.PvpStats, 0, len(byOpponent)),
	}
	for _, s := range byOpponent {
		stats.Pvp = append(stats.Pvp, *s)
	}
	slices.SortFunc(stats.Pvp, func(a, b model.PvpStats) int {
		if n := cmp.Compare(b.RatingNet, a.RatingNet); n != 0 {
			return n
		}
		return strings.Compare(strings.ToLower(a.Opponent.Name), strings.ToLower(b.Opponent.Name))
	})

	return stats
}

func (c *controller) GetCompetitorStats(ctx context.Context, boardID int32, name string) (*model.CompetitorStats, error) {
	l := c.boardLock(boardID)
	l.RLock()
	defer l.RUnlock()

	b, err := c.getBoard(ctx, boardID, true)
	if err != nil {
		return nil, err
	}

	comp := model.FindCompetitorByName(b.Competitors, name)
	if comp == nil {
		return nil, notFound(msgCompetitorNotFound)
	}

	matches, err := c.db.FindMatches(ctx, db.MatchFilter{BoardID: boardID, CompetitorID: comp.ID})
	if err != nil {
		return nil, fmt.Errorf("error loading matches for %s: %w", comp.Name, err)
	}

	return CalculateCompetitorStats(comp, matches), nil
}
