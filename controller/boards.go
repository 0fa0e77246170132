package controller

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mww/challenge_board/model"
)

func (c *controller) GetBoard(ctx context.Context, boardID int32) (*model.Board, error) {
	l := c.boardLock(boardID)
	l.RLock()
	defer l.RUnlock()

	return c.getBoard(ctx, boardID, true)
}

func (c *controller) GetStandings(ctx context.Context, boardID int32) ([]*model.Competitor, error) {
	l := c.boardLock(boardID)
	l.RLock()
	defer l.RUnlock()

	b, err := c.getBoard(ctx, boardID, true)
	if err != nil {
		return nil, err
	}

	standings := b.ActiveCompetitors()
	slices.SortFunc(standings, func(x, y *model.Competitor) int {
		if n := cmp.Compare(y.Rating, x.Rating); n != 0 {
			return n
		}
		return strings.Compare(strings.ToLower(x.Name), strings.ToLower(y.Name))
	})
	return standings, nil
}

func (c *controller) GetMatch(ctx context.Context, matchID int32) (*model.Match, error) {
	return c.getMatch(ctx, matchID)
}

func (c *controller) ListUnresolvedMatches(ctx context.Context, boardID int32, verifiableOnly bool) ([]*model.Match, error) {
	l := c.boardLock(boardID)
	l.RLock()
	defer l.RUnlock()

	// Make sure the board exists so an unknown board isn't just an empty list.
	if _, err := c.getBoard(ctx, boardID, false); err != nil {
		return nil, err
	}

	matches, err := c.db.GetUnresolvedMatches(ctx, boardID, verifiableOnly)
	if err != nil {
		return nil, fmt.Errorf("error loading unresolved matches for board %d: %w", boardID, err)
	}
	return matches, nil
}
