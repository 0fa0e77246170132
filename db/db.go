package db

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/mww/challenge_board/model"
)

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrBoardNotFound      = errors.New("board not found")
	ErrCompetitorNotFound = errors.New("competitor not found")
	ErrMatchNotFound      = errors.New("match not found")
	// Returned by Commit when a change touches a match that is already resolved.
	ErrMatchResolved = errors.New("match is already resolved")
)

type DB interface {
	GetProfile(ctx context.Context, userName string) (*model.Profile, error)
	AddProfile(ctx context.Context, p *model.Profile) error

	// GetBoard returns the board with its owner, but without the competitor list.
	GetBoard(ctx context.Context, id int32) (*model.Board, error)
	GetBoardWithCompetitors(ctx context.Context, id int32) (*model.Board, error)
	// AddBoard creates the board and its owner competitor in a single transaction.
	// The owner's profile must already exist.
	AddBoard(ctx context.Context, b *model.Board, owner *model.Competitor) error

	GetCompetitorByUserName(ctx context.Context, boardID int32, userName string) (*model.Competitor, error)
	AddCompetitor(ctx context.Context, c *model.Competitor) error

	GetMatch(ctx context.Context, id int32) (*model.Match, error)
	// Unresolved matches (not resolved and not invalid) for the board ordered by
	// creation time. If verifiableOnly is set only manually verified matches are
	// returned.
	GetUnresolvedMatches(ctx context.Context, boardID int32, verifiableOnly bool) ([]*model.Match, error)
	FindMatches(ctx context.Context, f MatchFilter) ([]*model.Match, error)

	// Commit persists every change atomically, either all of them are saved or none.
	Commit(ctx context.Context, changes *Changes) error
}

// MatchFilter selects matches for FindMatches. Zero values don't filter.
// Results are ordered by creation time.
type MatchFilter struct {
	BoardID        int32
	CompetitorID   int32 // either the winner or the loser
	UnresolvedOnly bool
	// nil for any, otherwise only matches where ManuallyVerified is (or isn't) set.
	ManuallyVerified *bool
	DeadlineBefore   time.Time
}

func (f *MatchFilter) matches(m *model.Match) bool {
	if f.BoardID != 0 && m.BoardID != f.BoardID {
		return false
	}
	if f.CompetitorID != 0 && m.Winner.ID != f.CompetitorID && m.Loser.ID != f.CompetitorID {
		return false
	}
	if f.UnresolvedOnly && !m.IsUnresolved() {
		return false
	}
	if f.ManuallyVerified != nil && *f.ManuallyVerified != m.IsManuallyVerified() {
		return false
	}
	if !f.DeadlineBefore.IsZero() && !m.VerificationDeadline.Before(f.DeadlineBefore) {
		return false
	}
	return true
}

// Changes collects the mutations of a single lifecycle operation so they can
// be committed together.
type Changes struct {
	added       []*model.Match
	matches     map[int32]*model.Match
	competitors map[int32]*model.Competitor
}

func NewChanges() *Changes {
	return &Changes{
		matches:     make(map[int32]*model.Match),
		competitors: make(map[int32]*model.Competitor),
	}
}

// AddMatch records a new match. Its ID is set on commit.
func (c *Changes) AddMatch(m *model.Match) {
	c.added = append(c.added, m)
}

func (c *Changes) UpdateMatch(m *model.Match) {
	c.matches[m.ID] = m
}

func (c *Changes) UpdateCompetitor(comp *model.Competitor) {
	c.competitors[comp.ID] = comp
}

func (c *Changes) Added() []*model.Match {
	return c.added
}

// Matches returns the updated matches ordered by id.
func (c *Changes) Matches() []*model.Match {
	res := make([]*model.Match, 0, len(c.matches))
	for _, m := range c.matches {
		res = append(res, m)
	}
	slices.SortFunc(res, func(a, b *model.Match) int { return cmp.Compare(a.ID, b.ID) })
	return res
}

// Competitors returns the updated competitors ordered by id.
func (c *Changes) Competitors() []*model.Competitor {
	res := make([]*model.Competitor, 0, len(c.competitors))
	for _, comp := range c.competitors {
		res = append(res, comp)
	}
	slices.SortFunc(res, func(a, b *model.Competitor) int { return cmp.Compare(a.ID, b.ID) })
	return res
}

func (c *Changes) IsEmpty() bool {
	return len(c.added) == 0 && len(c.matches) == 0 && len(c.competitors) == 0
}
