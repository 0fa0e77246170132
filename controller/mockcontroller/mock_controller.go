package mockcontroller

import (
	"context"
	"sync"
	"time"

	"github.com/mww/challenge_board/model"
	"github.com/stretchr/testify/mock"
)

type C struct {
	mock.Mock
}

func (c *C) CreateMatch(ctx context.Context, boardID int32, winnerName, loserName, comment string, tie bool) (*model.Match, error) {
	args := c.Called(ctx, boardID, winnerName, loserName, comment, tie)
	return match(args)
}

func (c *C) GenerateMatch(ctx context.Context, boardID int32, winnerName, loserName string, tie bool) (*model.Match, error) {
	args := c.Called(ctx, boardID, winnerName, loserName, tie)
	return match(args)
}

func (c *C) ConfirmMatch(ctx context.Context, boardID, matchID int32, userName string) error {
	args := c.Called(ctx, boardID, matchID, userName)
	return args.Error(0)
}

func (c *C) RejectMatch(ctx context.Context, boardID, matchID int32, userName string) error {
	args := c.Called(ctx, boardID, matchID, userName)
	return args.Error(0)
}

func (c *C) VerifyMatch(ctx context.Context, matchID int32) error {
	args := c.Called(ctx, matchID)
	return args.Error(0)
}

func (c *C) SweepMatches(ctx context.Context) error {
	args := c.Called(ctx)
	return args.Error(0)
}

func (c *C) ProcessManualVerifications(ctx context.Context, boardID int32) error {
	args := c.Called(ctx, boardID)
	return args.Error(0)
}

func (c *C) RunPeriodicSweeps(frequency time.Duration, shutdown chan bool, wg *sync.WaitGroup) {
	c.Called(frequency, shutdown, wg)
}

func (c *C) GetBoard(ctx context.Context, boardID int32) (*model.Board, error) {
	args := c.Called(ctx, boardID)

	var b *model.Board
	if args.Get(0) != nil {
		b = args.Get(0).(*model.Board)
	}
	return b, args.Error(1)
}

func (c *C) GetStandings(ctx context.Context, boardID int32) ([]*model.Competitor, error) {
	args := c.Called(ctx, boardID)

	var r []*model.Competitor
	if args.Get(0) != nil {
		r = args.Get(0).([]*model.Competitor)
	}
	return r, args.Error(1)
}

func (c *C) GetMatch(ctx context.Context, matchID int32) (*model.Match, error) {
	args := c.Called(ctx, matchID)
	return match(args)
}

func (c *C) ListUnresolvedMatches(ctx context.Context, boardID int32, verifiableOnly bool) ([]*model.Match, error) {
	args := c.Called(ctx, boardID, verifiableOnly)

	var r []*model.Match
	if args.Get(0) != nil {
		r = args.Get(0).([]*model.Match)
	}
	return r, args.Error(1)
}

func (c *C) GetCompetitorStats(ctx context.Context, boardID int32, name string) (*model.CompetitorStats, error) {
	args := c.Called(ctx, boardID, name)

	var s *model.CompetitorStats
	if args.Get(0) != nil {
		s = args.Get(0).(*model.CompetitorStats)
	}
	return s, args.Error(1)
}

func match(args mock.Arguments) (*model.Match, error) {
	var m *model.Match
	if args.Get(0) != nil {
		m = args.Get(0).(*model.Match)
	}
	return m, args.Error(1)
}
