package mockdb

import (
	"context"

	"github.com/mww/challenge_board/db"
	"github.com/mww/challenge_board/model"
	"github.com/stretchr/testify/mock"
)

type DB struct {
	mock.Mock
}

func (d *DB) GetProfile(ctx context.Context, userName string) (*model.Profile, error) {
	args := d.Called(ctx, userName)

	var p *model.Profile
	if args.Get(0) != nil {
		p = args.Get(0).(*model.Profile)
	}
	return p, args.Error(1)
}

func (d *DB) AddProfile(ctx context.Context, p *model.Profile) error {
	args := d.Called(ctx, p)
	return args.Error(0)
}

func (d *DB) GetBoard(ctx context.Context, id int32) (*model.Board, error) {
	args := d.Called(ctx, id)
	return board(args)
}

func (d *DB) GetBoardWithCompetitors(ctx context.Context, id int32) (*model.Board, error) {
	args := d.Called(ctx, id)
	return board(args)
}

func (d *DB) AddBoard(ctx context.Context, b *model.Board, owner *model.Competitor) error {
	args := d.Called(ctx, b, owner)
	return args.Error(0)
}

func (d *DB) GetCompetitorByUserName(ctx context.Context, boardID int32, userName string) (*model.Competitor, error) {
	args := d.Called(ctx, boardID, userName)

	var c *model.Competitor
	if args.Get(0) != nil {
		c = args.Get(0).(*model.Competitor)
	}
	return c, args.Error(1)
}

func (d *DB) AddCompetitor(ctx context.Context, c *model.Competitor) error {
	args := d.Called(ctx, c)
	return args.Error(0)
}

func (d *DB) GetMatch(ctx context.Context, id int32) (*model.Match, error) {
	args := d.Called(ctx, id)

	var m *model.Match
	if args.Get(0) != nil {
		m = args.Get(0).(*model.Match)
	}
	return m, args.Error(1)
}

func (d *DB) GetUnresolvedMatches(ctx context.Context, boardID int32, verifiableOnly bool) ([]*model.Match, error) {
	args := d.Called(ctx, boardID, verifiableOnly)
	return matches(args)
}

func (d *DB) FindMatches(ctx context.Context, f db.MatchFilter) ([]*model.Match, error) {
	args := d.Called(ctx, f)
	return matches(args)
}

func (d *DB) Commit(ctx context.Context, changes *db.Changes) error {
	args := d.Called(ctx, changes)
	return args.Error(0)
}

func board(args mock.Arguments) (*model.Board, error) {
	var b *model.Board
	if args.Get(0) != nil {
		b = args.Get(0).(*model.Board)
	}
	return b, args.Error(1)
}

func matches(args mock.Arguments) ([]*model.Match, error) {
	var r []*model.Match
	if args.Get(0) != nil {
		r = args.Get(0).([]*model.Match)
	}
	return r, args.Error(1)
}
