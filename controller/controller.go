package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/itbasis/go-clock"
	"github.com/mww/challenge_board/db"
	"github.com/mww/challenge_board/mail"
	"github.com/mww/challenge_board/model"
	"github.com/mww/challenge_board/scoring"
)

// C encapsulates business logic without worrying about any web layers
type C interface {
	// Report a match won by winnerName (or tied when tie is set). Both names are
	// competitor names on the board. The loser is notified.
	CreateMatch(ctx context.Context, boardID int32, winnerName, loserName, comment string, tie bool) (*model.Match, error)
	// Same validation and pricing as CreateMatch without saving anything.
	GenerateMatch(ctx context.Context, boardID int32, winnerName, loserName string, tie bool) (*model.Match, error)
	ConfirmMatch(ctx context.Context, boardID, matchID int32, userName string) error
	RejectMatch(ctx context.Context, boardID, matchID int32, userName string) error
	VerifyMatch(ctx context.Context, matchID int32) error

	// Resolve expired matches and then every manually verified match that is
	// not waiting on an earlier match of one of its competitors.
	SweepMatches(ctx context.Context) error
	ProcessManualVerifications(ctx context.Context, boardID int32) error
	RunPeriodicSweeps(frequency time.Duration, shutdown chan bool, wg *sync.WaitGroup)

	GetBoard(ctx context.Context, boardID int32) (*model.Board, error)
	// Active competitors ordered by rating, highest first.
	GetStandings(ctx context.Context, boardID int32) ([]*model.Competitor, error)
	GetMatch(ctx context.Context, matchID int32) (*model.Match, error)
	ListUnresolvedMatches(ctx context.Context, boardID int32, verifiableOnly bool) ([]*model.Match, error)
	GetCompetitorStats(ctx context.Context, boardID int32, name string) (*model.CompetitorStats, error)
}

type controller struct {
	clock   clock.Clock
	db      db.DB
	mail    mail.Sender
	scoring scoring.Config

	locksMu sync.Mutex
	locks   map[int32]*sync.RWMutex
}

func New(clock clock.Clock, db db.DB, mail mail.Sender, cfg scoring.Config) (C, error) {
	if clock == nil || db == nil || mail == nil {
		return nil, errors.New("clock, db and mail are required")
	}

	c := &controller{
		clock:   clock,
		db:      db,
		mail:    mail,
		scoring: cfg,
		locks:   make(map[int32]*sync.RWMutex),
	}
	return c, nil
}

// boardLock returns the lock that serializes every change to a board. Writers
// hold it from the first read until the commit.
func (c *controller) boardLock(boardID int32) *sync.RWMutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()

	l, found := c.locks[boardID]
	if !found {
		l = &sync.RWMutex{}
		c.locks[boardID] = l
	}
	return l
}

func (c *controller) now() time.Time {
	return c.clock.Now().UTC()
}

func (c *controller) scoringSystem(b *model.Board) (scoring.System, error) {
	return scoring.New(b.Scoring, c.scoring)
}
