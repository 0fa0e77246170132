package testutils

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/itbasis/go-clock"
	"github.com/mww/challenge_board/containers"
	"github.com/mww/challenge_board/db"
	"github.com/mww/challenge_board/model"
)

var (
	// Every test board is open during 2024.
	BoardStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	BoardEnd   = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	// What the mock clock reads when a TestDB is created.
	Now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// used to keep user names unique when several boards share a db
	boardCtr = int32(0)
)

type TestDB struct {
	container *containers.DBContainer
	DB        db.DB
	Clock     *clock.Mock
}

// NewTestDB starts a postgres container and connects to it.
func NewTestDB() *TestDB {
	container := containers.NewDBContainer()
	clock := newClock()

	db, err := db.New(context.Background(), container.ConnectionString(), clock)
	if err != nil {
		log.Fatalf("error connecting to db in test container: %v", err)
	}

	return &TestDB{
		container: container,
		DB:        db,
		Clock:     clock,
	}
}

// NewMemoryTestDB returns a TestDB backed by the in memory repository.
func NewMemoryTestDB() *TestDB {
	clock := newClock()
	return &TestDB{
		DB:    db.NewMemory(clock),
		Clock: clock,
	}
}

func (db *TestDB) Shutdown() {
	if db.container != nil {
		db.container.Shutdown()
	}
}

func newClock() *clock.Mock {
	c := clock.NewMock()
	c.Set(Now)
	return c
}

// BoardFixture is a board owned by Owner with four more active competitors
// and one retired one, everyone at the starting rating.
type BoardFixture struct {
	Board   *model.Board
	Owner   *model.Competitor
	Alice   *model.Competitor
	Bob     *model.Competitor
	Carol   *model.Competitor
	Dave    *model.Competitor
	Retired *model.Competitor
}

func InsertTestBoard(d db.DB, scoring model.ScoringSystem) (*BoardFixture, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n := atomic.AddInt32(&boardCtr, 1)

	newCompetitor := func(name string, status model.CompetitorStatus) (*model.Competitor, error) {
		p := &model.Profile{
			UserName:     fmt.Sprintf("%s%d", name, n),
			EmailAddress: fmt.Sprintf("%s%d@example.com", name, n),
		}
		if err := d.AddProfile(ctx, p); err != nil {
			return nil, err
		}
		return &model.Competitor{
			Profile:  *p,
			Name:     name,
			Status:   status,
			Rating:   1500,
			Deviance: 350,
		}, nil
	}

	owner, err := newCompetitor("Owner", model.StatusActive)
	if err != nil {
		return nil, err
	}
	b := &model.Board{
		Name:             fmt.Sprintf("Test Board %d", n),
		StartingRating:   1500,
		StartingDeviance: 350,
		AutoVerification: 24,
		Scoring:          scoring,
		Started:          BoardStart,
		End:              BoardEnd,
	}
	if err := d.AddBoard(ctx, b, owner); err != nil {
		return nil, err
	}

	f := &BoardFixture{Board: b, Owner: owner}
	for _, c := range []struct {
		dst    **model.Competitor
		name   string
		status model.CompetitorStatus
	}{
		{&f.Alice, "Alice", model.StatusActive},
		{&f.Bob, "Bob", model.StatusActive},
		{&f.Carol, "Carol", model.StatusActive},
		{&f.Dave, "Dave", model.StatusActive},
		{&f.Retired, "Retired", model.StatusRetired},
	} {
		comp, err := newCompetitor(c.name, c.status)
		if err != nil {
			return nil, err
		}
		comp.BoardID = b.ID
		if err := d.AddCompetitor(ctx, comp); err != nil {
			return nil, err
		}
		*c.dst = comp
	}

	return f, nil
}
