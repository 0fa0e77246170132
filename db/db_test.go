package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mww/challenge_board/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a counter to generate unique user names for each test. To help keep them separated.
var idCtr = int32(0)

type repositoryFixture struct {
	t     *testing.T
	db    DB
	board *model.Board
	owner *model.Competitor
	alice *model.Competitor
	bob   *model.Competitor
}

func newRepositoryFixture(t *testing.T, d DB) *repositoryFixture {
	ctx := context.Background()
	n := atomic.AddInt32(&idCtr, 1)

	profile := func(name string) model.Profile {
		p := &model.Profile{
			UserName:     fmt.Sprintf("%s%d", name, n),
			EmailAddress: fmt.Sprintf("%s%d@example.com", name, n),
		}
		require.NoError(t, d.AddProfile(ctx, p))
		return *p
	}

	b := &model.Board{
		Name:             fmt.Sprintf("Ladder %d", n),
		StartingRating:   1500,
		StartingDeviance: 350,
		AutoVerification: 24,
		Scoring:          model.ScoringElo,
		Started:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	owner := &model.Competitor{Profile: profile("owner"), Name: "Owner", Rating: 1500, Deviance: 350}
	require.NoError(t, d.AddBoard(ctx, b, owner))

	add := func(name string) *model.Competitor {
		c := &model.Competitor{BoardID: b.ID, Profile: profile(name), Name: name, Rating: 1500, Deviance: 350}
		require.NoError(t, d.AddCompetitor(ctx, c))
		return c
	}

	return &repositoryFixture{
		t:     t,
		db:    d,
		board: b,
		owner: owner,
		alice: add("alice"),
		bob:   add("bob"),
	}
}

func (f *repositoryFixture) newMatch(created time.Time) *model.Match {
	return &model.Match{
		BoardID:              f.board.ID,
		Winner:               f.alice,
		Loser:                f.bob,
		Created:              created,
		VerificationDeadline: created.Add(24 * time.Hour),
		WinnerRatingDelta:    15,
		LoserRatingDelta:     -15,
	}
}

func (f *repositoryFixture) commitMatch(created time.Time) *model.Match {
	m := f.newMatch(created)
	changes := NewChanges()
	changes.AddMatch(m)
	require.NoError(f.t, f.db.Commit(context.Background(), changes))
	require.NotZero(f.t, m.ID)
	return m
}

// runRepositoryTests checks the behavior every DB implementation has to share.
func runRepositoryTests(t *testing.T, newDB func() DB) {
	t.Run("profiles", func(t *testing.T) { testProfiles(t, newDB()) })
	t.Run("boards", func(t *testing.T) { testBoards(t, newDB()) })
	t.Run("matches", func(t *testing.T) { testMatches(t, newDB()) })
	t.Run("find matches", func(t *testing.T) { testFindMatches(t, newDB()) })
	t.Run("resolved is terminal", func(t *testing.T) { testResolvedIsTerminal(t, newDB()) })
	t.Run("commit is atomic", func(t *testing.T) { testCommitIsAtomic(t, newDB()) })
}

func testProfiles(t *testing.T, d DB) {
	ctx := context.Background()
	f := newRepositoryFixture(t, d)

	p, err := d.GetProfile(ctx, f.alice.Profile.UserName)
	require.NoError(t, err)
	assert.Equal(t, f.alice.Profile, *p)

	// user names are case insensitive
	p, err = d.GetProfile(ctx, strings.ToUpper(f.alice.Profile.UserName))
	if assert.NoError(t, err) {
		assert.Equal(t, f.alice.Profile.UserID, p.UserID)
	}

	_, err = d.GetProfile(ctx, "nobody-at-all")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func testBoards(t *testing.T, d DB) {
	ctx := context.Background()
	f := newRepositoryFixture(t, d)

	b, err := d.GetBoard(ctx, f.board.ID)
	require.NoError(t, err)
	assert.Equal(t, f.board.Name, b.Name)
	assert.Equal(t, model.ScoringElo, b.Scoring)
	assert.Equal(t, 24, b.AutoVerification)
	assert.True(t, f.board.Started.Equal(b.Started))
	assert.True(t, f.board.End.Equal(b.End))
	require.NotNil(t, b.Owner)
	assert.Equal(t, f.owner.ID, b.Owner.ID)
	assert.Equal(t, f.owner.Profile.UserName, b.Owner.Profile.UserName)
	assert.Nil(t, b.Competitors)

	b, err = d.GetBoardWithCompetitors(ctx, f.board.ID)
	require.NoError(t, err)
	require.Len(t, b.Competitors, 3)
	assert.Equal(t, []int32{f.owner.ID, f.alice.ID, f.bob.ID},
		[]int32{b.Competitors[0].ID, b.Competitors[1].ID, b.Competitors[2].ID})
	// the owner is one of the competitors, not a copy of it
	assert.Same(t, b.Owner, model.FindCompetitorByID(b.Competitors, f.owner.ID))

	c, err := d.GetCompetitorByUserName(ctx, f.board.ID, f.bob.Profile.UserName)
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, c.ID)
	assert.Equal(t, "bob", c.Name)
	assert.Equal(t, 1500, c.Rating)
	assert.Nil(t, c.LastPlayed)

	_, err = d.GetCompetitorByUserName(ctx, f.board.ID, "nobody-at-all")
	assert.ErrorIs(t, err, ErrCompetitorNotFound)

	_, err = d.GetBoard(ctx, -1)
	assert.ErrorIs(t, err, ErrBoardNotFound)
}

func testMatches(t *testing.T, d DB) {
	ctx := context.Background()
	f := newRepositoryFixture(t, d)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	m1 := f.commitMatch(t0)
	m2 := f.commitMatch(t0.Add(time.Hour))

	res, err := d.GetMatch(ctx, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, f.board.ID, res.BoardID)
	assert.Equal(t, f.alice.ID, res.Winner.ID)
	assert.Equal(t, f.bob.ID, res.Loser.ID)
	assert.Equal(t, "bob", res.Loser.Name)
	assert.Equal(t, 15, res.WinnerRatingDelta)
	assert.Equal(t, -15, res.LoserRatingDelta)
	assert.True(t, t0.Equal(res.Created))
	assert.True(t, t0.Add(24*time.Hour).Equal(res.VerificationDeadline))
	assert.False(t, res.IsResolved())
	assert.False(t, res.IsManuallyVerified())

	_, err = d.GetMatch(ctx, -1)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	unresolved, err := d.GetUnresolvedMatches(ctx, f.board.ID, false)
	require.NoError(t, err)
	require.Len(t, unresolved, 2)
	assert.Equal(t, m1.ID, unresolved[0].ID)
	assert.Equal(t, m2.ID, unresolved[1].ID)
	// matches loaded together share their competitors
	assert.Same(t, unresolved[0].Winner, unresolved[1].Winner)

	verifiable, err := d.GetUnresolvedMatches(ctx, f.board.ID, true)
	require.NoError(t, err)
	assert.Empty(t, verifiable)

	// Confirm the second match and resolve the first one.
	now := t0.Add(2 * time.Hour)
	unresolved[1].ManuallyVerified = &now
	unresolved[0].Verified = true
	unresolved[0].Resolved = &now
	winner := unresolved[0].Winner
	winner.Rating += 15
	winner.Wins++
	winner.Streak = 1
	winner.LastPlayed = &t0

	changes := NewChanges()
	changes.UpdateMatch(unresolved[0])
	changes.UpdateMatch(unresolved[1])
	changes.UpdateCompetitor(winner)
	require.NoError(t, d.Commit(ctx, changes))

	verifiable, err = d.GetUnresolvedMatches(ctx, f.board.ID, true)
	require.NoError(t, err)
	require.Len(t, verifiable, 1)
	assert.Equal(t, m2.ID, verifiable[0].ID)

	res, err = d.GetMatch(ctx, m1.ID)
	require.NoError(t, err)
	assert.True(t, res.IsResolved())
	assert.True(t, res.Verified)
	assert.Equal(t, 1515, res.Winner.Rating)
	assert.Equal(t, 1, res.Winner.Wins)
	require.NotNil(t, res.Winner.LastPlayed)
	assert.True(t, t0.Equal(*res.Winner.LastPlayed))
}

func testFindMatches(t *testing.T, d DB) {
	ctx := context.Background()
	f := newRepositoryFixture(t, d)
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	m1 := f.commitMatch(t0)
	m2 := f.commitMatch(t0.Add(48 * time.Hour))

	rejected := f.newMatch(t0.Add(time.Hour))
	rejected.Invalidate(f.bob)
	changes := NewChanges()
	changes.AddMatch(rejected)
	require.NoError(t, d.Commit(ctx, changes))

	yes, no := true, false
	tests := []struct {
		name     string
		filter   MatchFilter
		expected []int32
	}{
		{"board", MatchFilter{BoardID: f.board.ID}, []int32{m1.ID, rejected.ID, m2.ID}},
		{"unresolved", MatchFilter{BoardID: f.board.ID, UnresolvedOnly: true}, []int32{m1.ID, m2.ID}},
		{"deadline", MatchFilter{BoardID: f.board.ID, UnresolvedOnly: true, DeadlineBefore: t0.Add(30 * time.Hour)}, []int32{m1.ID}},
		{"not verified", MatchFilter{BoardID: f.board.ID, ManuallyVerified: &no}, []int32{m1.ID, rejected.ID, m2.ID}},
		{"verified", MatchFilter{BoardID: f.board.ID, ManuallyVerified: &yes}, []int32{}},
		{"competitor", MatchFilter{CompetitorID: f.alice.ID}, []int32{m1.ID, rejected.ID, m2.ID}},
		{"owner never played", MatchFilter{CompetitorID: f.owner.ID}, []int32{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := d.FindMatches(ctx, tc.filter)
			require.NoError(t, err)
			ids := make([]int32, 0, len(res))
			for _, m := range res {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tc.expected, ids)
		})
	}
}

func testResolvedIsTerminal(t *testing.T, d DB) {
	ctx := context.Background()
	f := newRepositoryFixture(t, d)
	t0 := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	m := f.commitMatch(t0)
	m.Resolved = &t0
	m.Verified = true
	changes := NewChanges()
	changes.UpdateMatch(m)
	require.NoError(t, d.Commit(ctx, changes))

	m.Invalid = true
	changes = NewChanges()
	changes.UpdateMatch(m)
	err := d.Commit(ctx, changes)
	assert.True(t, errors.Is(err, ErrMatchResolved), "expected ErrMatchResolved, got: %v", err)

	res, err := d.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, res.Invalid)
}

func testCommitIsAtomic(t *testing.T, d DB) {
	ctx := context.Background()
	f := newRepositoryFixture(t, d)
	t0 := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

	open := f.commitMatch(t0)
	done := f.commitMatch(t0.Add(time.Hour))
	done.Resolved = &t0
	changes := NewChanges()
	changes.UpdateMatch(done)
	require.NoError(t, d.Commit(ctx, changes))

	open.Invalid = true
	f.alice.Rating = 2000
	changes = NewChanges()
	changes.UpdateMatch(open)
	changes.UpdateMatch(done)
	changes.UpdateCompetitor(f.alice)
	assert.Error(t, d.Commit(ctx, changes))

	res, err := d.GetMatch(ctx, open.ID)
	require.NoError(t, err)
	assert.False(t, res.Invalid)
	assert.Equal(t, 1500, res.Winner.Rating)
}
