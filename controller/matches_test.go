package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mww/challenge_board/mail"
	"github.com/mww/challenge_board/model"
	"github.com/mww/challenge_board/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMatch(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f
	now := testutils.Now

	m, err := e.ctrl.CreateMatch(ctx, e.board, "alice", "BOB", "good game", false)
	require.NoError(t, err)

	assert.NotZero(t, m.ID)
	assert.Equal(t, f.Alice.ID, m.Winner.ID)
	assert.Equal(t, f.Bob.ID, m.Loser.ID)
	assert.Equal(t, 15, m.WinnerRatingDelta)
	assert.Equal(t, -15, m.LoserRatingDelta)
	assert.Equal(t, 1515, m.WinnerEstimatedRating)
	assert.Equal(t, 1485, m.LoserEstimatedRating)
	assert.WithinDuration(t, now, m.Created, 0)
	assert.WithinDuration(t, now.Add(24*time.Hour), m.VerificationDeadline, 0)
	assert.False(t, m.IsResolved())

	saved := e.match(m.ID)
	assert.Equal(t, "good game", saved.WinnerComment)
	assert.Equal(t, 15, saved.WinnerRatingDelta)
	// nothing is applied until the match resolves
	assert.Equal(t, 1500, e.competitor(f.Alice).Rating)

	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, f.Bob.Profile.EmailAddress, sent[0].To)
	assert.Equal(t, "Bob", sent[0].Name)
	assert.Equal(t, mail.KindMatchNotification, sent[0].Kind)
	assert.Equal(t, mail.MatchNotification{
		WinnerName:    "Alice",
		LoserName:     "Bob",
		BoardName:     f.Board.Name,
		WinnerComment: "good game",
		AutoVerifies:  24,
	}, sent[0].Payload)
}

func TestCreateMatch_usesUnresolvedMatches(t *testing.T) {
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	e.create(f.Alice, f.Bob)
	m := e.create(f.Alice, f.Carol)

	// Alice is at 1515 provisionally
	assert.Equal(t, 14, m.WinnerRatingDelta)
	assert.Equal(t, -14, m.LoserRatingDelta)
	assert.Equal(t, 1529, m.WinnerEstimatedRating)
}

func TestCreateMatch_tie(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)

	m, err := e.ctrl.CreateMatch(ctx, e.board, "Alice", "Bob", "", true)
	require.NoError(t, err)
	assert.True(t, m.Tied)
	assert.Equal(t, 0, m.WinnerRatingDelta)
	assert.Equal(t, 0, m.LoserRatingDelta)
}

func TestCreateMatch_notificationFailureIsNotAnError(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	e.mail.Err = errors.New("relay down")

	m, err := e.ctrl.CreateMatch(ctx, e.board, "Alice", "Bob", "", false)
	require.NoError(t, err)
	assert.Len(t, e.mail.Sent(), 1)
	assert.False(t, e.match(m.ID).Invalid)
}

func TestCreateMatch_errors(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		board  int32 // 0 for the fixture board
		winner string
		loser  string
		kind   Kind
		msg    string
	}{
		{"board not found", testutils.Now, 9999, "Alice", "Bob", KindNotFound, msgBoardNotFound},
		{"before start", testutils.BoardStart.Add(-time.Second), 0, "Alice", "Bob", KindValidation, "This challenge board start on 1/1/2024."},
		{"at the end", testutils.BoardEnd, 0, "Alice", "Bob", KindValidation, msgBoardEnded},
		{"after the end", testutils.BoardEnd.Add(time.Hour), 0, "Alice", "Bob", KindValidation, msgBoardEnded},
		{"winner not on board", testutils.Now, 0, "Mallory", "Bob", KindPermission, msgNotOnBoard},
		{"retired winner", testutils.Now, 0, "Retired", "Bob", KindPermission, msgNotOnBoard},
		{"loser not found", testutils.Now, 0, "Alice", "Mallory", KindNotFound, msgOpponentNotFound},
		{"retired loser", testutils.Now, 0, "Alice", "Retired", KindNotFound, msgOpponentNotFound},
		{"self play", testutils.Now, 0, "Alice", "alice", KindValidation, msgSelfPlay},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEnv(t, model.ScoringElo)
			e.db.Clock.Set(tc.now)

			board := tc.board
			if board == 0 {
				board = e.board
			}

			m, err := e.ctrl.CreateMatch(ctx, board, tc.winner, tc.loser, "", false)
			assert.Nil(t, m)
			assertControllerError(t, err, tc.kind, tc.msg)

			// nothing saved, nobody notified
			unresolved, err := e.db.DB.GetUnresolvedMatches(ctx, e.board, false)
			require.NoError(t, err)
			assert.Empty(t, unresolved)
			assert.Empty(t, e.mail.Sent())
		})
	}
}

func TestCreateMatch_startOfWindowIsOpen(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	e.db.Clock.Set(testutils.BoardStart)

	_, err := e.ctrl.CreateMatch(ctx, e.board, "Alice", "Bob", "", false)
	assert.NoError(t, err)
}

func TestGenerateMatch(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)

	m, err := e.ctrl.GenerateMatch(ctx, e.board, "Alice", "Bob", false)
	require.NoError(t, err)
	assert.Zero(t, m.ID)
	assert.Equal(t, 15, m.WinnerRatingDelta)

	unresolved, err := e.db.DB.GetUnresolvedMatches(ctx, e.board, false)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Empty(t, e.mail.Sent())

	_, err = e.ctrl.GenerateMatch(ctx, e.board, "Alice", "Alice", false)
	assertControllerError(t, err, KindValidation, msgSelfPlay)
}

func TestConfirmMatch(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	m := e.create(f.Alice, f.Bob)

	err := e.ctrl.ConfirmMatch(ctx, e.board, m.ID, f.Alice.Profile.UserName)
	assertControllerError(t, err, KindPermission, msgCannotApprove)

	err = e.ctrl.ConfirmMatch(ctx, e.board, m.ID, f.Carol.Profile.UserName)
	assertControllerError(t, err, KindPermission, msgCannotApprove)

	err = e.ctrl.ConfirmMatch(ctx, e.board, m.ID, "nobody-at-all")
	assertControllerError(t, err, KindIntegrity, msgProfileNotFound)
	assert.True(t, IsIntegrityError(err))

	err = e.ctrl.ConfirmMatch(ctx, e.board, 9999, f.Bob.Profile.UserName)
	assertControllerError(t, err, KindNotFound, msgMatchNotFound)

	err = e.ctrl.ConfirmMatch(ctx, 9999, m.ID, f.Bob.Profile.UserName)
	assertControllerError(t, err, KindNotFound, msgBoardNotFound)

	assert.False(t, e.match(m.ID).IsManuallyVerified())

	require.NoError(t, e.ctrl.ConfirmMatch(ctx, e.board, m.ID, f.Bob.Profile.UserName))
	confirmed := e.match(m.ID)
	require.True(t, confirmed.IsManuallyVerified())
	assert.WithinDuration(t, e.db.Clock.Now(), *confirmed.ManuallyVerified, 0)
	// confirming does not resolve
	assert.False(t, confirmed.IsResolved())
	assert.Equal(t, 1500, e.competitor(f.Alice).Rating)

	err = e.ctrl.ConfirmMatch(ctx, e.board, m.ID, f.Bob.Profile.UserName)
	assertControllerError(t, err, KindConflict, msgUpheld)
}

func TestConfirmMatch_byOwner(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	m := e.create(f.Alice, f.Bob)
	require.NoError(t, e.ctrl.ConfirmMatch(ctx, e.board, m.ID, f.Owner.Profile.UserName))
	assert.True(t, e.match(m.ID).IsManuallyVerified())
}

func TestConfirmMatch_otherBoard(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	other, err := testutils.InsertTestBoard(e.db.DB, model.ScoringElo)
	require.NoError(t, err)

	m := e.create(e.f.Alice, e.f.Bob)
	err = e.ctrl.ConfirmMatch(ctx, other.Board.ID, m.ID, other.Owner.Profile.UserName)
	assertControllerError(t, err, KindNotFound, msgMatchNotFound)
}

func TestRejectMatch_cascade(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	earlier := e.create(f.Dave, f.Owner)
	ab := e.create(f.Alice, f.Bob)
	ca := e.create(f.Carol, f.Alice)
	dc := e.create(f.Dave, f.Carol)

	// Carol beat Alice while Alice's win over Bob was pending
	assert.Equal(t, 16, ca.WinnerRatingDelta)
	assert.Equal(t, -16, ca.LoserRatingDelta)
	earlierDeltas := []int{earlier.WinnerRatingDelta, earlier.LoserRatingDelta}

	e.mail.Reset()
	require.NoError(t, e.ctrl.RejectMatch(ctx, e.board, ab.ID, f.Bob.Profile.UserName))

	rejected := e.match(ab.ID)
	assert.True(t, rejected.Invalid)
	assert.False(t, rejected.Withdrawn)
	assert.False(t, rejected.IsResolved())

	res := e.match(ca.ID)
	assert.Equal(t, 15, res.WinnerRatingDelta)
	assert.Equal(t, -15, res.LoserRatingDelta)
	assert.Equal(t, 1485, res.LoserEstimatedRating)

	res = e.match(earlier.ID)
	assert.Equal(t, earlierDeltas, []int{res.WinnerRatingDelta, res.LoserRatingDelta})

	// Dave vs Carol is priced against Carol's new +15 instead of +16
	assert.Equal(t, 1501, dc.LoserEstimatedRating)
	dcAfter := e.match(dc.ID)
	assert.Equal(t, 15, dcAfter.WinnerRatingDelta)
	assert.Equal(t, -15, dcAfter.LoserRatingDelta)
	assert.Equal(t, 1500, dcAfter.LoserEstimatedRating)
	assert.Equal(t, 1530, dcAfter.WinnerEstimatedRating)

	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, f.Alice.Profile.EmailAddress, sent[0].To)
	assert.Equal(t, mail.KindMatchRejectionNotice, sent[0].Kind)
	assert.Equal(t, mail.MatchRejectionNotice{
		RejectorName:   "Bob",
		RejectedName:   "Alice",
		BoardName:      f.Board.Name,
		BoardOwnerName: "Owner",
	}, sent[0].Payload)

	err := e.ctrl.RejectMatch(ctx, e.board, ab.ID, f.Bob.Profile.UserName)
	assertControllerError(t, err, KindConflict, msgAlreadyRejected)
}

func TestRejectMatch_withdrawal(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	m := e.create(f.Alice, f.Bob)
	e.mail.Reset()

	require.NoError(t, e.ctrl.RejectMatch(ctx, e.board, m.ID, f.Alice.Profile.UserName))
	res := e.match(m.ID)
	assert.True(t, res.Invalid)
	assert.True(t, res.Withdrawn)

	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, f.Bob.Profile.EmailAddress, sent[0].To)
	assert.Equal(t, f.Bob.Profile.UserName, sent[0].Name)
	assert.Equal(t, mail.KindMatchWithdrawalNotice, sent[0].Kind)
	assert.Equal(t, mail.MatchWithdrawalNotice{
		Withdrawer: "Alice",
		Withdrawee: "Bob",
		BoardName:  f.Board.Name,
	}, sent[0].Payload)
}

func TestRejectMatch_byOwner(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	m := e.create(f.Alice, f.Bob)
	e.mail.Reset()

	require.NoError(t, e.ctrl.RejectMatch(ctx, e.board, m.ID, f.Owner.Profile.UserName))
	res := e.match(m.ID)
	assert.True(t, res.Invalid)
	assert.False(t, res.Withdrawn)

	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	payload, ok := sent[0].Payload.(mail.MatchRejectionNotice)
	require.True(t, ok)
	assert.Equal(t, "the board administrator", payload.RejectorName)
}

func TestRejectMatch_errors(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	m := e.create(f.Alice, f.Bob)

	err := e.ctrl.RejectMatch(ctx, e.board, m.ID, f.Carol.Profile.UserName)
	assertControllerError(t, err, KindPermission, msgCannotModify)

	err = e.ctrl.RejectMatch(ctx, e.board, m.ID, "nobody-at-all")
	assertControllerError(t, err, KindIntegrity, msgProfileNotFound)

	err = e.ctrl.RejectMatch(ctx, e.board, 9999, f.Bob.Profile.UserName)
	assertControllerError(t, err, KindNotFound, msgMatchNotFound)

	err = e.ctrl.RejectMatch(ctx, 9999, m.ID, f.Bob.Profile.UserName)
	assertControllerError(t, err, KindNotFound, msgBoardNotFound)

	e.db.Clock.Add(25 * time.Hour)
	err = e.ctrl.RejectMatch(ctx, e.board, m.ID, f.Bob.Profile.UserName)
	assertControllerError(t, err, KindValidation, msgDeadlinePassed)

	assert.False(t, e.match(m.ID).Invalid)
}

func TestRejectMatch_atTheDeadline(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)

	m := e.create(e.f.Alice, e.f.Bob)
	e.db.Clock.Set(m.VerificationDeadline)

	assert.NoError(t, e.ctrl.RejectMatch(ctx, e.board, m.ID, e.f.Bob.Profile.UserName))
}

func TestRejectMatch_confirmedMatchCanStillBeRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)

	m := e.create(e.f.Alice, e.f.Bob)
	e.confirm(m)

	require.NoError(t, e.ctrl.RejectMatch(ctx, e.board, m.ID, e.f.Owner.Profile.UserName))
	assert.True(t, e.match(m.ID).Invalid)

	err := e.ctrl.ConfirmMatch(ctx, e.board, m.ID, e.f.Bob.Profile.UserName)
	assertControllerError(t, err, KindConflict, msgAlreadyRejected)
}

func TestVerifyMatch(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	m := e.create(f.Alice, f.Bob)
	e.db.Clock.Add(time.Hour)
	require.NoError(t, e.ctrl.VerifyMatch(ctx, m.ID))

	res := e.match(m.ID)
	assert.True(t, res.Verified)
	require.True(t, res.IsResolved())
	assert.WithinDuration(t, e.db.Clock.Now(), *res.Resolved, 0)

	alice := e.competitor(f.Alice)
	assert.Equal(t, 1515, alice.Rating)
	assert.Equal(t, 1, alice.Wins)
	assert.Equal(t, 1, alice.Streak)
	require.NotNil(t, alice.LastPlayed)
	assert.WithinDuration(t, m.Created, *alice.LastPlayed, 0)

	bob := e.competitor(f.Bob)
	assert.Equal(t, 1485, bob.Rating)
	assert.Equal(t, 1, bob.Loses)
	assert.Equal(t, 0, bob.Streak)

	// Resolving is terminal
	assertControllerError(t, e.ctrl.VerifyMatch(ctx, m.ID), KindConflict, msgAlreadyResolved)
	assertControllerError(t, e.ctrl.ConfirmMatch(ctx, e.board, m.ID, f.Bob.Profile.UserName), KindConflict, msgAlreadyResolved)
	assertControllerError(t, e.ctrl.RejectMatch(ctx, e.board, m.ID, f.Bob.Profile.UserName), KindConflict, msgAlreadyResolved)
	assert.Equal(t, 1515, e.competitor(f.Alice).Rating)

	assertControllerError(t, e.ctrl.VerifyMatch(ctx, 9999), KindNotFound, msgVerifyNotFound)
}

func TestVerifyMatch_streaks(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	for i := 0; i < 3; i++ {
		m := e.create(f.Alice, f.Bob)
		require.NoError(t, e.ctrl.VerifyMatch(ctx, m.ID))
	}
	assert.Equal(t, 3, e.competitor(f.Alice).Streak)

	m, err := e.ctrl.CreateMatch(ctx, e.board, "Alice", "Carol", "", true)
	require.NoError(t, err)
	require.NoError(t, e.ctrl.VerifyMatch(ctx, m.ID))

	alice := e.competitor(f.Alice)
	assert.Equal(t, 3, alice.Wins)
	assert.Equal(t, 1, alice.Ties)
	assert.Equal(t, 0, alice.Streak)
	assert.Equal(t, 1, e.competitor(f.Carol).Ties)
}

func TestVerifyMatch_rejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)

	m := e.create(e.f.Alice, e.f.Bob)
	require.NoError(t, e.ctrl.RejectMatch(ctx, e.board, m.ID, e.f.Bob.Profile.UserName))

	assertControllerError(t, e.ctrl.VerifyMatch(ctx, m.ID), KindConflict, msgAlreadyRejected)
	assert.Equal(t, 1500, e.competitor(e.f.Alice).Rating)
}

func TestGlickoBoard(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringGlicko)
	f := e.f

	m := e.create(f.Alice, f.Bob)
	assert.Greater(t, m.WinnerRatingDelta, 0)
	assert.Less(t, m.LoserRatingDelta, 0)
	assert.Less(t, m.WinnerDevianceDelta, 0)

	require.NoError(t, e.ctrl.VerifyMatch(ctx, m.ID))
	alice := e.competitor(f.Alice)
	assert.Equal(t, 1500+m.WinnerRatingDelta, alice.Rating)
	assert.Equal(t, 350+m.WinnerDevianceDelta, alice.Deviance)
	assert.Less(t, alice.Deviance, 350)
}

func TestConcurrentLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, model.ScoringElo)
	f := e.f

	pairs := [][2]*model.Competitor{
		{f.Alice, f.Bob}, {f.Carol, f.Dave}, {f.Bob, f.Carol}, {f.Dave, f.Alice},
	}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 10; i++ {
		for _, p := range pairs {
			wg.Add(1)
			go func(w, l *model.Competitor) {
				defer wg.Done()
				m, err := e.ctrl.CreateMatch(ctx, e.board, w.Name, l.Name, "", false)
				if err != nil {
					errs <- err
					return
				}
				if err := e.ctrl.ConfirmMatch(ctx, e.board, m.ID, l.Profile.UserName); err != nil {
					errs <- err
				}
			}(p[0], p[1])
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			if err := e.ctrl.SweepMatches(ctx); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	// Everything is confirmed, one more sweep resolves whatever is left.
	require.NoError(t, e.ctrl.SweepMatches(ctx))
	unresolved, err := e.db.DB.GetUnresolvedMatches(ctx, e.board, false)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	total := 0
	for _, c := range []*model.Competitor{f.Alice, f.Bob, f.Carol, f.Dave} {
		comp := e.competitor(c)
		total += comp.Wins
		assert.Equal(t, 20, comp.MatchesPlayed())
	}
	assert.Equal(t, 40, total)
}
