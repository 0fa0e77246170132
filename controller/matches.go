package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mww/challenge_board/db"
	"github.com/mww/challenge_board/mail"
	"github.com/mww/challenge_board/model"
	"github.com/mww/challenge_board/scoring"
)

const boardAdministrator = "the board administrator"

func (c *controller) CreateMatch(ctx context.Context, boardID int32, winnerName, loserName, comment string, tie bool) (*model.Match, error) {
	l := c.boardLock(boardID)
	l.Lock()
	defer l.Unlock()

	b, m, err := c.generateMatch(ctx, boardID, winnerName, loserName, tie)
	if err != nil {
		return nil, err
	}
	m.WinnerComment = comment

	changes := db.NewChanges()
	changes.AddMatch(m)
	if err := c.db.Commit(ctx, changes); err != nil {
		return nil, fmt.Errorf("error saving match: %w", err)
	}

	c.send(ctx, m.Loser.Profile.EmailAddress, m.Loser.Name, "Match Notification",
		mail.KindMatchNotification, mail.MatchNotification{
			WinnerName:    m.Winner.Name,
			LoserName:     m.Loser.Name,
			BoardName:     b.Name,
			WinnerComment: comment,
			AutoVerifies:  b.AutoVerification,
		})

	return m, nil
}

func (c *controller) GenerateMatch(ctx context.Context, boardID int32, winnerName, loserName string, tie bool) (*model.Match, error) {
	l := c.boardLock(boardID)
	l.RLock()
	defer l.RUnlock()

	_, m, err := c.generateMatch(ctx, boardID, winnerName, loserName, tie)
	return m, err
}

// generateMatch validates a new match and prices it against the board's
// unresolved matches. Nothing is saved. The caller must hold the board lock.
func (c *controller) generateMatch(ctx context.Context, boardID int32, winnerName, loserName string, tie bool) (*model.Board, *model.Match, error) {
	b, err := c.getBoard(ctx, boardID, true)
	if err != nil {
		return nil, nil, err
	}

	now := c.now()
	if now.Before(b.Started) {
		return nil, nil, invalid(fmt.Sprintf("This challenge board start on %s.", b.Started.Format("1/2/2006")))
	}
	if !now.Before(b.End) {
		return nil, nil, invalid(msgBoardEnded)
	}

	active := b.ActiveCompetitors()
	winner := model.FindCompetitorByName(active, winnerName)
	loser := model.FindCompetitorByName(active, loserName)
	if winner == nil {
		return nil, nil, forbidden(msgNotOnBoard)
	}
	if loser == nil {
		return nil, nil, notFound(msgOpponentNotFound)
	}
	if winner.ID == loser.ID {
		return nil, nil, invalid(msgSelfPlay)
	}

	sys, err := c.scoringSystem(b)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating scoring system for board %d: %w", b.ID, err)
	}

	unresolved, err := c.db.GetUnresolvedMatches(ctx, b.ID, false)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading unresolved matches for board %d: %w", b.ID, err)
	}

	m := &model.Match{
		BoardID:              b.ID,
		Winner:               winner,
		Loser:                loser,
		Tied:                 tie,
		Created:              now,
		VerificationDeadline: now.Add(b.VerificationWindow()),
	}
	return b, sys.Calculate(b.StartingRating, m, unresolved), nil
}

func (c *controller) ConfirmMatch(ctx context.Context, boardID, matchID int32, userName string) error {
	l := c.boardLock(boardID)
	l.Lock()
	defer l.Unlock()

	b, err := c.getBoard(ctx, boardID, false)
	if err != nil {
		return err
	}

	profile, err := c.db.GetProfile(ctx, userName)
	if err != nil {
		if errors.Is(err, db.ErrProfileNotFound) {
			return integrity(msgProfileNotFound, err)
		}
		return fmt.Errorf("error loading profile %s: %w", userName, err)
	}

	m, err := c.getBoardMatch(ctx, boardID, matchID)
	if err != nil {
		return err
	}

	// The loser or the board owner can approve
	if m.Loser.Profile.UserID != profile.UserID && !b.IsOwner(userName) {
		return forbidden(msgCannotApprove)
	}
	if m.IsResolved() {
		return conflict(msgAlreadyResolved)
	}
	if m.Invalid {
		return conflict(msgAlreadyRejected)
	}
	if m.IsManuallyVerified() {
		return conflict(msgUpheld)
	}

	now := c.now()
	m.ManuallyVerified = &now

	changes := db.NewChanges()
	changes.UpdateMatch(m)
	return c.commit(ctx, changes)
}

func (c *controller) RejectMatch(ctx context.Context, boardID, matchID int32, userName string) error {
	l := c.boardLock(boardID)
	l.Lock()
	defer l.Unlock()

	b, err := c.getBoard(ctx, boardID, false)
	if err != nil {
		return err
	}

	actor, err := c.db.GetCompetitorByUserName(ctx, boardID, userName)
	if err != nil {
		if errors.Is(err, db.ErrCompetitorNotFound) {
			return integrity(msgProfileNotFound, err)
		}
		return fmt.Errorf("error loading competitor %s: %w", userName, err)
	}

	unresolved, err := c.db.GetUnresolvedMatches(ctx, boardID, false)
	if err != nil {
		return fmt.Errorf("error loading unresolved matches for board %d: %w", boardID, err)
	}

	var rejected *model.Match
	for _, m := range unresolved {
		if m.ID == matchID {
			rejected = m
			break
		}
	}
	if rejected == nil {
		return c.missingMatchError(ctx, boardID, matchID)
	}

	// The board owner can reject anything, otherwise only the participants
	admin := b.IsOwnerCompetitor(actor)
	if !admin && rejected.DoesNotInvolve(actor) {
		return forbidden(msgCannotModify)
	}
	if c.now().After(rejected.VerificationDeadline) {
		return invalid(msgDeadlinePassed)
	}

	sys, err := c.scoringSystem(b)
	if err != nil {
		return fmt.Errorf("error creating scoring system for board %d: %w", b.ID, err)
	}

	rejected.Invalidate(actor)
	touched := scoring.Recalculate(sys, b.StartingRating, rejected, unresolved)

	changes := db.NewChanges()
	changes.UpdateMatch(rejected)
	for _, m := range touched {
		changes.UpdateMatch(m)
	}
	if err := c.commit(ctx, changes); err != nil {
		return err
	}
	log.Printf("match %d on board %d rejected by %s, %d matches recalculated", rejected.ID, boardID, actor.Name, len(touched))

	if rejected.Withdrawn {
		c.send(ctx, rejected.Loser.Profile.EmailAddress, rejected.Loser.Profile.UserName, "Match Withdrawn",
			mail.KindMatchWithdrawalNotice, mail.MatchWithdrawalNotice{
				Withdrawer: rejected.Winner.Name,
				Withdrawee: rejected.Loser.Name,
				BoardName:  b.Name,
			})
		return nil
	}

	rejector := rejected.Loser.Name
	if admin {
		rejector = boardAdministrator
	}
	ownerName := ""
	if b.Owner != nil {
		ownerName = b.Owner.Name
	}
	c.send(ctx, rejected.Winner.Profile.EmailAddress, rejected.Winner.Profile.UserName, "Match Rejected",
		mail.KindMatchRejectionNotice, mail.MatchRejectionNotice{
			RejectorName:   rejector,
			RejectedName:   rejected.Winner.Name,
			BoardName:      b.Name,
			BoardOwnerName: ownerName,
		})
	return nil
}

func (c *controller) VerifyMatch(ctx context.Context, matchID int32) error {
	m, err := c.getMatch(ctx, matchID)
	if err != nil {
		return err
	}

	l := c.boardLock(m.BoardID)
	l.Lock()
	defer l.Unlock()

	// Load it again, it may have changed while waiting for the lock.
	m, err = c.getMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if m.IsResolved() {
		return conflict(msgAlreadyResolved)
	}
	if m.Invalid {
		return conflict(msgAlreadyRejected)
	}

	changes := db.NewChanges()
	resolve(m, c.now(), changes)
	return c.commit(ctx, changes)
}

// resolve applies the stored deltas of the match to its competitors and marks
// it as resolved. The changes are added to changes.
func resolve(m *model.Match, now time.Time, changes *db.Changes) {
	w, l := m.Winner, m.Loser

	w.Rating += m.WinnerRatingDelta
	l.Rating += m.LoserRatingDelta
	w.Deviance += m.WinnerDevianceDelta
	l.Deviance += m.LoserDevianceDelta

	if m.Tied {
		w.Ties++
		l.Ties++
		w.Streak = 0
		l.Streak = 0
	} else {
		w.Wins++
		w.Streak++
		l.Loses++
		l.Streak = 0
	}

	for _, comp := range []*model.Competitor{w, l} {
		if comp.LastPlayed == nil || comp.LastPlayed.Before(m.Created) {
			played := m.Created
			comp.LastPlayed = &played
		}
	}

	m.Verified = true
	m.Resolved = &now

	changes.UpdateMatch(m)
	changes.UpdateCompetitor(w)
	changes.UpdateCompetitor(l)
}

func (c *controller) commit(ctx context.Context, changes *db.Changes) error {
	if err := c.db.Commit(ctx, changes); err != nil {
		if errors.Is(err, db.ErrMatchResolved) {
			return conflict(msgAlreadyResolved)
		}
		return fmt.Errorf("error saving changes: %w", err)
	}
	return nil
}

func (c *controller) getBoard(ctx context.Context, boardID int32, withCompetitors bool) (*model.Board, error) {
	var b *model.Board
	var err error
	if withCompetitors {
		b, err = c.db.GetBoardWithCompetitors(ctx, boardID)
	} else {
		b, err = c.db.GetBoard(ctx, boardID)
	}
	if err != nil {
		if errors.Is(err, db.ErrBoardNotFound) {
			return nil, notFound(msgBoardNotFound)
		}
		return nil, fmt.Errorf("error loading board %d: %w", boardID, err)
	}
	return b, nil
}

func (c *controller) getMatch(ctx context.Context, matchID int32) (*model.Match, error) {
	m, err := c.db.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, db.ErrMatchNotFound) {
			return nil, notFound(msgVerifyNotFound)
		}
		return nil, fmt.Errorf("error loading match %d: %w", matchID, err)
	}
	return m, nil
}

// getBoardMatch loads a match that has to belong to the board.
func (c *controller) getBoardMatch(ctx context.Context, boardID, matchID int32) (*model.Match, error) {
	m, err := c.db.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, db.ErrMatchNotFound) {
			return nil, notFound(msgMatchNotFound)
		}
		return nil, fmt.Errorf("error loading match %d: %w", matchID, err)
	}
	if m.BoardID != boardID {
		return nil, notFound(msgMatchNotFound)
	}
	return m, nil
}

// missingMatchError explains why a match is not among the unresolved matches
// of a board.
func (c *controller) missingMatchError(ctx context.Context, boardID, matchID int32) error {
	m, err := c.getBoardMatch(ctx, boardID, matchID)
	if err != nil {
		return err
	}
	if m.IsResolved() {
		return conflict(msgAlreadyResolved)
	}
	if m.Invalid {
		return conflict(msgAlreadyRejected)
	}
	return notFound(msgMatchNotFound)
}

// send delivers a notification. The change it is about is already committed,
// so failures are only logged.
func (c *controller) send(ctx context.Context, to, name, subject string, kind mail.Kind, payload any) {
	if err := c.mail.Send(ctx, to, name, subject, kind, payload); err != nil {
		log.Printf("error sending %s to %s: %v", kind, name, err)
	}
}
