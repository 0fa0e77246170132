package model

import (
	"cmp"
	"time"
)

// Match between two competitors of a board. The deltas are provisional until
// the match is resolved, at which point they are applied to the competitors.
type Match struct {
	ID      int32
	BoardID int32
	Winner  *Competitor
	Loser   *Competitor
	Tied    bool

	Created              time.Time
	VerificationDeadline time.Time // Created + board auto verification window, never changes
	ManuallyVerified     *time.Time
	Resolved             *time.Time // terminal once set

	Verified  bool
	Invalid   bool
	Withdrawn bool

	WinnerRatingDelta   int
	LoserRatingDelta    int
	WinnerDevianceDelta int
	LoserDevianceDelta  int

	// Informational only, the provisional rating plus the delta at the time of calculation.
	WinnerEstimatedRating   int
	LoserEstimatedRating    int
	WinnerEstimatedDeviance int
	LoserEstimatedDeviance  int

	WinnerComment string
}

func (m *Match) IsResolved() bool {
	return m.Resolved != nil
}

// IsUnresolved is true while the match still counts towards provisional ratings.
func (m *Match) IsUnresolved() bool {
	return m.Resolved == nil && !m.Invalid
}

func (m *Match) IsManuallyVerified() bool {
	return m.ManuallyVerified != nil
}

func (m *Match) IsExpired(now time.Time) bool {
	return now.After(m.VerificationDeadline)
}

func (m *Match) Involves(c *Competitor) bool {
	if c == nil {
		return false
	}
	return m.Winner.ID == c.ID || m.Loser.ID == c.ID
}

func (m *Match) DoesNotInvolve(c *Competitor) bool {
	return !m.Involves(c)
}

// Invalidate marks the match as rejected. If the winner is the one rejecting
// the match it counts as a withdrawal.
func (m *Match) Invalidate(by *Competitor) {
	m.Invalid = true
	m.Withdrawn = by != nil && by.ID == m.Winner.ID
}

// CompareCreated orders matches by creation time, using the id to break ties.
func CompareCreated(a, b *Match) int {
	if c := a.Created.Compare(b.Created); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CompareDeadline orders matches by verification deadline, using the id to break ties.
func CompareDeadline(a, b *Match) int {
	if c := a.VerificationDeadline.Compare(b.VerificationDeadline); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

type MatchOutcome int

const (
	OutcomeWin MatchOutcome = iota
	OutcomeLose
	OutcomeTie
	OutcomeNotInvolved
)

func (o MatchOutcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLose:
		return "lose"
	case OutcomeTie:
		return "tie"
	default:
		return "not involved"
	}
}

// MatchResult is a match seen from the point of view of one of the competitors.
type MatchResult struct {
	Outcome      MatchOutcome
	Opponent     *Competitor
	RatingChange int
	Invalid      bool
}

func (m *Match) ResultForCompetitor(c *Competitor) MatchResult {
	var r MatchResult

	switch {
	case m.DoesNotInvolve(c):
		r.Outcome = OutcomeNotInvolved
	case m.Winner.ID == c.ID:
		r.Outcome = OutcomeWin
		r.RatingChange = m.WinnerRatingDelta
		r.Opponent = m.Loser
	default:
		r.Outcome = OutcomeLose
		r.RatingChange = m.LoserRatingDelta
		r.Opponent = m.Winner
	}

	if m.Tied && r.Outcome != OutcomeNotInvolved {
		r.Outcome = OutcomeTie
	}
	r.Invalid = m.Invalid

	return r
}
