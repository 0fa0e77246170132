package model

import (
	"fmt"
	"strings"
	"time"
)

type ScoringSystem string

const (
	ScoringElo    ScoringSystem = "elo"
	ScoringGlicko ScoringSystem = "glicko"
)

func ParseScoringSystem(s string) (ScoringSystem, error) {
	switch ScoringSystem(strings.ToLower(strings.TrimSpace(s))) {
	case ScoringElo:
		return ScoringElo, nil
	case ScoringGlicko:
		return ScoringGlicko, nil
	default:
		return "", fmt.Errorf("%s is not a supported scoring system", s)
	}
}

// Board is a time bounded competition. Matches are only accepted while
// Started <= now < End.
type Board struct {
	ID               int32
	Name             string
	Owner            *Competitor
	StartingRating   int
	StartingDeviance int
	AutoVerification int // hours until an unconfirmed match verifies itself
	Scoring          ScoringSystem
	Started          time.Time
	End              time.Time
	Created          time.Time

	// Only populated when the board is loaded with its competitors.
	Competitors []*Competitor
}

func (b *Board) IsOpen(now time.Time) bool {
	return !now.Before(b.Started) && now.Before(b.End)
}

// IsOwner checks the owner by profile user name, case insensitive.
func (b *Board) IsOwner(userName string) bool {
	if b.Owner == nil {
		return false
	}
	return b.Owner.Is(userName)
}

func (b *Board) IsOwnerCompetitor(c *Competitor) bool {
	if b.Owner == nil || c == nil {
		return false
	}
	return b.Owner.ID == c.ID
}

// CanEdit returns true if the user is the board owner or is the competitor.
func (b *Board) CanEdit(c *Competitor, userName string) bool {
	return b.IsOwner(userName) || (c != nil && c.Is(userName))
}

func (b *Board) VerificationWindow() time.Duration {
	return time.Duration(b.AutoVerification) * time.Hour
}

func (b *Board) ActiveCompetitors() []*Competitor {
	return filterCompetitors(b.Competitors, StatusActive)
}

func (b *Board) RetiredCompetitors() []*Competitor {
	return filterCompetitors(b.Competitors, StatusRetired)
}

func filterCompetitors(competitors []*Competitor, status CompetitorStatus) []*Competitor {
	result := make([]*Competitor, 0, len(competitors))
	for _, c := range competitors {
		if c.Status == status {
			result = append(result, c)
		}
	}
	return result
}

// FindCompetitorByName looks up a competitor by display name, case insensitive.
// Returns nil if not found.
func FindCompetitorByName(competitors []*Competitor, name string) *Competitor {
	for _, c := range competitors {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func FindCompetitorByUserName(competitors []*Competitor, userName string) *Competitor {
	for _, c := range competitors {
		if c.Is(userName) {
			return c
		}
	}
	return nil
}

func FindCompetitorByID(competitors []*Competitor, id int32) *Competitor {
	for _, c := range competitors {
		if c.ID == id {
			return c
		}
	}
	return nil
}
