package model

import (
	"fmt"
	"strings"
	"time"
)

type Profile struct {
	UserID       int32
	UserName     string
	EmailAddress string
}

type CompetitorStatus int

const (
	StatusActive CompetitorStatus = iota
	StatusRetired
)

func (s CompetitorStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRetired:
		return "retired"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Competitor is a member of a single board. Rating and Deviance are always the
// last verified values, they only change when a match resolves.
type Competitor struct {
	ID         int32
	BoardID    int32
	Profile    Profile
	Name       string
	Status     CompetitorStatus
	Rating     int
	Deviance   int
	Wins       int
	Loses      int
	Ties       int
	Streak     int
	LastPlayed *time.Time
}

// Is returns true if the competitor belongs to the profile with the given user name.
func (c *Competitor) Is(userName string) bool {
	return strings.EqualFold(c.Profile.UserName, userName)
}

func (c *Competitor) IsActive() bool {
	return c.Status == StatusActive
}

func (c *Competitor) MatchesPlayed() int {
	return c.Wins + c.Loses + c.Ties
}

func (c *Competitor) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.Rating)
}
