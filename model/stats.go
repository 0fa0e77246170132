package model

// PvpStats is the record of a competitor against a single opponent.
type PvpStats struct {
	Opponent  *Competitor
	Wins      int
	Loses     int
	Ties      int
	RatingNet int
}

type CompetitorStats struct {
	Competitor *Competitor
	// Sorted by RatingNet, highest first.
	Pvp []PvpStats
}
