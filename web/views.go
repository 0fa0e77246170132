package web

import (
	"time"

	"github.com/mww/challenge_board/model"
)

type competitorView struct {
	ID         int32  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Rating     int    `json:"rating"`
	Deviance   int    `json:"deviance"`
	Wins       int    `json:"wins"`
	Loses      int    `json:"loses"`
	Ties       int    `json:"ties"`
	Streak     int    `json:"streak"`
	LastPlayed string `json:"lastPlayed"`
}

func newCompetitorView(c *model.Competitor) *competitorView {
	if c == nil {
		return nil
	}
	return &competitorView{
		ID:         c.ID,
		Name:       c.Name,
		Status:     c.Status.String(),
		Rating:     c.Rating,
		Deviance:   c.Deviance,
		Wins:       c.Wins,
		Loses:      c.Loses,
		Ties:       c.Ties,
		Streak:     c.Streak,
		LastPlayed: dateFormatter(c.LastPlayed),
	}
}

func newCompetitorViews(competitors []*model.Competitor) []*competitorView {
	res := make([]*competitorView, 0, len(competitors))
	for _, c := range competitors {
		res = append(res, newCompetitorView(c))
	}
	return res
}

type boardView struct {
	ID               int32             `json:"id"`
	Name             string            `json:"name"`
	Owner            *competitorView   `json:"owner"`
	StartingRating   int               `json:"startingRating"`
	AutoVerification int               `json:"autoVerification"`
	Scoring          string            `json:"scoring"`
	Started          time.Time         `json:"started"`
	End              time.Time         `json:"end"`
	Competitors      []*competitorView `json:"competitors"`
}

func newBoardView(b *model.Board) *boardView {
	return &boardView{
		ID:               b.ID,
		Name:             b.Name,
		Owner:            newCompetitorView(b.Owner),
		StartingRating:   b.StartingRating,
		AutoVerification: b.AutoVerification,
		Scoring:          string(b.Scoring),
		Started:          b.Started,
		End:              b.End,
		Competitors:      newCompetitorViews(b.Competitors),
	}
}

type matchSide struct {
	ID                int32  `json:"id"`
	Name              string `json:"name"`
	RatingDelta       int    `json:"ratingDelta"`
	DevianceDelta     int    `json:"devianceDelta"`
	EstimatedRating   int    `json:"estimatedRating"`
	EstimatedDeviance int    `json:"estimatedDeviance"`
}

type matchView struct {
	ID                   int32     `json:"id"`
	BoardID              int32     `json:"boardId"`
	Winner               matchSide `json:"winner"`
	Loser                matchSide `json:"loser"`
	Tied                 bool      `json:"tied"`
	Created              time.Time `json:"created"`
	VerificationDeadline time.Time `json:"verificationDeadline"`
	ManuallyVerified     string    `json:"manuallyVerified"`
	Resolved             string    `json:"resolved"`
	Verified             bool      `json:"verified"`
	Invalid              bool      `json:"invalid"`
	Withdrawn            bool      `json:"withdrawn"`
	WinnerComment        string    `json:"winnerComment,omitempty"`
}

func newMatchView(m *model.Match) *matchView {
	return &matchView{
		ID:      m.ID,
		BoardID: m.BoardID,
		Winner: matchSide{
			ID:                m.Winner.ID,
			Name:              m.Winner.Name,
			RatingDelta:       m.WinnerRatingDelta,
			DevianceDelta:     m.WinnerDevianceDelta,
			EstimatedRating:   m.WinnerEstimatedRating,
			EstimatedDeviance: m.WinnerEstimatedDeviance,
		},
		Loser: matchSide{
			ID:                m.Loser.ID,
			Name:              m.Loser.Name,
			RatingDelta:       m.LoserRatingDelta,
			DevianceDelta:     m.LoserDevianceDelta,
			EstimatedRating:   m.LoserEstimatedRating,
			EstimatedDeviance: m.LoserEstimatedDeviance,
		},
		Tied:                 m.Tied,
		Created:              m.Created,
		VerificationDeadline: m.VerificationDeadline,
		ManuallyVerified:     dateFormatter(m.ManuallyVerified),
		Resolved:             dateFormatter(m.Resolved),
		Verified:             m.Verified,
		Invalid:              m.Invalid,
		Withdrawn:            m.Withdrawn,
		WinnerComment:        m.WinnerComment,
	}
}

func newMatchViews(matches []*model.Match) []*matchView {
	res := make([]*matchView, 0, len(matches))
	for _, m := range matches {
		res = append(res, newMatchView(m))
	}
	return res
}

type pvpView struct {
	Opponent  string `json:"opponent"`
	Wins      int    `json:"wins"`
	Loses     int    `json:"loses"`
	Ties      int    `json:"ties"`
	RatingNet int    `json:"ratingNet"`
}

type statsView struct {
	Competitor *competitorView `json:"competitor"`
	Pvp        []pvpView       `json:"pvp"`
}

func newStatsView(s *model.CompetitorStats) *statsView {
	v := &statsView{
		Competitor: newCompetitorView(s.Competitor),
		Pvp:        make([]pvpView, 0, len(s.Pvp)),
	}
	for _, p := range s.Pvp {
		v.Pvp = append(v.Pvp, pvpView{
			Opponent:  p.Opponent.Name,
			Wins:      p.Wins,
			Loses:     p.Loses,
			Ties:      p.Ties,
			RatingNet: p.RatingNet,
		})
	}
	return v
}
