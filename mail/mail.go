// Package mail defines the outbound notifications sent when a match changes
// state. Rendering and delivery belong to the Sender implementation, callers
// only supply the facts.
package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

type Kind string

const (
	KindMatchNotification     Kind = "match_notification"
	KindMatchWithdrawalNotice Kind = "match_withdrawal_notice"
	KindMatchRejectionNotice  Kind = "match_rejection_notice"
)

// Sender delivers a templated notification to a single recipient.
type Sender interface {
	Send(ctx context.Context, to, name, subject string, kind Kind, payload any) error
}

// MatchNotification is sent to the loser when a match is reported.
type MatchNotification struct {
	WinnerName    string `json:"winnerName"`
	LoserName     string `json:"loserName"`
	BoardName     string `json:"boardName"`
	WinnerComment string `json:"winnerComment"`
	AutoVerifies  int    `json:"autoVerifies"` // hours
}

// MatchWithdrawalNotice is sent to the loser when the winner withdraws a match.
type MatchWithdrawalNotice struct {
	Withdrawer string `json:"withdrawer"`
	Withdrawee string `json:"withdrawee"`
	BoardName  string `json:"boardName"`
}

// MatchRejectionNotice is sent to the winner when the loser or the board owner rejects a match.
type MatchRejectionNotice struct {
	RejectorName   string `json:"rejectorName"`
	RejectedName   string `json:"rejectedName"`
	BoardName      string `json:"boardName"`
	BoardOwnerName string `json:"boardOwnerName"`
}

type logSender struct {
	logger *log.Logger
}

// NewLogSender returns a Sender that only logs the notification. Used when no
// mail relay is configured.
func NewLogSender(logger *log.Logger) Sender {
	if logger == nil {
		logger = log.Default()
	}
	return &logSender{logger: logger}
}

func (s *logSender) Send(ctx context.Context, to, name, subject string, kind Kind, payload any) error {
	if to == "" {
		return fmt.Errorf("no address for %s, not sending %s", name, kind)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding %s payload: %w", kind, err)
	}
	s.logger.Printf("mail to %s <%s> - %s [%s]: %s", name, to, subject, kind, b)
	return nil
}
