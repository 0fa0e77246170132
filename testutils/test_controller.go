package testutils

import (
	"context"
	"sync"

	"github.com/mww/challenge_board/mail"
)

// SentMail is a notification captured by a RecordingSender.
type SentMail struct {
	To      string
	Name    string
	Subject string
	Kind    mail.Kind
	Payload any
}

// RecordingSender is a mail.Sender that keeps everything it is asked to send.
type RecordingSender struct {
	mu   sync.Mutex
	sent []SentMail
	// Returned from every Send when set, the mail is still recorded.
	Err error
}

func (s *RecordingSender) Send(ctx context.Context, to, name, subject string, kind mail.Kind, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, SentMail{To: to, Name: name, Subject: subject, Kind: kind, Payload: payload})
	return s.Err
}

func (s *RecordingSender) Sent() []SentMail {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]SentMail, len(s.sent))
	copy(res, s.sent)
	return res
}

func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}
