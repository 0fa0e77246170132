package mockmail

import (
	"context"

	"github.com/mww/challenge_board/mail"
	"github.com/stretchr/testify/mock"
)

type Sender struct {
	mock.Mock
}

func (s *Sender) Send(ctx context.Context, to, name, subject string, kind mail.Kind, payload any) error {
	args := s.Called(ctx, to, name, subject, kind, payload)
	return args.Error(0)
}
