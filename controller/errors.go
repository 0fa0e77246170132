package controller

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindValidation
	KindPermission
	KindConflict
	// Something that should always be there is missing, e.g. the profile of
	// the acting user. Not a business rule violation.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindConflict:
		return "conflict"
	case KindIntegrity:
		return "integrity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned for every rejected operation. Message can be shown to the
// user as is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

const (
	msgBoardNotFound      = "Can not find challenge board."
	msgBoardEnded         = "This challenge board has ended."
	msgNotOnBoard         = "You are not part of this challenge board."
	msgOpponentNotFound   = "Can not find opponent."
	msgSelfPlay           = "You can't play yourself."
	msgProfileNotFound    = "Can not find your profile."
	msgMatchNotFound      = "Can not find match."
	msgVerifyNotFound     = "Match not found."
	msgCompetitorNotFound = "Can not find competitor."
	msgCannotApprove      = "You are not able to approve this match."
	msgCannotModify       = "You are not able to modify this match."
	msgUpheld             = "Your match verification has been upheld."
	msgAlreadyResolved    = "This match has already been resolved."
	msgAlreadyRejected    = "This match has already been rejected."
	msgDeadlinePassed     = "The deadline for rejecting this match has passed."
)

func notFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func invalid(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func forbidden(msg string) error {
	return &Error{Kind: KindPermission, Message: msg}
}

func conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func integrity(msg string, err error) error {
	return &Error{Kind: KindIntegrity, Message: msg, Err: err}
}

// IsDomainError returns true for errors caused by a business rule, the kind a
// user can fix.
func IsDomainError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind != KindIntegrity
}

func IsIntegrityError(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindIntegrity
}

// ErrorKind returns the kind of a controller error, false for anything else.
func ErrorKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
