package models

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure. The HTTP layer maps kinds to status codes.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindIneligible   Kind = "ineligible"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindUnexpected   Kind = "unexpected"
)

type Error struct {
	Kind    Kind
	Message string
	// Err is the sentinel a detailed error was derived from, if any.
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// detail derives an error carrying a more specific message from a sentinel,
// keeping errors.Is(err, sentinel) true.
func detail(sentinel *Error, format string, args ...interface{}) *Error {
	return &Error{Kind: sentinel.Kind, Message: fmt.Sprintf(format, args...), Err: sentinel}
}

// KindOf reports the kind of the first *Error in err's chain, or
// KindUnexpected when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Message returns the user-facing message of a domain error. Untagged
// errors never leak their text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "something went wrong"
}

var (
	ErrPollNotFound     = newError(KindNotFound, "poll not found")
	ErrSurveyNotFound   = newError(KindNotFound, "survey not found")
	ErrResponseNotFound = newError(KindNotFound, "response not found")
	ErrOpinionNotFound  = newError(KindNotFound, "opinion not found")

	ErrUnauthorized  = newError(KindUnauthorized, "admin session is missing or expired")
	ErrWrongPassword = newError(KindUnauthorized, "wrong password")

	ErrPollNotActive      = newError(KindIneligible, "voting is not available for this poll")
	ErrVoteLimitReached   = newError(KindIneligible, "you have already voted in this poll")
	ErrOpinionsDisabled   = newError(KindIneligible, "opinions are disabled for this poll")
	ErrPollNotStarted     = newError(KindIneligible, "poll has not started yet")
	ErrSurveyClosed       = newError(KindIneligible, "survey is not accepting responses")
	ErrSurveyLocked       = newError(KindIneligible, "survey questions can no longer be edited")
	ErrSurveyNotDraft     = newError(KindIneligible, "survey is not a draft")
	ErrSurveyNotOpen      = newError(KindIneligible, "survey is not open")
	ErrPollAlreadyEnded   = newError(KindIneligible, "poll has already ended")
	ErrSingleChoiceOnly   = newError(KindValidation, "this poll allows only one option")
	ErrInvalidOption      = newError(KindValidation, "invalid option")
	ErrNoOptionSelected   = newError(KindValidation, "select at least one option")
	ErrAnonymousForbidden = newError(KindValidation, "anonymous participation is disabled")
	ErrTitleRequired      = newError(KindValidation, "title is required")
	ErrNotEnoughOptions   = newError(KindValidation, "the number of options should be at least 2")
	ErrOptionIsEmpty      = newError(KindValidation, "option is empty")
	ErrInvalidWindow      = newError(KindValidation, "end time must be after start time")
	ErrPasswordRequired   = newError(KindValidation, "password is required")
	ErrContentRequired    = newError(KindValidation, "content is required")
	ErrNoQuestions        = newError(KindValidation, "survey has no questions")
	ErrInvalidQuestion    = newError(KindValidation, "invalid question")
	ErrInvalidChoice      = newError(KindValidation, "invalid choice")
	ErrSelectionCount     = newError(KindValidation, "number of selected choices is out of range")
	ErrTextLength         = newError(KindValidation, "text length is out of range")
	ErrRatingOutOfRange   = newError(KindValidation, "rating is out of range")
	ErrRequiredAnswer     = newError(KindValidation, "required question is not answered")

	ErrDuplicateResponse = newError(KindConflict, "you have already responded to this survey")
	ErrVersionConflict   = newError(KindConflict, "document was modified concurrently")
)

// DuplicateResponseError is returned when a respondent submits twice and
// carries the code of the response they already made.
type DuplicateResponseError struct {
	ResponseCode string
}

func (e *DuplicateResponseError) Error() string {
	return ErrDuplicateResponse.Message
}

func (e *DuplicateResponseError) Unwrap() error {
	return ErrDuplicateResponse
}
