package trades

import (
	"errors"
	"fmt"
)

// ErrTradeNotFound is returned for an unknown trade id.
var ErrTradeNotFound = errors.New("trade not found")

// ErrNotParticipant is returned when the signed-in trainer is on neither side
// of a trade they try to confirm or rate.
var ErrNotParticipant = errors.New("current trainer is not part of this trade")

// ValidationError reports a malformed trade proposal. No state is changed
// when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DuplicateTradeError reports an open trade for the same ordered instance pair.
type DuplicateTradeError struct {
	ExistingTradeID string
}

func (e *DuplicateTradeError) Error() string {
	return "This trade proposal already exists."
}

// TransitionError reports a lifecycle move the state machine does not allow.
type TransitionError struct {
	TradeID string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("trade %s cannot move from %s to %s", e.TradeID, e.From, e.To)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsDuplicate reports whether err is or wraps a *DuplicateTradeError.
func IsDuplicate(err error) bool {
	var target *DuplicateTradeError
	return errors.As(err, &target)
}

// IsTransitionError reports whether err is or wraps a *TransitionError.
func IsTransitionError(err error) bool {
	var target *TransitionError
	return errors.As(err, &target)
}
