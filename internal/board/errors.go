package board

import "errors"

var (
	// ErrNoName is returned when a mutation needs the climber name and none is set.
	ErrNoName = errors.New("climber name is not set")

	// ErrInvalidVisit is returned for a visit without a date.
	ErrInvalidVisit = errors.New("visit has no date")

	// ErrEmptyMessage is returned when sending a blank chat message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrUnknownGym is returned when saving a gym that is not on the board.
	ErrUnknownGym = errors.New("unknown gym")

	// Mutation failures. These are the only errors worth showing to the user.
	ErrSubmitFailed = errors.New("could not save the visit, try again")
	ErrDeleteFailed = errors.New("could not delete the visit, try again")
	ErrSendFailed   = errors.New("could not send the message, try again")
	ErrSaveFailed   = errors.New("could not save the gym, local changes kept until the next sync")
)
