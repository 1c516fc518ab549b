package holdem

import "errors"

var (
	ErrIllegalMove    = errors.New("illegal move")
	ErrNotYourTurn    = errors.New("not this seat's turn")
	ErrHandComplete   = errors.New("hand already complete")
	ErrNotEnoughSeats = errors.New("not enough seats with chips")
	ErrInvalidBlinds  = errors.New("invalid blind configuration")
	ErrInvalidSeat    = errors.New("invalid seat")
)
