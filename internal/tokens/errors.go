package tokens

import "errors"

var (
	ErrTableNotFound     = errors.New("tokens: token table not found")
	ErrTableExists       = errors.New("tokens: token table already exists")
	ErrTokenNotFound     = errors.New("tokens: token not found")
	ErrAlreadyBlocked    = errors.New("tokens: selected token has been blocked by someone, please try again after sometime")
	ErrAlreadyBooked     = errors.New("tokens: token already booked")
	ErrNotBlocked        = errors.New("tokens: token is not blocked")
	ErrInvalidTransition = errors.New("tokens: invalid token transition")
)
