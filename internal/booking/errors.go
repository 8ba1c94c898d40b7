package booking

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ramurama/populardoctor-webapi/internal/availability"
	"github.com/ramurama/populardoctor-webapi/internal/tokens"
)

var (
	ErrBookingNotFound    = errors.New("booking: booking not found")
	ErrAlreadyVisited     = errors.New("booking: appointment already visited")
	ErrAlreadyCancelled   = errors.New("booking: appointment already cancelled")
	ErrBookingClosed      = errors.New("booking: booking is not open for this schedule")
	ErrTooManyBlocks      = errors.New("booking: too many token blocks, please try again later")
	ErrInvalidRequest     = errors.New("booking: invalid request")
	ErrInvalidOTP         = errors.New("booking: otp must be numeric")
	ErrOTPNotFound        = errors.New("booking: otp not found")
	ErrIncorrectOTP       = errors.New("booking: incorrect otp")
	ErrDifferentDoctor    = errors.New("booking: appointment belongs to a different doctor")
	ErrInvalidRating      = errors.New("booking: rating must be between 1 and 5")
	ErrFeedbackNotAllowed = errors.New("booking: feedback is only accepted after a visit")
	ErrFeedbackExists     = errors.New("booking: feedback already submitted")
)

// Kind groups errors by how callers should react to them.
type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindNotFound
	KindValidation
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	}
	return "unknown"
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{tokens.ErrAlreadyBlocked, KindConflict},
	{tokens.ErrAlreadyBooked, KindConflict},
	{tokens.ErrNotBlocked, KindConflict},
	{tokens.ErrInvalidTransition, KindConflict},
	{tokens.ErrTableExists, KindConflict},
	{ErrAlreadyVisited, KindConflict},
	{ErrAlreadyCancelled, KindConflict},
	{ErrBookingClosed, KindConflict},
	{ErrTooManyBlocks, KindConflict},
	{ErrFeedbackNotAllowed, KindConflict},
	{ErrFeedbackExists, KindConflict},
	{tokens.ErrTableNotFound, KindNotFound},
	{tokens.ErrTokenNotFound, KindNotFound},
	{ErrBookingNotFound, KindNotFound},
	{ErrOTPNotFound, KindNotFound},
	{ErrDifferentDoctor, KindNotFound},
	{ErrInvalidRequest, KindValidation},
	{ErrInvalidOTP, KindValidation},
	{ErrIncorrectOTP, KindValidation},
	{ErrInvalidRating, KindValidation},
	{availability.ErrInvalidClock, KindValidation},
}

// Classify maps an error returned by this package onto the error taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return KindTransient
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return KindTransient
	}
	return KindUnknown
}
