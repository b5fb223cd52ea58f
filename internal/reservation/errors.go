package reservation

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ReasonSeatsUnavailable = "seats_unavailable"
	ReasonExpired          = "expired"
	ReasonNotFound         = "not_found"
	ReasonInvalid          = "invalid_request"
)

var (
	ErrSeatUnavailable = errors.New(ReasonSeatsUnavailable)
	ErrHoldExpired     = errors.New("hold expired")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrInvalidRequest  = errors.New("invalid request")
)

// Rejection is an expected refusal, not a failure. Callers match it with
// errors.As to reach the reason and the unavailable seats, or with errors.Is
// against the sentinel errors above.
type Rejection struct {
	Reason      string
	Unavailable []string
	Detail      string
	cause       error
}

func (r *Rejection) Error() string {
	msg := r.Reason
	if len(r.Unavailable) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(r.Unavailable, ","))
	}
	if r.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, r.Detail)
	}
	return msg
}

func (r *Rejection) Unwrap() error {
	return r.cause
}

func unavailable(seats []string) *Rejection {
	return &Rejection{Reason: ReasonSeatsUnavailable, Unavailable: seats, cause: ErrSeatUnavailable}
}

func expired(token string) *Rejection {
	return &Rejection{Reason: ReasonExpired, Detail: token, cause: ErrHoldExpired}
}

func notFound(token string) *Rejection {
	return &Rejection{Reason: ReasonNotFound, Detail: token, cause: ErrHoldNotFound}
}

func invalid(detail string) *Rejection {
	return &Rejection{Reason: ReasonInvalid, Detail: detail, cause: ErrInvalidRequest}
}
