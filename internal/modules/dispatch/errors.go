// README: Dispatch errors returned synchronously to callers.
package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyCommitted = errors.New("responder already committed to this incident")
	ErrIncidentTerminal = errors.New("incident is already closed")
	ErrTooFar           = errors.New("responder too far from incident")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrNotCommitted     = errors.New("responder has not committed to this incident")
)

// TooFarError carries the measured distance so clients can show it.
type TooFarError struct {
	DistanceKm float64
	LimitKm    float64
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("you are %.1f km away; only helpers within %.0f km can respond", e.DistanceKm, e.LimitKm)
}

func (e *TooFarError) Is(target error) bool { return target == ErrTooFar }

func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
}
