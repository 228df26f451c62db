package scoring

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientData is matched by InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError is returned when no clinical domain reached the
// completion threshold, so there is nothing to score.
type InsufficientDataError struct {
	Scale   string
	Domains []string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("scale %s: all domains have insufficient data (%s)", e.Scale, strings.Join(e.Domains, ", "))
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
