package adjustment

import (
	"strings"

	apperrors "mdwarehouse/internal/errors"
)

// Method selects which end of the range keeps factor 1
type Method int

const (
	// Backward holds the latest date at 1, so history moves onto the
	// current share basis
	Backward Method = iota
	// Forward holds the earliest date at 1
	Forward
)

func (m Method) String() string {
	switch m {
	case Backward:
		return "backward"
	case Forward:
		return "forward"
	default:
		return "unknown"
	}
}

// ParseMethod parses "forward" or "backward"
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "backward":
		return Backward, nil
	case "forward":
		return Forward, nil
	}
	return 0, apperrors.NewValidationError("unknown adjustment method").WithContext("method", s)
}
