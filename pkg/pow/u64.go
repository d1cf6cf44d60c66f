package pow

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Parse errors, wrapped in ErrInvalidInput by Solve.
var (
	// ErrEmpty is returned for blank or whitespace-only input.
	ErrEmpty = errors.New("pow: value is required")

	// ErrNotAnInteger is returned when the input has a non-digit character.
	ErrNotAnInteger = errors.New("pow: value must be a non-negative decimal integer")

	// ErrOutOfRange is returned when the value does not fit in 64 bits.
	ErrOutOfRange = errors.New("pow: value exceeds 64-bit unsigned range")
)

// ParseU64 parses a decimal unsigned 64-bit integer from user input.
//
// Surrounding whitespace is ignored. Signs, fractions, exponents and hex
// prefixes are rejected, as are values above math.MaxUint64.
func ParseU64(text string) (uint64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, ErrEmpty
	}

	var v uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrNotAnInteger, text)
		}
	}
	for i := 0; i < len(s); i++ {
		digit := uint64(s[i] - '0')
		if v > (math.MaxUint64-digit)/10 {
			return 0, fmt.Errorf("%w: %q", ErrOutOfRange, s)
		}
		v = v*10 + digit
	}
	return v, nil
}

// parseInput wraps ParseU64 failures in ErrInvalidInput with the field name.
func parseInput(field, text string) (uint64, error) {
	v, err := ParseU64(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidInput, field, err)
	}
	return v, nil
}
