package parse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAmplitude is matched by every AmplitudeError.
var ErrInvalidAmplitude = errors.New("invalid amplitude token")

// AmplitudeError reports the first token that made an amplitude list
// unusable. The whole list is rejected, never a partial prefix.
type AmplitudeError struct {
	Index int
	Token string
}

func (e *AmplitudeError) Error() string {
	return fmt.Sprintf("invalid amplitude token %q at index %d", e.Token, e.Index)
}

func (e *AmplitudeError) Is(target error) bool {
	return target == ErrInvalidAmplitude
}

// Normalize parses a comma-separated amplitude list and coerces it to
// expectedLength entries. Spaces are removed and each token is trimmed of
// surrounding whitespace before it is checked; whitespace inside a token
// other than a space still invalidates it.
// Longer lists keep their first expectedLength values; shorter lists are
// padded with zeros. expectedLength <= 0 leaves the parsed length unchanged.
func Normalize(csiStr string, expectedLength int) ([]int, error) {
	tokens := strings.Split(strings.ReplaceAll(csiStr, " ", ""), ",")

	amps := make([]int, 0, max(len(tokens), expectedLength))
	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if !isNumeric(tok) {
			return nil, &AmplitudeError{Index: i, Token: tok}
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			// digits only, so this is an out-of-range value
			return nil, &AmplitudeError{Index: i, Token: tok}
		}
		amps = append(amps, v)
	}

	if expectedLength <= 0 {
		return amps, nil
	}
	return FitLength(amps, expectedLength), nil
}

// FitLength truncates amps to its first n values or right-pads it with zeros
// up to n. The result never aliases amps.
func FitLength(amps []int, n int) []int {
	out := make([]int, n)
	copy(out, amps)
	return out
}

// isNumeric accepts an optional single leading '-' followed by one or more
// ASCII decimal digits.
func isNumeric(tok string) bool {
	tok = strings.TrimPrefix(tok, "-")
	return isDigits(tok)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
