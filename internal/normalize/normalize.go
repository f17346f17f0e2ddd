package normalize

import (
	"errors"
	"strings"
)

// ErrInvalidPair is returned for a pair that is not two distinct identities.
var ErrInvalidPair = errors.New("a pair needs two distinct user ids")

// UserID returns the canonical form of a user identity. Identities are
// opaque; normalization only trims surrounding whitespace.
func UserID(id string) string {
	return strings.TrimSpace(id)
}

// Pair orders two identities so the same unordered pair always produces
// the same (low, high) tuple.
func Pair(a, b string) (string, string, error) {
	a, b = UserID(a), UserID(b)
	if a == "" || b == "" || a == b {
		return "", "", ErrInvalidPair
	}
	if b < a {
		a, b = b, a
	}
	return a, b, nil
}

// PairKey returns the order-independent storage key for a conversation
// between a and b.
func PairKey(a, b string) (string, error) {
	lo, hi, err := Pair(a, b)
	if err != nil {
		return "", err
	}
	return lo + ":" + hi, nil
}
