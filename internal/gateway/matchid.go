package gateway

import (
	"crypto/rand"
	"strings"
)

// matchIDAlphabet keeps ids upper-case alphanumeric so they survive being
// read over the phone or scrawled on a whiteboard.
const (
	matchIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	matchIDLength   = 6
)

// NewMatchID generates a short public match identifier. Collisions are
// possible in a 36^6 space; the caller retries on ErrAlreadyExists.
func NewMatchID() string {
	buf := make([]byte, matchIDLength)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	var b strings.Builder
	b.Grow(matchIDLength)
	for _, c := range buf {
		b.WriteByte(matchIDAlphabet[int(c)%len(matchIDAlphabet)])
	}
	return b.String()
}

// ValidMatchID reports whether an id has the expected shape. Handlers use
// it to reject junk before touching the store.
func ValidMatchID(id string) bool {
	if len(id) != matchIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !strings.ContainsRune(matchIDAlphabet, rune(id[i])) {
			return false
		}
	}
	return true
}
