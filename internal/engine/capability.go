package engine

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashPIN derives the stored admin hash from a PIN: SHA-256 rendered as
// lowercase hex, the same routine the setup form uses at provisioning
// time. This is a deterrent, not a security boundary: the hash lives in
// the shared document every observer can read.
func HashPIN(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// VerifyPIN reports whether a locally held PIN matches the hash in the
// current snapshot. An absent hash means the match is unprovisioned and
// nobody holds capability. Capability is a property of the snapshot, not a
// session: callers re-derive it on every state update and before every
// mutation, never cache it.
func VerifyPIN(pin, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	derived := HashPIN(pin)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(storedHash)) == 1
}
