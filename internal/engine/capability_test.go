package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPIN(t *testing.T) {
	// sha256("1234") as lowercase hex, the exact value stored by the
	// original setup form.
	assert.Equal(t,
		"03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4",
		HashPIN("1234"))

	assert.NotEqual(t, HashPIN("1234"), HashPIN("1235"))
}

func TestVerifyPIN(t *testing.T) {
	hash := HashPIN("4711")

	assert.True(t, VerifyPIN("4711", hash))
	assert.False(t, VerifyPIN("0000", hash))
	assert.False(t, VerifyPIN("", hash))
}

func TestVerifyPINUnprovisioned(t *testing.T) {
	// No stored hash means nobody holds capability, not everybody.
	assert.False(t, VerifyPIN("1234", ""))
	assert.False(t, VerifyPIN("", ""))
}
