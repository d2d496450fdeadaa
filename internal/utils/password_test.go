package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashAndVerify(t *testing.T) {
	// Low cost keeps the test fast; production uses 12.
	hash, err := HashPassword("correct horse battery staple", 4)
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotContains(t, hash, "correct horse")

	assert.True(t, VerifyPassword(hash, "correct horse battery staple"))
	assert.False(t, VerifyPassword(hash, "wrong password"))
	assert.False(t, VerifyPassword(hash, ""))
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	// A corrupt stored hash must read as "wrong password", never panic.
	assert.False(t, VerifyPassword("not-a-bcrypt-hash", "anything"))
	assert.False(t, VerifyPassword("", "anything"))
}
