package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerificationCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateVerificationCode()
		require.Len(t, code, VerificationCodeLength)
		for _, r := range code {
			require.Truef(t, r >= '0' && r <= '9', "code %q contains non-digit %q", code, r)
		}
		seen[code] = true
	}
	// Leading zeros are valid, so codes are plain digit strings rather than
	// formatted integers. 100 draws from a million values should not all
	// collide.
	assert.Greater(t, len(seen), 1)
}
