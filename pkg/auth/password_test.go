package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenek/sitegate/pkg/auth"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := auth.HashPassword("swordfish braised gently")
	require.NoError(t, err)
	assert.NotEqual(t, "swordfish braised gently", hash)

	assert.NoError(t, auth.ComparePassword(hash, "swordfish braised gently"))
	assert.Error(t, auth.ComparePassword(hash, "swordfish braised roughly"))
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := auth.HashPassword("")
	assert.Error(t, err)
}

func TestGeneratePassword_Length(t *testing.T) {
	for _, length := range []int{1, 8, 32, 128} {
		generated, err := auth.GeneratePassword(length, auth.CharsetFlags{})
		require.NoError(t, err)
		assert.Len(t, generated, length)
	}

	_, err := auth.GeneratePassword(0, auth.CharsetFlags{})
	assert.Error(t, err)
	_, err = auth.GeneratePassword(-5, auth.CharsetFlags{})
	assert.Error(t, err)
	_, err = auth.GeneratePassword(auth.MaxPasswordLen+1, auth.CharsetFlags{})
	assert.Error(t, err)
}

func TestGeneratePassword_CharsetRestriction(t *testing.T) {
	generated, err := auth.GeneratePassword(64, auth.CharsetFlags{Digits: true})
	require.NoError(t, err)
	for _, c := range generated {
		assert.Contains(t, "0123456789", string(c))
	}

	generated, err = auth.GeneratePassword(64, auth.CharsetFlags{Lower: true, Upper: true})
	require.NoError(t, err)
	for _, c := range generated {
		assert.True(t, (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'), "unexpected character %q", c)
	}
}

func TestGeneratePassword_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		generated, err := auth.GeneratePassword(16, auth.CharsetFlags{})
		require.NoError(t, err)
		assert.False(t, seen[generated], "duplicate password generated")
		seen[generated] = true
	}
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "ab*****z", auth.MaskPassword("abcdefgz"))
	assert.Equal(t, "se***t", auth.MaskPassword("secret"))

	// Short values are fully starred so the hint leaks nothing.
	assert.Equal(t, "*****", auth.MaskPassword("shrt5"))
	assert.Equal(t, "", auth.MaskPassword(""))
}

func TestMaskPassword_NeverEqualToInput(t *testing.T) {
	for _, password := range []string{"abcdef", "a much longer password", "x"} {
		masked := auth.MaskPassword(password)
		assert.NotEqual(t, password, masked)
		assert.True(t, strings.Contains(masked, "*") || masked == "")
	}
}
