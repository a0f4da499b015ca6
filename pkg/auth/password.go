package auth

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinHintLength  = 6
	MaxPasswordLen = 128
)

// Character classes available to the ephemeral password generator.
const (
	charsetLower   = "abcdefghijklmnopqrstuvwxyz"
	charsetUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsetDigits  = "0123456789"
	charsetSymbols = "!@#$%^&*()-_=+[]{}<>?"
)

// CharsetFlags selects which character classes a generated password draws
// from. If none are set the full alphanumeric+symbol set is used.
type CharsetFlags struct {
	Lower   bool
	Upper   bool
	Digits  bool
	Symbols bool
}

func (f CharsetFlags) charset() string {
	var sb strings.Builder
	if f.Lower {
		sb.WriteString(charsetLower)
	}
	if f.Upper {
		sb.WriteString(charsetUpper)
	}
	if f.Digits {
		sb.WriteString(charsetDigits)
	}
	if f.Symbols {
		sb.WriteString(charsetSymbols)
	}
	if sb.Len() == 0 {
		return charsetLower + charsetUpper + charsetDigits + charsetSymbols
	}
	return sb.String()
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// GeneratePassword produces a random password of the given length from the
// union of the requested character classes. The source is crypto/rand; a
// non-cryptographic PRNG is never acceptable here.
func GeneratePassword(length int, flags CharsetFlags) (string, error) {
	if length <= 0 || length > MaxPasswordLen {
		return "", fmt.Errorf("invalid password length %d", length)
	}

	charset := flags.charset()
	out := make([]byte, length)
	for i := range out {
		idx, err := cryptoRandIntn(len(charset))
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = charset[idx]
	}
	return string(out), nil
}

// MaskPassword renders the display hint retained after generation: the first
// two and last characters stay visible, the rest is starred. Short passwords
// are fully starred.
func MaskPassword(password string) string {
	if len(password) < MinHintLength {
		return strings.Repeat("*", len(password))
	}
	return password[:2] + strings.Repeat("*", len(password)-3) + password[len(password)-1:]
}

// cryptoRandIntn returns a secure random number in [0, max).
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int(randomValue % uint64(max)), nil
}
